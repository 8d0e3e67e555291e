package encoder

import (
	"io"
	"sync"

	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/kiteco/skillview/kite-golib/fileutil"
	"github.com/kiteco/skillview/kite-golib/lazy"
	"github.com/kiteco/skillview/kite-golib/nn"
)

// Options control how an encoder is built.
type Options struct {
	// NumFrames is the clip length; the time embedding is resized to it. Zero keeps the pretrained length.
	NumFrames int
	// WeightPath names a snappy gob weight file, local or s3. Empty means seeded random weights.
	WeightPath string
	// Seed drives the random initialization of weights not loaded from WeightPath.
	Seed int64
}

type weightFile struct {
	loader  *lazy.Loader
	tensors map[string]nn.Tensor
}

var (
	weightsMu sync.Mutex
	weights   = make(map[string]*weightFile)
)

// pretrained returns the tensors stored at path, reading the file at most once per process.
func pretrained(path string) (map[string]nn.Tensor, error) {
	weightsMu.Lock()
	wf, ok := weights[path]
	if !ok {
		wf = &weightFile{}
		wf.loader = lazy.NewLoader(func() error {
			r, err := fileutil.NewCachedReader(path)
			if err != nil {
				return err
			}
			defer r.Close()
			wf.tensors, err = nn.ReadParams(r)
			return err
		}, func() {
			wf.tensors = nil
		})
		weights[path] = wf
	}
	weightsMu.Unlock()

	if err := wf.loader.Load(); err != nil {
		return nil, err
	}
	return wf.tensors, nil
}

// New builds an encoder for cfg, loads its weights and resizes the time embedding to
// opts.NumFrames. Structural problems are reported as *ConfigMismatchError.
func New(cfg Config, opts Options) (*Encoder, error) {
	e, err := newBase(cfg, opts.Seed)
	if err != nil {
		return nil, err
	}

	if opts.WeightPath != "" {
		tensors, err := pretrained(opts.WeightPath)
		if err != nil {
			return nil, errors.Wrapf(err, "error loading encoder weights from %s", opts.WeightPath)
		}
		if err := nn.AssignParams(e.Params(), tensors, true); err != nil {
			return nil, &ConfigMismatchError{What: "weights", Detail: err.Error()}
		}
	}

	if opts.NumFrames > 0 {
		table := e.TimeEmbedding()
		if table == nil {
			return nil, &ConfigMismatchError{What: "time embedding", Detail: "encoder " + cfg.ID + " has no time embedding to resize"}
		}
		if err := e.SetTimeEmbedding(AdaptTimeEmbedding(table, opts.NumFrames)); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// WriteWeights writes every encoder parameter in the format read by Options.WeightPath.
func (e *Encoder) WriteWeights(w io.Writer) error {
	return nn.SaveParams(w, e.Params())
}
