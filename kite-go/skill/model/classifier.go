package model

import (
	"fmt"
	"math/rand"

	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-go/skill/encoder"
	"github.com/kiteco/skillview/kite-go/skill/fusion"
	"github.com/kiteco/skillview/kite-golib/autodiff"
	"github.com/kiteco/skillview/kite-golib/nn"
	"gonum.org/v1/gonum/mat"
)

// Classifier maps a batch of multi-view clips to proficiency logits.
type Classifier struct {
	cfg Config

	Encoder   *encoder.Encoder
	Projector *fusion.Projector
	Head      *nn.Linear
}

// Output is the result of a forward pass. Loss is nil when the batch has no labels.
type Output struct {
	Logits *autodiff.Node
	Loss   *autodiff.Node
}

// New builds the classifier: the encoder with its time embedding resized to cfg.NumFrames
// and adapters injected, then a freshly initialized projector and head.
func New(cfg Config) (*Classifier, error) {
	encCfg, err := encoder.Lookup(cfg.VisionEncoderID)
	if err != nil {
		return nil, err
	}
	if cfg.NumClasses < 1 {
		return nil, fmt.Errorf("num_classes must be positive, got %d", cfg.NumClasses)
	}

	enc, err := encoder.New(encCfg, encoder.Options{
		NumFrames:  cfg.NumFrames,
		WeightPath: cfg.EncoderWeights,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	if _, err := encoder.Inject(enc, cfg.Adapter, rng); err != nil {
		return nil, err
	}

	cfg.Projector.InputDim = enc.Hidden()
	proj, err := fusion.New(cfg.Projector, rng)
	if err != nil {
		return nil, err
	}

	return &Classifier{
		cfg:       cfg,
		Encoder:   enc,
		Projector: proj,
		Head:      nn.NewLinear("classifier", cfg.Projector.OutputDim, cfg.NumClasses, rng),
	}, nil
}

// Config returns the configuration the classifier was built with.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Params returns every parameter of the classifier.
func (c *Classifier) Params() []*nn.Param {
	ps := append([]*nn.Param{}, c.Encoder.Params()...)
	ps = append(ps, c.Projector.Params()...)
	return append(ps, c.Head.Params()...)
}

// TrainableParams returns the parameters updated by the optimizer.
func (c *Classifier) TrainableParams() []*nn.Param {
	return nn.Trainable(c.Params())
}

// Check reports whether b can be fed to the classifier.
func (c *Classifier) Check(b *dataset.Batch) error {
	enc := c.Encoder.Config()
	switch {
	case b.Size() == 0:
		return fmt.Errorf("empty batch")
	case c.cfg.NumViews > 0 && b.Views() != c.cfg.NumViews:
		return fmt.Errorf("batch has %d views, model expects %d", b.Views(), c.cfg.NumViews)
	case b.Shape[2] != enc.Frames:
		return fmt.Errorf("batch clips have %d frames, model expects %d", b.Shape[2], enc.Frames)
	case b.Shape[3] != enc.Channels || b.Shape[4] != enc.ImageSize || b.Shape[5] != enc.ImageSize:
		return fmt.Errorf("batch frames are %dx%dx%d, model expects %dx%dx%d",
			b.Shape[3], b.Shape[4], b.Shape[5], enc.Channels, enc.ImageSize, enc.ImageSize)
	}
	return nil
}

// Forward encodes every view, fuses the views of each sample and applies the head.
// The loss is the mean cross-entropy against b.Labels when present.
func (c *Classifier) Forward(t *autodiff.Tape, b *dataset.Batch) (Output, error) {
	if err := c.Check(b); err != nil {
		return Output{}, err
	}

	fused := make([]*autodiff.Node, b.Size())
	for i := range fused {
		fused[i] = c.Projector.Fuse(t, c.encodeViews(t, b, i))
	}
	logits := c.Head.Forward(t, t.ConcatRows(fused...))

	out := Output{Logits: logits}
	if len(b.Labels) == b.Size() {
		out.Loss = t.CrossEntropy(logits, b.Labels)
	}
	return out, nil
}

// FeatureExtract returns the pooled encoder embedding of each sample averaged over its
// views, one row per sample. No fusion is applied.
func (c *Classifier) FeatureExtract(b *dataset.Batch) (*mat.Dense, error) {
	if err := c.Check(b); err != nil {
		return nil, err
	}
	t := autodiff.NewEvalTape()
	out := mat.NewDense(b.Size(), c.Encoder.Hidden(), nil)
	for i := 0; i < b.Size(); i++ {
		out.SetRow(i, t.MeanRows(c.encodeViews(t, b, i)).Value.RawRowView(0))
	}
	return out, nil
}

// encodeViews returns the V×hidden pooled embeddings of sample i.
func (c *Classifier) encodeViews(t *autodiff.Tape, b *dataset.Batch, i int) *autodiff.Node {
	views := make([]*autodiff.Node, b.Views())
	for v := range views {
		views[v] = c.Encoder.Encode(t, t.Const(b.View(i, v)))
	}
	if len(views) == 1 {
		return views[0]
	}
	return t.ConcatRows(views...)
}

// Predictions returns the arg-max class of each row of logits.
func Predictions(logits *mat.Dense) []int {
	r, _ := logits.Dims()
	out := make([]int, r)
	for i := range out {
		row := logits.RawRowView(i)
		for j, v := range row {
			if v > row[out[i]] {
				out[i] = j
			}
		}
	}
	return out
}
