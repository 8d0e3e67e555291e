package train

import (
	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-go/skill/encoder"
	"github.com/kiteco/skillview/kite-go/skill/frames"
	"github.com/kiteco/skillview/kite-golib/kitelog"
)

// proberSize bounds the number of videos whose frame count is remembered.
const proberSize = 1 << 14

// NewLoader builds the sample loader for opts. Frames are resized to the encoder's input size.
func NewLoader(opts Options, enc encoder.Config, open dataset.SourceFunc, metrics *dataset.Metrics, log kitelog.Interface, seed int64) (*dataset.Loader, error) {
	prober, err := frames.NewProber(proberSize)
	if err != nil {
		return nil, err
	}
	if open == nil {
		open = dataset.FFmpegSources
	}
	asm := &dataset.Assembler{
		Root:       opts.VideoRoot,
		Cameras:    opts.Cameras,
		ClipLen:    opts.ClipLen,
		SampleRate: opts.SampleRate,
		Counter:    prober,
		Open:       open,
		Labeler:    dataset.NewLabeler(metrics, log),
		Metrics:    metrics,
		Logger:     log,
	}
	collator := dataset.Collator{
		NumViews:   opts.NumViews(),
		Normalizer: dataset.NewNormalizer(enc.ImageSize),
		Metrics:    metrics,
	}
	return dataset.NewLoader(asm, collator, opts.Workers, seed), nil
}
