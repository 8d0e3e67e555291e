package main

import (
	"fmt"
	"os"

	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-go/skill/model"
	"github.com/kiteco/skillview/kite-go/skill/train"
	"github.com/kiteco/skillview/kite-golib/cmdline"
	"github.com/kiteco/skillview/kite-golib/kitelog"
	"github.com/kiteco/skillview/kite-golib/serialization"
	"github.com/kiteco/skillview/kite-golib/status"
)

// runArgs are shared by commands that apply an exported model to annotated videos.
type runArgs struct {
	Model       string `arg:"required" help:"feature extractor directory written by train"`
	Annotations string `arg:"required" help:"annotation file (.jsonl, optionally .gz)"`
	VideoRoot   string `help:"directory or s3 prefix that video paths are relative to"`
	Cameras     []int  `help:"camera indices; defaults to the first num_views cameras"`
	SampleRate  int    `help:"frame sample rate"`
	BatchSize   int
	Workers     int
	Seed        int64
	Synthetic   bool `help:"use generated clips instead of decoding videos"`
}

func defaultRunArgs() runArgs {
	return runArgs{SampleRate: 4, BatchSize: 4, Workers: 4, Seed: 42}
}

// load returns the exported classifier, the annotated samples and a loader matching the model.
func (args *runArgs) load(stage string) (*model.Classifier, []dataset.Sample, *dataset.Loader, error) {
	c, err := model.LoadFeatureExtractor(args.Model)
	if err != nil {
		return nil, nil, nil, err
	}
	samples, err := dataset.LoadSamples(args.Annotations)
	if err != nil {
		return nil, nil, nil, err
	}

	cfg := c.Config()
	opts := train.DefaultOptions()
	opts.VideoRoot = args.VideoRoot
	opts.ClipLen = cfg.NumFrames
	opts.SampleRate = args.SampleRate
	opts.Workers = args.Workers
	opts.Cameras = args.Cameras
	if len(opts.Cameras) == 0 {
		opts.Cameras = nil
		for i := 0; i < cfg.NumViews; i++ {
			opts.Cameras = append(opts.Cameras, i)
		}
	}
	if err := opts.Validate(); err != nil {
		return nil, nil, nil, err
	}

	var open dataset.SourceFunc
	if args.Synthetic {
		open = syntheticVideos
	}
	log := kitelog.NewForRun("", stage)
	loader, err := train.NewLoader(opts, c.Encoder.Config(), open, dataset.DefaultMetrics, log, args.Seed)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, samples, loader, nil
}

var inferCmd = cmdline.Command{
	Name:     "infer",
	Synopsis: "classify annotated videos with an exported model and report accuracy",
	Args:     &inferArgs{runArgs: defaultRunArgs()},
}

type inferArgs struct {
	runArgs
	Output string `help:"write the per-sample predictions as JSON"`
}

func (args *inferArgs) Handle() error {
	c, samples, loader, err := args.load("infer")
	if err != nil {
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()
	ev := train.Evaluator{
		Model:     c,
		Loader:    loader,
		BatchSize: args.BatchSize,
		Metrics:   train.DefaultMetrics,
		Progress:  true,
	}
	rep, err := ev.Run(ctx, samples)
	if err != nil {
		return err
	}

	status.Get().Fprint(os.Stdout)
	fmt.Printf("%d of %d samples classified, accuracy %.4f, loss %.4f\n", len(rep.Predictions), len(samples), rep.Accuracy, rep.Loss)
	if args.Output != "" {
		return serialization.Encode(args.Output, rep)
	}
	return nil
}
