package main

import (
	"fmt"
	"os"

	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-go/skill/train"
	"github.com/kiteco/skillview/kite-golib/cmdline"
	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/kiteco/skillview/kite-golib/status"
)

var trainCmd = cmdline.Command{
	Name:     "train",
	Synopsis: "fine-tune the classifier on an annotation file",
	Args:     &trainArgs{},
}

type trainArgs struct {
	Config    string  `arg:"required" help:"YAML options file"`
	Output    string  `help:"output directory, overrides output_dir"`
	Epochs    int     `help:"overrides epochs"`
	BatchSize int     `help:"overrides batch_size"`
	LR        float64 `help:"overrides learning_rate"`
	Synthetic bool    `help:"train on generated clips instead of decoding videos"`
}

func (args *trainArgs) Handle() error {
	opts, err := train.LoadOptions(args.Config)
	if err != nil {
		return err
	}
	if args.Output != "" {
		opts.OutputDir = args.Output
	}
	if args.Epochs > 0 {
		opts.Epochs = args.Epochs
	}
	if args.BatchSize > 0 {
		opts.BatchSize = args.BatchSize
	}
	if args.LR > 0 {
		opts.LearningRate = args.LR
	}

	var in train.Inputs
	if in.Train, err = dataset.LoadSamples(opts.TrainAnnotations); err != nil {
		return err
	}
	if opts.EvalAnnotations != "" {
		if in.Eval, err = dataset.LoadSamples(opts.EvalAnnotations); err != nil {
			return err
		}
	}
	if args.Synthetic {
		in.Open = syntheticVideos
	}

	tr, err := train.NewTrainer(opts, in)
	if err != nil {
		return errors.Wrapf(err, "error setting up training")
	}
	fmt.Printf("run %s: %d training and %d eval samples\n", tr.RunID(), len(in.Train), len(in.Eval))

	ctx, cancel := interruptible()
	defer cancel()
	res, err := tr.Train(ctx)
	status.Get().Fprint(os.Stdout)
	if err != nil {
		return err
	}

	fmt.Printf("done after %d steps", res.Steps)
	if res.BestCheckpoint != "" {
		fmt.Printf(", best checkpoint %s", res.BestCheckpoint)
	}
	fmt.Println()
	return nil
}
