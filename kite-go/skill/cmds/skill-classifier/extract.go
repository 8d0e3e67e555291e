package main

import (
	"fmt"

	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-golib/cmdline"
	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/kiteco/skillview/kite-golib/serialization"
)

var extractCmd = cmdline.Command{
	Name:     "extract",
	Synopsis: "write pooled per-sample video features",
	Args:     &extractArgs{runArgs: defaultRunArgs(), Output: "features.jsonl"},
}

type extractArgs struct {
	runArgs
	Output string `help:"output file, format chosen by extension"`
}

type features struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Features []float64 `json:"features"`
}

func (args *extractArgs) Handle() (err error) {
	c, samples, loader, err := args.load("extract")
	if err != nil {
		return err
	}
	enc, err := serialization.NewEncoder(args.Output)
	if err != nil {
		return err
	}
	defer errors.Defer(&err, enc.Close)

	ctx, cancel := interruptible()
	defer cancel()

	var written int
	for _, idx := range dataset.Batches(len(samples), args.BatchSize, nil) {
		batch, err := loader.Load(ctx, dataset.Select(samples, idx))
		if err == dataset.ErrEmptyBatch {
			continue
		}
		if err != nil {
			return err
		}
		feats, err := c.FeatureExtract(batch)
		if err != nil {
			return err
		}
		for i, id := range batch.IDs {
			f := features{
				ID:       id,
				Label:    dataset.Label(batch.Labels[i]).String(),
				Features: append([]float64(nil), feats.RawRowView(i)...),
			}
			if err := enc.Encode(f); err != nil {
				return errors.Wrapf(err, "error writing features")
			}
			written++
		}
	}
	fmt.Printf("wrote features for %d of %d samples to %s\n", written, len(samples), args.Output)
	return nil
}
