package model

import (
	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/kiteco/skillview/kite-golib/fileutil"
	"github.com/kiteco/skillview/kite-golib/nn"
)

const (
	// ConfigFile holds the model Config inside an export directory.
	ConfigFile = "config.json"
	// WeightsFile holds the checkpointed parameters inside an export directory.
	WeightsFile = "weights.gob.snappy"
)

// checkpointParams are the parameters not recoverable from the config alone: everything
// trainable, the resized time embedding, the projector and the head.
func (c *Classifier) checkpointParams() []*nn.Param {
	var out []*nn.Param
	seen := make(map[*nn.Param]bool)
	add := func(ps ...*nn.Param) {
		for _, p := range ps {
			if p != nil && !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	add(nn.Trainable(c.Encoder.Params())...)
	add(c.Encoder.TimeEmbedding())
	add(c.Projector.Params()...)
	add(c.Head.Params()...)
	return out
}

// SaveFeatureExtractor writes the config and checkpointed weights to dir.
func (c *Classifier) SaveFeatureExtractor(dir string) (err error) {
	if err := SaveConfig(fileutil.Join(dir, ConfigFile), c.cfg); err != nil {
		return err
	}

	f, err := fileutil.NewWriter(fileutil.Join(dir, WeightsFile))
	if err != nil {
		return errors.Wrapf(err, "error creating weights file")
	}
	defer errors.Defer(&err, f.Close)
	return errors.WrapfOrNil(nn.SaveParams(f, c.checkpointParams()), "error saving weights")
}

// LoadFeatureExtractor rebuilds a classifier exported by SaveFeatureExtractor.
func LoadFeatureExtractor(dir string) (*Classifier, error) {
	cfg, err := LoadConfig(fileutil.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}

	r, err := fileutil.NewReader(fileutil.Join(dir, WeightsFile))
	if err != nil {
		return nil, errors.Wrapf(err, "error opening weights")
	}
	defer r.Close()
	if err := nn.LoadParams(r, c.checkpointParams(), true); err != nil {
		return nil, errors.Wrapf(err, "error loading weights from %s", dir)
	}
	return c, nil
}
