// Package model assembles the per-view encoder, the view fusion projector and the
// classification head into the skill-proficiency classifier.
package model

import (
	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-go/skill/encoder"
	"github.com/kiteco/skillview/kite-go/skill/fusion"
	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/kiteco/skillview/kite-golib/serialization"
)

// Config is the model record written next to every checkpoint.
type Config struct {
	VisionEncoderID string `json:"vision_encoder_id"`
	NumFrames       int    `json:"num_frames"`
	NumClasses      int    `json:"num_classes"`
	NumViews        int    `json:"num_views"`

	// EncoderWeights is the pretrained weight file; empty means weights seeded from Seed.
	EncoderWeights string              `json:"encoder_weights,omitempty"`
	Seed           int64               `json:"seed"`
	Adapter        encoder.AdapterSpec `json:"adapter"`
	Projector      fusion.Options      `json:"projector"`
}

// DefaultConfig returns the classifier used for the proficiency benchmark.
func DefaultConfig() Config {
	return Config{
		VisionEncoderID: encoder.DefaultEncoderID,
		NumFrames:       16,
		NumClasses:      dataset.NumLabels,
		NumViews:        4,
		Adapter:         encoder.DefaultAdapterSpec(),
		Projector:       fusion.DefaultOptions(),
	}
}

// SaveConfig writes cfg to path; the format follows the extension.
func SaveConfig(path string, cfg Config) error {
	return errors.WrapfOrNil(serialization.Encode(path, cfg), "error saving model config")
}

// LoadConfig reads a config written by SaveConfig.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := serialization.Decode(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "error loading model config")
	}
	if cfg.NumClasses == 0 {
		cfg.NumClasses = dataset.NumLabels
	}
	return cfg, nil
}
