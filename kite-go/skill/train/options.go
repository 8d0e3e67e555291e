// Package train runs fine-tuning, evaluation and inference for the skill classifier.
package train

import (
	"fmt"

	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-go/skill/encoder"
	"github.com/kiteco/skillview/kite-go/skill/fusion"
	"github.com/kiteco/skillview/kite-go/skill/model"
	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/kiteco/skillview/kite-golib/nn"
	"github.com/kiteco/skillview/kite-golib/serialization"
)

// Options configure a training or inference run. They are read from YAML and may be
// overridden from the command line.
type Options struct {
	TrainAnnotations string `yaml:"train_annotations"`
	EvalAnnotations  string `yaml:"eval_annotations"`
	VideoRoot        string `yaml:"video_root"`
	OutputDir        string `yaml:"output_dir"`

	// Cameras are the view indices read from each record, in order.
	Cameras    []int `yaml:"cameras"`
	ClipLen    int   `yaml:"clip_len"`
	SampleRate int   `yaml:"sample_rate"`
	Workers    int   `yaml:"workers"`

	EncoderID      string              `yaml:"vision_encoder_id"`
	EncoderWeights string              `yaml:"encoder_weights"`
	Adapter        encoder.AdapterSpec `yaml:"adapter"`
	Projector      fusion.Options      `yaml:"projector"`

	Epochs         int     `yaml:"epochs"`
	BatchSize      int     `yaml:"batch_size"`
	LearningRate   float64 `yaml:"learning_rate"`
	Scheduler      string  `yaml:"lr_scheduler_type"`
	WeightDecay    float64 `yaml:"weight_decay"`
	WarmupRatio    float64 `yaml:"warmup_ratio"`
	MaxGradNorm    float64 `yaml:"max_grad_norm"`
	LoggingSteps   int     `yaml:"logging_steps"`
	GradAccumSteps int     `yaml:"gradient_accumulation_steps"`
	SaveTotalLimit int     `yaml:"save_total_limit"`
	Seed           int64   `yaml:"seed"`
}

// DefaultOptions returns the settings of the reference fine-tuning run.
func DefaultOptions() Options {
	return Options{
		Cameras:        []int{0, 1, 2, 3},
		ClipLen:        16,
		SampleRate:     4,
		Workers:        4,
		EncoderID:      encoder.DefaultEncoderID,
		Adapter:        encoder.DefaultAdapterSpec(),
		Projector:      fusion.DefaultOptions(),
		Epochs:         10,
		BatchSize:      4,
		LearningRate:   5e-5,
		Scheduler:      nn.ScheduleCosineWithRestarts,
		WeightDecay:    0.01,
		WarmupRatio:    0.1,
		MaxGradNorm:    1.0,
		LoggingSteps:   10,
		GradAccumSteps: 4,
		SaveTotalLimit: 2,
		Seed:           42,
	}
}

// LoadOptions reads options from a YAML file; fields it does not set keep their defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if err := serialization.Decode(path, &opts); err != nil {
		return Options{}, errors.Wrapf(err, "error loading options")
	}
	return opts, opts.Validate()
}

// NumViews is the number of views every sample must provide.
func (o Options) NumViews() int {
	return len(o.Cameras)
}

// Validate checks the options for values no run can use.
func (o Options) Validate() error {
	switch {
	case o.NumViews() == 0:
		return fmt.Errorf("at least one camera is required")
	case o.ClipLen < 1:
		return fmt.Errorf("clip_len must be positive, got %d", o.ClipLen)
	case o.SampleRate < 1:
		return fmt.Errorf("sample_rate must be positive, got %d", o.SampleRate)
	case o.BatchSize < 1:
		return fmt.Errorf("batch_size must be positive, got %d", o.BatchSize)
	case o.GradAccumSteps < 1:
		return fmt.Errorf("gradient_accumulation_steps must be positive, got %d", o.GradAccumSteps)
	case o.WarmupRatio < 0 || o.WarmupRatio > 1:
		return fmt.Errorf("warmup_ratio %v out of range [0,1]", o.WarmupRatio)
	}
	for _, c := range o.Cameras {
		if c < 0 {
			return fmt.Errorf("negative camera index %d", c)
		}
	}
	if _, err := nn.NewSchedule(o.Scheduler, 0, 1); err != nil {
		return err
	}
	return nil
}

// ModelConfig returns the classifier configuration described by the options.
func (o Options) ModelConfig() model.Config {
	return model.Config{
		VisionEncoderID: o.EncoderID,
		NumFrames:       o.ClipLen,
		NumClasses:      dataset.NumLabels,
		NumViews:        o.NumViews(),
		EncoderWeights:  o.EncoderWeights,
		Seed:            o.Seed,
		Adapter:         o.Adapter,
		Projector:       o.Projector,
	}
}
