// Package dataset turns annotation records into batches of decoded, normalized multi-view clips.
package dataset

import (
	"fmt"
	"path"

	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/kiteco/skillview/kite-golib/serialization"
)

// Record is one line of an annotation file.
type Record struct {
	VideoPaths       []string `json:"video_paths"`
	ProficiencyLevel *string  `json:"proficiency_level"`
	Analysis         string   `json:"analysis"`
}

// Sample is a labeled recording: one video per camera, in camera order.
type Sample struct {
	ID         string
	VideoPaths []string
	Label      string
}

// LoadSamples reads an annotation file (.jsonl, optionally compressed). Lines without
// video_paths or proficiency_level are skipped.
func LoadSamples(annotations string) ([]Sample, error) {
	var (
		samples []Sample
		line    int
	)
	base := path.Base(annotations)
	err := serialization.Decode(annotations, func(r *Record) {
		line++
		if r.VideoPaths == nil || r.ProficiencyLevel == nil {
			return
		}
		samples = append(samples, Sample{
			ID:         fmt.Sprintf("%s:%d", base, line),
			VideoPaths: r.VideoPaths,
			Label:      *r.ProficiencyLevel,
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error loading annotations")
	}
	return samples, nil
}
