package train

import (
	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-golib/status"
)

// Metrics count what the trainer and inference runner did.
type Metrics struct {
	Steps          *status.Counter
	SkippedBatches *status.Counter
	Correct        *status.Ratio
	Predictions    *status.Breakdown
}

// NewMetrics registers the run metrics in section.
func NewMetrics(section *status.Section) *Metrics {
	predictions := section.Breakdown("predicted class distribution")
	for l := dataset.Label(0); l < dataset.NumLabels; l++ {
		predictions.AddCategories(l.String())
	}
	return &Metrics{
		Steps:          section.Counter("optimizer steps"),
		SkippedBatches: section.Counter("batches skipped (no usable sample)"),
		Correct:        section.Ratio("predictions correct"),
		Predictions:    predictions,
	}
}

// DefaultMetrics reports to the "train" status section.
var DefaultMetrics = NewMetrics(status.NewSection("train"))
