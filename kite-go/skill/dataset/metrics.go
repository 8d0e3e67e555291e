package dataset

import "github.com/kiteco/skillview/kite-golib/status"

// Metrics counts what the pipeline dropped or coerced.
type Metrics struct {
	DecodeFailures  *status.Counter
	SamplesFailed   *status.Counter
	SamplesMismatch *status.Counter
	SamplesCollated *status.Counter
	LabelsCoerced   *status.Counter
	EmptyBatches    *status.Counter
	ViewsDecoded    *status.Ratio
	Labels          *status.Breakdown
}

// NewMetrics registers the dataset metrics in section.
func NewMetrics(section *status.Section) *Metrics {
	labels := section.Breakdown("label distribution")
	labels.AddCategories(labelNames[:]...)
	return &Metrics{
		DecodeFailures:  section.Counter("views dropped after decode errors"),
		SamplesFailed:   section.Counter("samples failed (no decodable view)"),
		SamplesMismatch: section.Counter("samples dropped (view count mismatch)"),
		SamplesCollated: section.Counter("samples collated"),
		LabelsCoerced:   section.Counter("labels coerced to novice"),
		EmptyBatches:    section.Counter("empty batches"),
		ViewsDecoded:    section.Ratio("views decoded"),
		Labels:          labels,
	}
}

// DefaultMetrics reports to the "dataset" status section.
var DefaultMetrics = NewMetrics(status.NewSection("dataset"))
