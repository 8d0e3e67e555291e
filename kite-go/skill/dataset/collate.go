package dataset

import (
	"github.com/kiteco/skillview/kite-golib/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrEmptyBatch is returned by Collate when no sample of a batch is usable.
var ErrEmptyBatch = errors.New("batch has no usable samples")

// Batch holds normalized pixels shaped (B, V, T, C, H, W) with one label per sample.
type Batch struct {
	Pixels []float64
	Shape  [6]int
	Labels []int
	IDs    []string
}

// Size returns the number of samples B.
func (b *Batch) Size() int {
	return b.Shape[0]
}

// Views returns the number of views V.
func (b *Batch) Views() int {
	return b.Shape[1]
}

// View returns the clip of view v of sample i as a T × (C·H·W) matrix sharing the batch memory.
func (b *Batch) View(i, v int) *mat.Dense {
	t, frame := b.Shape[2], b.Shape[3]*b.Shape[4]*b.Shape[5]
	clip := t * frame
	off := (i*b.Shape[1] + v) * clip
	return mat.NewDense(t, frame, b.Pixels[off:off+clip])
}

// Collator stacks fetched samples into batches.
type Collator struct {
	// NumViews is the view count every sample of a batch must have. Zero takes it from
	// the first usable sample.
	NumViews   int
	Normalizer Normalizer
	Metrics    *Metrics
}

// Collate drops failed results and results with the wrong number of views, then
// normalizes and stacks the rest. It returns ErrEmptyBatch when nothing is left.
func (c Collator) Collate(results []Result) (*Batch, error) {
	views := c.NumViews
	var keep []Result
	for _, r := range results {
		if r.Failed() {
			continue
		}
		if views <= 0 {
			views = len(r.Views)
		}
		if len(r.Views) != views {
			c.Metrics.SamplesMismatch.Add(1)
			continue
		}
		keep = append(keep, r)
	}
	if len(keep) == 0 {
		c.Metrics.EmptyBatches.Add(1)
		return nil, ErrEmptyBatch
	}

	t := keep[0].Views[0].T
	s := c.Normalizer.Size
	b := &Batch{Shape: [6]int{len(keep), views, t, 3, s, s}}
	clip := t * c.Normalizer.FrameDim()
	b.Pixels = make([]float64, len(keep)*views*clip)
	for i, r := range keep {
		for v, vt := range r.Views {
			if vt.T != t {
				return nil, errors.Errorf("sample %s: view %d has %d frames, expected %d", r.Sample.ID, v, vt.T, t)
			}
			off := (i*views + v) * clip
			c.Normalizer.Apply(vt, b.Pixels[off:off+clip])
		}
		b.Labels = append(b.Labels, int(r.Label))
		b.IDs = append(b.IDs, r.Sample.ID)
	}
	c.Metrics.SamplesCollated.Add(int64(len(keep)))
	return b, nil
}
