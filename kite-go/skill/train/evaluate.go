package train

import (
	"context"

	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-go/skill/model"
	"github.com/kiteco/skillview/kite-golib/autodiff"
	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
)

// Prediction is the classifier output for one sample.
type Prediction struct {
	ID        string        `json:"id"`
	Label     dataset.Label `json:"label"`
	Predicted dataset.Label `json:"predicted"`
}

// Report summarizes an evaluation or inference pass.
type Report struct {
	Predictions []Prediction `json:"predictions"`
	Loss        float64      `json:"loss"`
	Accuracy    float64      `json:"accuracy"`
	// Skipped counts batches in which no sample could be decoded.
	Skipped int `json:"skipped_batches"`
}

// Evaluator runs the classifier over samples without updating it.
type Evaluator struct {
	Model     *model.Classifier
	Loader    *dataset.Loader
	BatchSize int
	Metrics   *Metrics
	// Progress shows a progress bar over batches.
	Progress bool
}

// Run classifies samples in order. Samples whose views all fail are left out of the report.
func (e Evaluator) Run(ctx context.Context, samples []dataset.Sample) (Report, error) {
	batches := dataset.Batches(len(samples), e.BatchSize, nil)

	var (
		rep     Report
		lossSum float64
		seen    int
		runErr  error
	)
	each := func(i int) bool {
		if err := ctx.Err(); err != nil {
			runErr = err
			return true
		}
		batch, err := e.Loader.Load(ctx, dataset.Select(samples, batches[i]))
		if err == dataset.ErrEmptyBatch {
			rep.Skipped++
			e.Metrics.SkippedBatches.Add(1)
			return false
		}
		if err != nil {
			runErr = err
			return true
		}

		out, err := e.Model.Forward(autodiff.NewEvalTape(), batch)
		if err != nil {
			runErr = err
			return true
		}
		lossSum += out.Loss.Scalar() * float64(batch.Size())
		seen += batch.Size()
		for j, p := range model.Predictions(out.Logits.Value) {
			pred := Prediction{ID: batch.IDs[j], Label: dataset.Label(batch.Labels[j]), Predicted: dataset.Label(p)}
			e.Metrics.Correct.Record(pred.Label == pred.Predicted)
			e.Metrics.Predictions.HitAndAdd(pred.Predicted.String())
			rep.Predictions = append(rep.Predictions, pred)
		}
		return false
	}

	if e.Progress {
		err := tqdm.With(iterators.Interval(0, len(batches)), "Classifying", func(v interface{}) (brk bool) {
			return each(v.(int))
		})
		if err != nil && runErr == nil {
			runErr = err
		}
	} else {
		for i := range batches {
			if each(i) {
				break
			}
		}
	}
	if runErr != nil {
		return rep, errors.Wrapf(runErr, "error classifying samples")
	}

	if seen > 0 {
		rep.Loss = lossSum / float64(seen)
		var correct int
		for _, p := range rep.Predictions {
			if p.Label == p.Predicted {
				correct++
			}
		}
		rep.Accuracy = float64(correct) / float64(seen)
	}
	return rep, nil
}
