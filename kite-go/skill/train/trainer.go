package train

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/montanaflynn/stats"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-go/skill/model"
	"github.com/kiteco/skillview/kite-golib/autodiff"
	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/kiteco/skillview/kite-golib/fileutil"
	"github.com/kiteco/skillview/kite-golib/kitelog"
	"github.com/kiteco/skillview/kite-golib/nn"
	"github.com/kiteco/skillview/kite-golib/serialization"
	"github.com/kiteco/skillview/kite-golib/status"
	"github.com/kiteco/skillview/kite-golib/steplog"
)

// Inputs are the samples and sinks of a training run. Nil sinks get process defaults.
type Inputs struct {
	Train []dataset.Sample
	Eval  []dataset.Sample

	// Open opens videos by resolved path; nil decodes with ffmpeg.
	Open dataset.SourceFunc

	DatasetMetrics *dataset.Metrics
	Metrics        *Metrics
	Log            *kitelog.Logger
	Steps          *zap.Logger
}

// EpochStats summarize one pass over the training samples.
type EpochStats struct {
	Epoch   int `json:"epoch"`
	Batches int `json:"batches"`
	Skipped int `json:"skipped_batches"`

	LossMean   float64 `json:"loss_mean"`
	LossStdDev float64 `json:"loss_stddev"`
	LossMedian float64 `json:"loss_median"`

	Evaluated    bool    `json:"evaluated"`
	EvalLoss     float64 `json:"eval_loss"`
	EvalAccuracy float64 `json:"eval_accuracy"`

	Checkpoint string `json:"checkpoint,omitempty"`
}

// Results describe a finished training run.
type Results struct {
	RunID  string       `json:"run_id"`
	Steps  int          `json:"steps"`
	Epochs []EpochStats `json:"epochs"`
	// Losses holds the loss of every micro-batch, in order.
	Losses         []float64 `json:"losses"`
	BestCheckpoint string    `json:"best_checkpoint,omitempty"`
}

type checkpoint struct {
	dir       string
	evaluated bool
	accuracy  float64
	loss      float64
}

// better reports whether c should replace best as the retained best checkpoint.
func (c checkpoint) better(best checkpoint) bool {
	if !c.evaluated || !best.evaluated {
		return true
	}
	if c.accuracy != best.accuracy {
		return c.accuracy > best.accuracy
	}
	return c.loss <= best.loss
}

// Trainer fine-tunes the classifier's adapters, projector and head.
type Trainer struct {
	opts  Options
	in    Inputs
	runID string

	model    *model.Classifier
	params   []*nn.Param
	loader   *dataset.Loader
	eval     Evaluator
	optim    *nn.AdamW
	schedule nn.Schedule

	log     *kitelog.Logger
	steps   *zap.Logger
	metrics *Metrics

	pending     []float64
	checkpoints []checkpoint
	best        checkpoint
}

// NewTrainer builds the classifier and data pipeline described by opts.
func NewTrainer(opts Options, in Inputs) (*Trainer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(in.Train) == 0 {
		return nil, errors.New("no training samples")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrapf(err, "error generating run id")
	}
	runID := id.String()
	if in.Log == nil {
		in.Log = kitelog.NewForRun(runID, "train")
	}
	if in.Steps == nil {
		in.Steps = steplog.Logger.With(zap.String("run", runID))
	}
	if in.DatasetMetrics == nil {
		in.DatasetMetrics = dataset.DefaultMetrics
	}
	if in.Metrics == nil {
		in.Metrics = DefaultMetrics
	}

	c, err := model.New(opts.ModelConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "error building classifier")
	}
	in.Log.Println(nn.TrainableReport(c.Params()))

	enc := c.Encoder.Config()
	loader, err := NewLoader(opts, enc, in.Open, in.DatasetMetrics, in.Log, opts.Seed)
	if err != nil {
		return nil, err
	}
	evalLoader, err := NewLoader(opts, enc, in.Open, in.DatasetMetrics, in.Log, opts.Seed+1)
	if err != nil {
		return nil, err
	}

	batches := (len(in.Train) + opts.BatchSize - 1) / opts.BatchSize
	total := opts.Epochs * ((batches + opts.GradAccumSteps - 1) / opts.GradAccumSteps)
	warmup := int(math.Ceil(opts.WarmupRatio * float64(total)))
	schedule, err := nn.NewSchedule(opts.Scheduler, warmup, total)
	if err != nil {
		return nil, err
	}

	return &Trainer{
		opts:   opts,
		in:     in,
		runID:  runID,
		model:  c,
		params: c.TrainableParams(),
		loader: loader,
		eval: Evaluator{
			Model:     c,
			Loader:    evalLoader,
			BatchSize: opts.BatchSize,
			Metrics:   in.Metrics,
		},
		optim:    nn.NewAdamW(opts.WeightDecay),
		schedule: schedule,
		log:      in.Log.WithDurations(),
		steps:    in.Steps,
		metrics:  in.Metrics,
	}, nil
}

// Model returns the classifier being trained.
func (t *Trainer) Model() *model.Classifier {
	return t.model
}

// RunID identifies the run in logs and outputs.
func (t *Trainer) RunID() string {
	return t.runID
}

// Loader returns the training sample loader.
func (t *Trainer) Loader() *dataset.Loader {
	return t.loader
}

// Train runs every epoch, evaluating and checkpointing after each one when eval samples
// and an output directory are configured. The context is checked between batches.
func (t *Trainer) Train(ctx context.Context) (Results, error) {
	res := Results{RunID: t.runID}
	rng := rand.New(rand.NewSource(t.opts.Seed))

	for epoch := 1; epoch <= t.opts.Epochs; epoch++ {
		es, err := t.trainEpoch(ctx, epoch, rng, &res)
		res.Steps = t.optim.Steps()
		if err != nil {
			return res, errors.Wrapf(err, "epoch %d", epoch)
		}

		if len(t.in.Eval) > 0 {
			start := time.Now()
			rep, err := t.eval.Run(ctx, t.in.Eval)
			if err != nil {
				return res, errors.Wrapf(err, "error evaluating epoch %d", epoch)
			}
			t.log.Durations.Record("eval", time.Since(start))
			es.Evaluated = true
			es.EvalLoss, es.EvalAccuracy = rep.Loss, rep.Accuracy
			steplog.Eval(t.steps, epoch, rep.Loss, rep.Accuracy)
		}

		if t.opts.OutputDir != "" {
			dir, err := t.saveCheckpoint(es)
			if err != nil {
				return res, err
			}
			es.Checkpoint = dir
		}

		t.log.Printf("epoch %d: %d batches (%d skipped), loss %.4f ± %.4f", epoch, es.Batches, es.Skipped, es.LossMean, es.LossStdDev)
		t.log.Durations.Flush(t.log)
		res.Epochs = append(res.Epochs, es)
	}

	res.BestCheckpoint = t.best.dir
	if t.opts.OutputDir != "" {
		if err := t.writeOutputs(res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (t *Trainer) trainEpoch(ctx context.Context, epoch int, rng *rand.Rand, res *Results) (EpochStats, error) {
	es := EpochStats{Epoch: epoch}
	var (
		losses []float64
		micro  int
	)

	for _, idx := range dataset.Batches(len(t.in.Train), t.opts.BatchSize, rng) {
		if err := ctx.Err(); err != nil {
			return es, err
		}

		start := time.Now()
		batch, err := t.loader.Load(ctx, dataset.Select(t.in.Train, idx))
		t.log.Durations.Record("load", time.Since(start))
		if err == dataset.ErrEmptyBatch {
			es.Skipped++
			t.metrics.SkippedBatches.Add(1)
			continue
		}
		if err != nil {
			return es, err
		}

		start = time.Now()
		tape := autodiff.NewTape(rng)
		out, err := t.model.Forward(tape, batch)
		if err != nil {
			return es, err
		}
		tape.Backward(tape.Scale(out.Loss, 1/float64(t.opts.GradAccumSteps)))
		t.log.Durations.Record("forward+backward", time.Since(start))

		loss := out.Loss.Scalar()
		losses = append(losses, loss)
		res.Losses = append(res.Losses, loss)
		es.Batches++

		micro++
		if micro == t.opts.GradAccumSteps {
			t.step(epoch, losses[len(losses)-micro:])
			micro = 0
		}
	}
	if micro > 0 {
		t.step(epoch, losses[len(losses)-micro:])
	}

	if len(losses) > 0 {
		es.LossMean, _ = stats.Mean(losses)
		es.LossMedian, _ = stats.Median(losses)
	}
	if len(losses) > 1 {
		es.LossStdDev, _ = stats.StdDevS(losses)
	}
	return es, nil
}

// step applies the accumulated gradients of the micro-batches whose losses are given.
func (t *Trainer) step(epoch int, losses []float64) {
	start := time.Now()
	nn.ClipGradNorm(t.params, t.opts.MaxGradNorm)
	lr := t.opts.LearningRate * t.schedule(t.optim.Steps())
	t.optim.Step(t.params, lr)
	nn.ZeroGrads(t.params)
	t.metrics.Steps.Add(1)
	t.log.Durations.Record("optimizer", time.Since(start))

	t.pending = append(t.pending, losses...)
	if t.opts.LoggingSteps > 0 && t.optim.Steps()%t.opts.LoggingSteps == 0 {
		mean, _ := stats.Mean(t.pending)
		steplog.Step(t.steps, epoch, t.optim.Steps(), mean, lr)
		t.pending = t.pending[:0]
	}
}

// saveCheckpoint exports the model after an epoch and prunes old checkpoints, always keeping
// the best. It returns "" without writing anything when the new checkpoint would be pruned
// right away, which happens once the limit is reached and an older checkpoint is better.
func (t *Trainer) saveCheckpoint(es EpochStats) (string, error) {
	dir := fileutil.Join(t.opts.OutputDir, fmt.Sprintf("checkpoint-%d", t.optim.Steps()))
	c := checkpoint{dir: dir, evaluated: es.Evaluated, accuracy: es.EvalAccuracy, loss: es.EvalLoss}

	var all []checkpoint
	for _, old := range t.checkpoints {
		if old.dir != dir {
			all = append(all, old)
		}
	}
	all = append(all, c)
	best := t.best
	if best.dir == "" || best.dir == dir || c.better(best) {
		best = c
	}
	kept, removed := prune(all, best.dir, t.opts.SaveTotalLimit)

	saved := len(kept) > 0 && kept[len(kept)-1].dir == dir
	if saved {
		if err := t.model.SaveFeatureExtractor(dir); err != nil {
			return "", errors.Wrapf(err, "error saving checkpoint")
		}
	}
	for _, r := range removed {
		if r.dir == dir {
			continue
		}
		if err := os.RemoveAll(r.dir); err != nil {
			return "", errors.Wrapf(err, "error removing checkpoint")
		}
	}
	t.checkpoints, t.best = kept, best
	if !saved {
		t.log.Printf("not keeping %s: limit %d reached and %s is better", dir, t.opts.SaveTotalLimit, best.dir)
		return "", nil
	}
	return dir, nil
}

// prune drops the oldest checkpoints other than best until at most limit remain.
// A limit below 1 keeps everything.
func prune(cs []checkpoint, best string, limit int) (kept, removed []checkpoint) {
	excess := len(cs) - limit
	for _, c := range cs {
		if limit > 0 && excess > 0 && c.dir != best {
			removed = append(removed, c)
			excess--
			continue
		}
		kept = append(kept, c)
	}
	return kept, removed
}

// writeOutputs exports the final model with the run results, the status snapshot and a loss plot.
func (t *Trainer) writeOutputs(res Results) error {
	out := t.opts.OutputDir
	if err := t.model.SaveFeatureExtractor(fileutil.Join(out, "feature_extractor")); err != nil {
		return errors.Wrapf(err, "error exporting model")
	}
	if err := serialization.Encode(fileutil.Join(out, "results.json"), res); err != nil {
		return errors.Wrapf(err, "error writing results")
	}
	if err := status.Get().WriteJSON(fileutil.Join(out, "status.json")); err != nil {
		return errors.Wrapf(err, "error writing status")
	}
	if len(res.Losses) > 0 {
		if err := PlotLoss(fileutil.Join(out, "loss.png"), res.Losses); err != nil {
			return err
		}
	}
	return nil
}
