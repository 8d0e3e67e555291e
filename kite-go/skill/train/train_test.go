package train

import (
	"context"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-go/skill/frames"
	"github.com/kiteco/skillview/kite-go/skill/model"
	"github.com/kiteco/skillview/kite-golib/autodiff"
	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/kiteco/skillview/kite-golib/kitelog"
	"github.com/kiteco/skillview/kite-golib/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func tinyOptions(dir string) Options {
	opts := DefaultOptions()
	opts.VideoRoot = "/videos"
	opts.OutputDir = dir
	opts.Cameras = []int{0, 1}
	opts.ClipLen = 4
	opts.SampleRate = 1
	opts.Workers = 2
	opts.EncoderID = "skillview/timesformer-tiny"
	opts.Adapter.Rank = 2
	opts.Adapter.Alpha = 4
	opts.Projector.HiddenDim = 16
	opts.Projector.OutputDim = 8
	opts.Projector.Heads = 2
	opts.Epochs = 2
	opts.BatchSize = 2
	opts.GradAccumSteps = 1
	opts.LearningRate = 1e-2
	opts.WarmupRatio = 0
	opts.LoggingSteps = 1
	return opts
}

// record returns a two-view sample whose videos exist unless missing is set.
func record(id, label string, missing bool) dataset.Sample {
	dir := id
	if missing {
		dir = "missing/" + id
	}
	return dataset.Sample{
		ID:         id,
		VideoPaths: []string{dir + "/cam01.mp4", dir + "/cam02.mp4"},
		Label:      label,
	}
}

// syntheticVideos serves a fresh 10 frame 16x16 video for every path not under missing/.
func syntheticVideos(p string) frames.Source {
	if strings.HasPrefix(p, "/videos/missing/") {
		return &frames.MemorySource{Name: p, OpenErr: os.ErrNotExist}
	}
	return frames.SyntheticSource(p, 10, 16, 16)
}

func testInputs(t *testing.T, train, eval []dataset.Sample) Inputs {
	return Inputs{
		Train:          train,
		Eval:           eval,
		Open:           syntheticVideos,
		DatasetMetrics: dataset.NewMetrics(status.NewSection("train test dataset " + t.Name())),
		Metrics:        NewMetrics(status.NewSection("train test " + t.Name())),
		Log:            kitelog.NewForRunTo(ioutil.Discard, "test", "train"),
		Steps:          zap.NewNop(),
	}
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "train")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(tempDir(t), "train.yaml")
	yml := "cameras: [1, 3]\nclip_len: 8\nadapter:\n  r: 4\nlr_scheduler_type: linear\n"
	require.NoError(t, ioutil.WriteFile(path, []byte(yml), 0644))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, opts.Cameras)
	assert.Equal(t, 2, opts.NumViews())
	assert.Equal(t, 8, opts.ClipLen)
	assert.Equal(t, 4, opts.Adapter.Rank)
	assert.Equal(t, "linear", opts.Scheduler)
	assert.Equal(t, 5e-5, opts.LearningRate)
	assert.Equal(t, 4, opts.SampleRate)

	cfg := opts.ModelConfig()
	assert.Equal(t, 8, cfg.NumFrames)
	assert.Equal(t, 2, cfg.NumViews)
	assert.Equal(t, dataset.NumLabels, cfg.NumClasses)
}

func TestOptionsValidate(t *testing.T) {
	opts := DefaultOptions()
	require.NoError(t, opts.Validate())

	opts.Scheduler = "polynomial"
	assert.Error(t, opts.Validate())

	opts = DefaultOptions()
	opts.Cameras = nil
	assert.Error(t, opts.Validate())

	opts = DefaultOptions()
	opts.GradAccumSteps = 0
	assert.Error(t, opts.Validate())
}

func TestEndToEndShapes(t *testing.T) {
	annotations := filepath.Join(tempDir(t), "train.jsonl")
	jsonl := `{"video_paths": ["r0/cam01.mp4", "r0/cam02.mp4"], "proficiency_level": "novice"}
{"video_paths": ["r1/cam01.mp4", "r1/cam02.mp4"], "proficiency_level": "late expert"}
`
	require.NoError(t, ioutil.WriteFile(annotations, []byte(jsonl), 0644))
	samples, err := dataset.LoadSamples(annotations)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	tr, err := NewTrainer(tinyOptions(""), testInputs(t, samples, nil))
	require.NoError(t, err)

	batch, err := tr.Loader().Load(context.Background(), samples)
	require.NoError(t, err)
	assert.Equal(t, [6]int{2, 2, 4, 3, 16, 16}, batch.Shape)
	assert.Equal(t, []int{0, 3}, batch.Labels)

	// synthetic pixels hold the frame index
	for i := 0; i < 2; i++ {
		for v := 0; v < 2; v++ {
			view := batch.View(i, v)
			for f := 0; f < 4; f++ {
				idx := math.Round((view.At(f, 0)*0.225 + 0.45) * 255)
				assert.True(t, idx >= 0 && idx <= 9, "index %v", idx)
			}
		}
	}

	out, err := tr.Model().Forward(autodiff.NewEvalTape(), batch)
	require.NoError(t, err)
	r, c := out.Logits.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, c)
}

func TestTrainWritesOutputs(t *testing.T) {
	dir := tempDir(t)
	train := []dataset.Sample{
		record("a", "Novice", false),
		record("b", "Early Expert", false),
		record("c", "Intermediate Expert", false),
		record("d", "Late Expert", false),
	}
	eval := []dataset.Sample{record("e", "Novice", false), record("f", "Late Expert", false)}
	opts := tinyOptions(dir)
	opts.Epochs = 3

	tr, err := NewTrainer(opts, testInputs(t, train, eval))
	require.NoError(t, err)
	head := mat.DenseCopyOf(tr.Model().Head.Weight.Value)

	res, err := tr.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Steps)
	assert.Len(t, res.Losses, 6)
	require.Len(t, res.Epochs, 3)
	for _, es := range res.Epochs {
		assert.Equal(t, 2, es.Batches)
		assert.True(t, es.Evaluated)
		assert.True(t, es.EvalAccuracy >= 0 && es.EvalAccuracy <= 1)
		assert.False(t, math.IsNaN(es.LossMean))
	}
	assert.False(t, mat.Equal(head, tr.Model().Head.Weight.Value))

	for _, name := range []string{"results.json", "status.json", "loss.png", "feature_extractor/" + model.ConfigFile, "feature_extractor/" + model.WeightsFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	ckpts, err := filepath.Glob(filepath.Join(dir, "checkpoint-*"))
	require.NoError(t, err)
	assert.Len(t, ckpts, 2)
	require.NotEmpty(t, res.BestCheckpoint)
	assert.Contains(t, ckpts, res.BestCheckpoint)

	loaded, err := model.LoadFeatureExtractor(res.BestCheckpoint)
	require.NoError(t, err)
	assert.Equal(t, tr.Model().Config(), loaded.Config())
}

func TestEmptyBatchesNeverStep(t *testing.T) {
	train := []dataset.Sample{record("a", "Novice", true), record("b", "Novice", true), record("c", "Novice", true)}
	in := testInputs(t, train, nil)
	tr, err := NewTrainer(tinyOptions(""), in)
	require.NoError(t, err)
	params := tr.Model().TrainableParams()
	before := make([]*mat.Dense, len(params))
	for i, p := range params {
		before[i] = mat.DenseCopyOf(p.Value)
	}

	res, err := tr.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Steps)
	assert.Empty(t, res.Losses)
	for _, es := range res.Epochs {
		assert.Equal(t, 0, es.Batches)
		assert.Equal(t, 2, es.Skipped)
	}
	assert.EqualValues(t, 4, in.Metrics.SkippedBatches.GetValue())
	assert.EqualValues(t, 0, in.Metrics.Steps.GetValue())
	for i, p := range params {
		assert.True(t, mat.Equal(before[i], p.Value), p.Name)
	}
}

func TestFailingSampleExcluded(t *testing.T) {
	train := []dataset.Sample{record("good", "Early Expert", false), record("bad", "Novice", true)}
	in := testInputs(t, train, nil)
	opts := tinyOptions("")
	opts.Epochs = 1
	tr, err := NewTrainer(opts, in)
	require.NoError(t, err)

	batch, err := tr.Loader().Load(context.Background(), train)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, batch.IDs)

	res, err := tr.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, 1, res.Epochs[0].Batches)
	assert.EqualValues(t, 2, in.DatasetMetrics.SamplesFailed.GetValue())
}

func TestTrainStopsOnCancel(t *testing.T) {
	tr, err := NewTrainer(tinyOptions(""), testInputs(t, []dataset.Sample{record("a", "Novice", false)}, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := tr.Train(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, res.Steps)
}

func TestEvaluatorReport(t *testing.T) {
	samples := []dataset.Sample{
		record("a", "Novice", false),
		record("b", "Late Expert", true),
		record("c", "Late Expert", false),
	}
	in := testInputs(t, samples, nil)
	tr, err := NewTrainer(tinyOptions(""), in)
	require.NoError(t, err)

	ev := Evaluator{Model: tr.Model(), Loader: tr.Loader(), BatchSize: 1, Metrics: in.Metrics, Progress: true}
	rep, err := ev.Run(context.Background(), samples)
	require.NoError(t, err)
	require.Len(t, rep.Predictions, 2)
	assert.Equal(t, "a", rep.Predictions[0].ID)
	assert.Equal(t, dataset.LateExpert, rep.Predictions[1].Label)
	assert.Equal(t, 1, rep.Skipped)
	assert.True(t, rep.Accuracy >= 0 && rep.Accuracy <= 1)
	assert.True(t, rep.Loss > 0)
}

func TestCheckpointOrdering(t *testing.T) {
	best := checkpoint{evaluated: true, accuracy: 0.5, loss: 1}
	assert.True(t, checkpoint{evaluated: true, accuracy: 0.75, loss: 2}.better(best))
	assert.True(t, checkpoint{evaluated: true, accuracy: 0.5, loss: 0.5}.better(best))
	assert.False(t, checkpoint{evaluated: true, accuracy: 0.25, loss: 0.1}.better(best))
	assert.True(t, checkpoint{}.better(best))
}

func TestPrune(t *testing.T) {
	cs := []checkpoint{{dir: "c1"}, {dir: "c2"}, {dir: "c3"}}

	kept, removed := prune(cs, "c1", 2)
	assert.Equal(t, []checkpoint{{dir: "c1"}, {dir: "c3"}}, kept)
	assert.Equal(t, []checkpoint{{dir: "c2"}}, removed)

	kept, removed = prune(cs, "c1", 1)
	assert.Equal(t, []checkpoint{{dir: "c1"}}, kept)
	assert.Len(t, removed, 2)

	kept, removed = prune(cs, "c3", 0)
	assert.Equal(t, cs, kept)
	assert.Empty(t, removed)
}

func TestCheckpointLimitKeepsOlderBest(t *testing.T) {
	dir := tempDir(t)
	opts := tinyOptions(dir)
	opts.SaveTotalLimit = 1
	tr, err := NewTrainer(opts, testInputs(t, []dataset.Sample{record("a", "Novice", false)}, nil))
	require.NoError(t, err)

	older := filepath.Join(dir, "checkpoint-3")
	require.NoError(t, os.MkdirAll(older, 0755))
	tr.checkpoints = []checkpoint{{dir: older, evaluated: true, accuracy: 1, loss: 0.1}}
	tr.best = tr.checkpoints[0]

	// worse than the retained best, so nothing is written
	got, err := tr.saveCheckpoint(EpochStats{Evaluated: true, EvalAccuracy: 0.5, EvalLoss: 1})
	require.NoError(t, err)
	assert.Equal(t, "", got)
	_, err = os.Stat(filepath.Join(dir, "checkpoint-0"))
	assert.True(t, os.IsNotExist(err))
	assert.DirExists(t, older)

	// a better checkpoint replaces the older one
	got, err = tr.saveCheckpoint(EpochStats{Evaluated: true, EvalAccuracy: 1, EvalLoss: 0.05})
	require.NoError(t, err)
	require.NotEqual(t, "", got)
	assert.DirExists(t, got)
	_, err = os.Stat(older)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, got, tr.best.dir)
}

func TestPlotLoss(t *testing.T) {
	path := filepath.Join(tempDir(t), "loss.png")
	assert.Error(t, PlotLoss(path, nil))
	require.NoError(t, PlotLoss(path, []float64{1.4, 1.2, 1.3, 0.9}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.Size() > 0)
}
