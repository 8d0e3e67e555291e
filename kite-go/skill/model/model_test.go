package model

import (
	"io/ioutil"
	"math"
	"math/rand"
	"os"
	"strings"
	"testing"

	"github.com/kiteco/skillview/kite-go/skill/dataset"
	"github.com/kiteco/skillview/kite-golib/autodiff"
	"github.com/kiteco/skillview/kite-golib/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func tinyConfig() Config {
	cfg := DefaultConfig()
	cfg.VisionEncoderID = "skillview/timesformer-tiny"
	cfg.NumFrames = 4
	cfg.NumViews = 2
	cfg.Seed = 3
	cfg.Adapter.Rank = 2
	cfg.Adapter.Alpha = 4
	cfg.Projector.HiddenDim = 16
	cfg.Projector.OutputDim = 8
	cfg.Projector.Heads = 2
	return cfg
}

func randomBatch(b, v, frames int, rng *rand.Rand) *dataset.Batch {
	batch := &dataset.Batch{Shape: [6]int{b, v, frames, 3, 16, 16}}
	batch.Pixels = make([]float64, b*v*frames*3*16*16)
	for i := range batch.Pixels {
		batch.Pixels[i] = rng.NormFloat64()
	}
	for i := 0; i < b; i++ {
		batch.Labels = append(batch.Labels, i%dataset.NumLabels)
		batch.IDs = append(batch.IDs, string(rune('a'+i)))
	}
	return batch
}

func hasNonZero(m *mat.Dense) bool {
	if m == nil {
		return false
	}
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 0 {
				return true
			}
		}
	}
	return false
}

func TestForwardShapes(t *testing.T) {
	c, err := New(tinyConfig())
	require.NoError(t, err)

	out, err := c.Forward(autodiff.NewEvalTape(), randomBatch(2, 2, 4, rand.New(rand.NewSource(1))))
	require.NoError(t, err)
	r, k := out.Logits.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, dataset.NumLabels, k)
	require.NotNil(t, out.Loss)
	assert.False(t, math.IsNaN(out.Loss.Scalar()))
	assert.True(t, out.Loss.Scalar() > 0)
}

func TestForwardWithoutLabels(t *testing.T) {
	c, err := New(tinyConfig())
	require.NoError(t, err)

	b := randomBatch(1, 2, 4, rand.New(rand.NewSource(1)))
	b.Labels = nil
	out, err := c.Forward(autodiff.NewEvalTape(), b)
	require.NoError(t, err)
	assert.Nil(t, out.Loss)
}

func TestGradientsReachOnlyTrainable(t *testing.T) {
	c, err := New(tinyConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	tape := autodiff.NewTape(rng)
	out, err := c.Forward(tape, randomBatch(2, 2, 4, rng))
	require.NoError(t, err)
	tape.Backward(out.Loss)

	assert.True(t, hasNonZero(c.Head.Weight.Grad))
	var loraB int
	for _, p := range c.Encoder.Params() {
		if !p.Trainable {
			assert.Nil(t, p.Grad, p.Name)
			continue
		}
		if strings.HasSuffix(p.Name, ".lora_B") {
			loraB++
			assert.True(t, hasNonZero(p.Grad), p.Name)
		}
	}
	assert.True(t, loraB > 0)
	assert.False(t, c.Encoder.TimeEmbedding().Trainable)
}

func TestTrainableFraction(t *testing.T) {
	c, err := New(tinyConfig())
	require.NoError(t, err)

	trainable, total, fraction := nn.TrainableFraction(c.Params())
	assert.True(t, trainable > 0)
	assert.True(t, trainable < total)
	assert.True(t, fraction > 0 && fraction < 1)
	assert.Len(t, c.TrainableParams(), len(nn.Trainable(c.Params())))
}

func TestCheckRejectsMismatchedBatches(t *testing.T) {
	c, err := New(tinyConfig())
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))

	_, err = c.Forward(autodiff.NewEvalTape(), randomBatch(1, 3, 4, rng))
	assert.Error(t, err)
	_, err = c.Forward(autodiff.NewEvalTape(), randomBatch(1, 2, 5, rng))
	assert.Error(t, err)
}

func TestFeatureExtract(t *testing.T) {
	c, err := New(tinyConfig())
	require.NoError(t, err)

	feats, err := c.FeatureExtract(randomBatch(3, 2, 4, rand.New(rand.NewSource(1))))
	require.NoError(t, err)
	r, d := feats.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, c.Encoder.Hidden(), d)
}

func TestPredictions(t *testing.T) {
	logits := mat.NewDense(3, 4, []float64{
		0, 1, 2, 3,
		5, 1, 2, 3,
		0, 4, 4, 1,
	})
	assert.Equal(t, []int{3, 0, 1}, Predictions(logits))
}

func TestUnknownEncoder(t *testing.T) {
	cfg := tinyConfig()
	cfg.VisionEncoderID = "nope"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestFeatureExtractorRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "model")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	c, err := New(tinyConfig())
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(9))
	for _, p := range c.TrainableParams() {
		nn.Normal(p, 0.1, rng)
	}
	batch := randomBatch(2, 2, 4, rng)
	before, err := c.Forward(autodiff.NewEvalTape(), batch)
	require.NoError(t, err)

	require.NoError(t, c.SaveFeatureExtractor(dir))
	loaded, err := LoadFeatureExtractor(dir)
	require.NoError(t, err)
	assert.Equal(t, c.Config(), loaded.Config())

	after, err := loaded.Forward(autodiff.NewEvalTape(), batch)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(before.Logits.Value, after.Logits.Value, 1e-9))
}

func TestLoadFeatureExtractorMissingWeights(t *testing.T) {
	dir, err := ioutil.TempDir("", "model")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	require.NoError(t, SaveConfig(dir+"/"+ConfigFile, tinyConfig()))
	_, err = LoadFeatureExtractor(dir)
	assert.Error(t, err)
}
