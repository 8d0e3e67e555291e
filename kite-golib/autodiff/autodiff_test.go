package autodiff

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randDense(rng *rand.Rand, r, c int) *mat.Dense {
	d := make([]float64, r*c)
	for i := range d {
		d[i] = rng.NormFloat64()
	}
	return mat.NewDense(r, c, d)
}

// checkGrad compares the gradients of sum(f(inputs) ⊙ w) against central differences.
func checkGrad(t *testing.T, name string, inputs []*mat.Dense, f func(tp *Tape, xs []*Node) *Node) {
	rng := rand.New(rand.NewSource(7))

	var weights *mat.Dense
	loss := func(withGrad bool) (float64, []*mat.Dense) {
		tp := NewTape(rng)
		nodes := make([]*Node, len(inputs))
		grads := make([]*mat.Dense, len(inputs))
		for i, in := range inputs {
			r, c := in.Dims()
			grads[i] = mat.NewDense(r, c, nil)
			nodes[i] = tp.Var(in, grads[i])
		}
		out := f(tp, nodes)
		if weights == nil {
			r, c := out.Dims()
			weights = randDense(rng, r, c)
		}
		l := tp.Sum(tp.Mul(out, tp.Const(weights)))
		if withGrad {
			tp.Backward(l)
		}
		return l.Scalar(), grads
	}

	_, grads := loss(true)
	const h = 1e-6
	for i, in := range inputs {
		r, c := in.Dims()
		for a := 0; a < r; a++ {
			for b := 0; b < c; b++ {
				orig := in.At(a, b)
				in.Set(a, b, orig+h)
				up, _ := loss(false)
				in.Set(a, b, orig-h)
				down, _ := loss(false)
				in.Set(a, b, orig)

				numeric := (up - down) / (2 * h)
				assert.InDelta(t, numeric, grads[i].At(a, b), 1e-5*math.Max(1, math.Abs(numeric)),
					"%s: input %d at (%d,%d)", name, i, a, b)
			}
		}
	}
}

func TestGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	checkGrad(t, "matmul", []*mat.Dense{randDense(rng, 3, 4), randDense(rng, 4, 2)}, func(tp *Tape, xs []*Node) *Node {
		return tp.MatMul(xs[0], xs[1])
	})
	checkGrad(t, "addrow", []*mat.Dense{randDense(rng, 3, 4), randDense(rng, 1, 4)}, func(tp *Tape, xs []*Node) *Node {
		return tp.AddRow(xs[0], xs[1])
	})
	checkGrad(t, "mul-add-scale", []*mat.Dense{randDense(rng, 2, 3), randDense(rng, 2, 3)}, func(tp *Tape, xs []*Node) *Node {
		return tp.Scale(tp.Add(tp.Mul(xs[0], xs[1]), xs[0]), 0.3)
	})
	checkGrad(t, "gelu-sigmoid", []*mat.Dense{randDense(rng, 2, 5)}, func(tp *Tape, xs []*Node) *Node {
		return tp.Mul(tp.GELU(xs[0]), tp.Sigmoid(xs[0]))
	})
	checkGrad(t, "softmax", []*mat.Dense{randDense(rng, 3, 4)}, func(tp *Tape, xs []*Node) *Node {
		return tp.SoftmaxRows(xs[0])
	})
	checkGrad(t, "layernorm", []*mat.Dense{randDense(rng, 3, 5), randDense(rng, 1, 5), randDense(rng, 1, 5)}, func(tp *Tape, xs []*Node) *Node {
		return tp.LayerNorm(xs[0], xs[1], xs[2], 1e-5)
	})
	checkGrad(t, "align", []*mat.Dense{randDense(rng, 2, 6), mat.NewDense(1, 1, []float64{0.2}), mat.NewDense(1, 1, []float64{0.7})}, func(tp *Tape, xs []*Node) *Node {
		return tp.AlignStats(xs[0], xs[1], xs[2])
	})
	checkGrad(t, "gather-meanrows", []*mat.Dense{randDense(rng, 4, 3)}, func(tp *Tape, xs []*Node) *Node {
		return tp.MeanRows(tp.Gather(xs[0], []int{3, 0, 0, 2}))
	})
	checkGrad(t, "slice-concat", []*mat.Dense{randDense(rng, 4, 6)}, func(tp *Tape, xs []*Node) *Node {
		left := tp.SliceCols(xs[0], 0, 2)
		right := tp.SliceCols(xs[0], 3, 6)
		top := tp.SliceRows(tp.ConcatCols(right, left), 1, 3)
		return tp.ConcatRows(top, tp.Transpose(tp.Transpose(top)))
	})
	checkGrad(t, "transpose-matmul", []*mat.Dense{randDense(rng, 3, 4)}, func(tp *Tape, xs []*Node) *Node {
		return tp.MatMul(xs[0], tp.Transpose(xs[0]))
	})
}

func TestCrossEntropy(t *testing.T) {
	logits := mat.NewDense(2, 3, []float64{1, 2, 3, 0, 0, 0})
	grad := mat.NewDense(2, 3, nil)

	tp := NewTape(rand.New(rand.NewSource(1)))
	loss := tp.CrossEntropy(tp.Var(logits, grad), []int{2, 0})

	want := ((math.Log(math.Exp(1)+math.Exp(2)+math.Exp(3)) - 3) + math.Log(3)) / 2
	assert.InDelta(t, want, loss.Scalar(), 1e-12)

	tp.Backward(loss)
	// rows of the gradient sum to zero
	for i := 0; i < 2; i++ {
		assert.InDelta(t, 0, mat.Sum(grad.RowView(i)), 1e-12)
	}
	assert.InDelta(t, (1.0/3-1)/2, grad.At(1, 0), 1e-12)
}

func TestGradientsAccumulateAcrossTapes(t *testing.T) {
	x := mat.NewDense(1, 2, []float64{1, 2})
	grad := mat.NewDense(1, 2, nil)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 3; i++ {
		tp := NewTape(rng)
		tp.Backward(tp.Sum(tp.Var(x, grad)))
	}
	assert.Equal(t, []float64{3, 3}, grad.RawRowView(0))
}

func TestEvalTape(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	grad := mat.NewDense(2, 2, nil)

	tp := NewEvalTape()
	v := tp.Var(x, grad)
	assert.False(t, v.RequiresGrad())

	out := tp.Dropout(tp.GELU(v), 0.5)
	assert.Equal(t, 0, tp.Len())
	assert.InDelta(t, 0.5*4*(1+math.Erf(4/math.Sqrt2)), out.Value.At(1, 1), 1e-12)
}

func TestDropout(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ones := make([]float64, 1000)
	for i := range ones {
		ones[i] = 1
	}
	x := mat.NewDense(1, 1000, ones)

	tp := NewTape(rng)
	out := tp.Dropout(tp.Const(x), 0.25)

	var zeros int
	for _, v := range out.Value.RawRowView(0) {
		if v == 0 {
			zeros++
		} else {
			require.InDelta(t, 1/0.75, v, 1e-12)
		}
	}
	assert.InDelta(t, 250, zeros, 60)
	assert.Same(t, x, tp.Dropout(tp.Const(x), 0).Value)
}

func TestAlignStatsMoments(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := randDense(rng, 3, 128)
	x.Scale(40, x)

	tp := NewEvalTape()
	out := tp.AlignStats(tp.Const(x), tp.Const(mat.NewDense(1, 1, []float64{0.0007})), tp.Const(mat.NewDense(1, 1, []float64{0.1168})))

	for i := 0; i < 3; i++ {
		row := out.Value.RawRowView(i)
		var mean float64
		for _, v := range row {
			mean += v
		}
		mean /= float64(len(row))
		var ss float64
		for _, v := range row {
			ss += (v - mean) * (v - mean)
		}
		assert.InDelta(t, 0.0007, mean, 1e-9)
		assert.InDelta(t, 0.1168, math.Sqrt(ss/float64(len(row)-1)), 1e-6)
	}
}
