package autodiff

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// GELU applies the exact (erf) Gaussian error linear unit elementwise.
func (t *Tape) GELU(a *Node) *Node {
	r, c, d := raw(a.Value)
	out := make([]float64, len(d))
	for i, x := range d {
		out[i] = 0.5 * x * (1 + math.Erf(x/math.Sqrt2))
	}
	return t.push(mat.NewDense(r, c, out), func(g *mat.Dense) {
		_, _, gd := raw(g)
		ga := make([]float64, len(d))
		for i, x := range d {
			cdf := 0.5 * (1 + math.Erf(x/math.Sqrt2))
			pdf := math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
			ga[i] = gd[i] * (cdf + x*pdf)
		}
		a.accumulate(mat.NewDense(r, c, ga))
	}, a)
}

// Sigmoid applies the logistic function elementwise.
func (t *Tape) Sigmoid(a *Node) *Node {
	r, c, d := raw(a.Value)
	out := make([]float64, len(d))
	for i, x := range d {
		out[i] = 1 / (1 + math.Exp(-x))
	}
	return t.push(mat.NewDense(r, c, out), func(g *mat.Dense) {
		_, _, gd := raw(g)
		ga := make([]float64, len(d))
		for i, y := range out {
			ga[i] = gd[i] * y * (1 - y)
		}
		a.accumulate(mat.NewDense(r, c, ga))
	}, a)
}

// SoftmaxRows normalizes each row of a into a probability distribution.
func (t *Tape) SoftmaxRows(a *Node) *Node {
	r, c, d := raw(a.Value)
	out := make([]float64, len(d))
	for i := 0; i < r; i++ {
		softmax(out[i*c:(i+1)*c], d[i*c:(i+1)*c])
	}
	return t.push(mat.NewDense(r, c, out), func(g *mat.Dense) {
		_, _, gd := raw(g)
		ga := make([]float64, len(d))
		for i := 0; i < r; i++ {
			y, gy := out[i*c:(i+1)*c], gd[i*c:(i+1)*c]
			dot := floats.Dot(y, gy)
			for j := range y {
				ga[i*c+j] = y[j] * (gy[j] - dot)
			}
		}
		a.accumulate(mat.NewDense(r, c, ga))
	}, a)
}

func softmax(dst, x []float64) {
	max := floats.Max(x)
	var sum float64
	for j, v := range x {
		dst[j] = math.Exp(v - max)
		sum += dst[j]
	}
	floats.Scale(1/sum, dst)
}

// Dropout zeroes each element with probability p and scales survivors by 1/(1-p).
// It is the identity on an eval tape or when p is zero.
func (t *Tape) Dropout(a *Node, p float64) *Node {
	if !t.train || p <= 0 {
		return a
	}
	if p >= 1 {
		panic(fmt.Sprintf("autodiff: dropout probability %v", p))
	}
	r, c, d := raw(a.Value)
	mask := make([]float64, len(d))
	out := make([]float64, len(d))
	keep := 1 / (1 - p)
	for i := range d {
		if t.rng.Float64() >= p {
			mask[i] = keep
			out[i] = d[i] * keep
		}
	}
	return t.push(mat.NewDense(r, c, out), func(g *mat.Dense) {
		_, _, gd := raw(g)
		ga := make([]float64, len(d))
		floats.MulTo(ga, gd, mask)
		a.accumulate(mat.NewDense(r, c, ga))
	}, a)
}
