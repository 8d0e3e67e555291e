package autodiff

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LayerNorm normalizes each row of x to zero mean and unit (biased) variance, then
// applies the 1xc affine parameters gamma and beta.
func (t *Tape) LayerNorm(x, gamma, beta *Node, eps float64) *Node {
	r, c, d := raw(x.Value)
	_, _, gm := raw(gamma.Value)
	_, _, bt := raw(beta.Value)
	if len(gm) != c || len(bt) != c {
		panic(fmt.Sprintf("autodiff: layer norm over %d columns with %d/%d affine params", c, len(gm), len(bt)))
	}

	xhat := make([]float64, len(d))
	inv := make([]float64, r)
	out := make([]float64, len(d))
	for i := 0; i < r; i++ {
		row := d[i*c : (i+1)*c]
		mean := floats.Sum(row) / float64(c)
		var v float64
		for _, e := range row {
			v += (e - mean) * (e - mean)
		}
		v /= float64(c)
		inv[i] = 1 / math.Sqrt(v+eps)
		for j, e := range row {
			xhat[i*c+j] = (e - mean) * inv[i]
			out[i*c+j] = xhat[i*c+j]*gm[j] + bt[j]
		}
	}

	return t.push(mat.NewDense(r, c, out), func(g *mat.Dense) {
		_, _, gd := raw(g)
		if x.needsGrad {
			gx := make([]float64, len(d))
			dxhat := make([]float64, c)
			for i := 0; i < r; i++ {
				gr, xr := gd[i*c:(i+1)*c], xhat[i*c:(i+1)*c]
				floats.MulTo(dxhat, gr, gm)
				meanD := floats.Sum(dxhat) / float64(c)
				meanDX := floats.Dot(dxhat, xr) / float64(c)
				for j := 0; j < c; j++ {
					gx[i*c+j] = inv[i] * (dxhat[j] - meanD - xr[j]*meanDX)
				}
			}
			x.accumulate(mat.NewDense(r, c, gx))
		}
		if gamma.needsGrad {
			gg := make([]float64, c)
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					gg[j] += gd[i*c+j] * xhat[i*c+j]
				}
			}
			gamma.accumulate(mat.NewDense(1, c, gg))
		}
		if beta.needsGrad {
			beta.accumulate(colSum(g))
		}
	}, x, gamma, beta)
}

// AlignEps is added to the standard deviation before dividing in AlignStats.
const AlignEps = 1e-6

// AlignStats re-standardizes each row of x: subtract the row mean, divide by the
// unbiased row standard deviation plus AlignEps, multiply by std and add mean.
// mean and std are 1x1 nodes and may be trainable.
func (t *Tape) AlignStats(x, mean, std *Node) *Node {
	r, c, d := raw(x.Value)
	s, m := std.Scalar(), mean.Scalar()

	z := make([]float64, len(d))
	dev := make([]float64, len(d))
	sigma := make([]float64, r)
	out := make([]float64, len(d))
	for i := 0; i < r; i++ {
		row := d[i*c : (i+1)*c]
		mu := floats.Sum(row) / float64(c)
		var ss float64
		for j, e := range row {
			dev[i*c+j] = e - mu
			ss += (e - mu) * (e - mu)
		}
		if c > 1 {
			sigma[i] = math.Sqrt(ss / float64(c-1))
		}
		den := sigma[i] + AlignEps
		for j := range row {
			z[i*c+j] = dev[i*c+j] / den
			out[i*c+j] = z[i*c+j]*s + m
		}
	}

	return t.push(mat.NewDense(r, c, out), func(g *mat.Dense) {
		_, _, gd := raw(g)
		if x.needsGrad {
			gx := make([]float64, len(d))
			gz := make([]float64, c)
			for i := 0; i < r; i++ {
				gr, dr := gd[i*c:(i+1)*c], dev[i*c:(i+1)*c]
				for j := range gz {
					gz[j] = gr[j] * s
				}
				den := sigma[i] + AlignEps
				meanGz := floats.Sum(gz) / float64(c)
				var k float64
				if sigma[i] > 0 {
					k = floats.Dot(gz, dr) / (den * den * float64(c-1) * sigma[i])
				}
				for j := 0; j < c; j++ {
					gx[i*c+j] = (gz[j]-meanGz)/den - k*dr[j]
				}
			}
			x.accumulate(mat.NewDense(r, c, gx))
		}
		if std.needsGrad {
			std.accumulate(mat.NewDense(1, 1, []float64{floats.Dot(gd, z)}))
		}
		if mean.needsGrad {
			mean.accumulate(mat.NewDense(1, 1, []float64{floats.Sum(gd)}))
		}
	}, x, mean, std)
}

// CrossEntropy returns the mean categorical cross-entropy of the rows of logits
// against integer labels, as a 1x1 node.
func (t *Tape) CrossEntropy(logits *Node, labels []int) *Node {
	r, c, d := raw(logits.Value)
	if len(labels) != r {
		panic(fmt.Sprintf("autodiff: %d labels for %d rows", len(labels), r))
	}
	probs := make([]float64, len(d))
	var loss float64
	for i := 0; i < r; i++ {
		row := d[i*c : (i+1)*c]
		if labels[i] < 0 || labels[i] >= c {
			panic(fmt.Sprintf("autodiff: label %d out of range [0,%d)", labels[i], c))
		}
		lse := floats.LogSumExp(row)
		loss += lse - row[labels[i]]
		softmax(probs[i*c:(i+1)*c], row)
	}
	loss /= float64(r)

	return t.push(mat.NewDense(1, 1, []float64{loss}), func(g *mat.Dense) {
		scale := g.At(0, 0) / float64(r)
		ga := make([]float64, len(d))
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				p := probs[i*c+j]
				if j == labels[i] {
					p--
				}
				ga[i*c+j] = p * scale
			}
		}
		logits.accumulate(mat.NewDense(r, c, ga))
	}, logits)
}
