package autodiff

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MatMul returns a·b.
func (t *Tape) MatMul(a, b *Node) *Node {
	var v mat.Dense
	v.Mul(a.Value, b.Value)
	return t.push(&v, func(g *mat.Dense) {
		if a.needsGrad {
			var ga mat.Dense
			ga.Mul(g, b.Value.T())
			a.accumulate(&ga)
		}
		if b.needsGrad {
			var gb mat.Dense
			gb.Mul(a.Value.T(), g)
			b.accumulate(&gb)
		}
	}, a, b)
}

// Add returns a+b for equally shaped nodes.
func (t *Tape) Add(a, b *Node) *Node {
	mustShape("add", a, b)
	var v mat.Dense
	v.Add(a.Value, b.Value)
	return t.push(&v, func(g *mat.Dense) {
		a.accumulate(g)
		b.accumulate(g)
	}, a, b)
}

// AddRow adds the 1xc row b to every row of a.
func (t *Tape) AddRow(a, b *Node) *Node {
	r, c, ad := raw(a.Value)
	if br, bc := b.Dims(); br != 1 || bc != c {
		panic(fmt.Sprintf("autodiff: add row %dx%d to %dx%d", br, bc, r, c))
	}
	_, _, bd := raw(b.Value)
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		floats.AddTo(out[i*c:(i+1)*c], ad[i*c:(i+1)*c], bd)
	}
	return t.push(mat.NewDense(r, c, out), func(g *mat.Dense) {
		a.accumulate(g)
		if b.needsGrad {
			b.accumulate(colSum(g))
		}
	}, a, b)
}

// Mul returns the elementwise product of a and b.
func (t *Tape) Mul(a, b *Node) *Node {
	mustShape("mul", a, b)
	var v mat.Dense
	v.MulElem(a.Value, b.Value)
	return t.push(&v, func(g *mat.Dense) {
		if a.needsGrad {
			var ga mat.Dense
			ga.MulElem(g, b.Value)
			a.accumulate(&ga)
		}
		if b.needsGrad {
			var gb mat.Dense
			gb.MulElem(g, a.Value)
			b.accumulate(&gb)
		}
	}, a, b)
}

// Scale returns s·a.
func (t *Tape) Scale(a *Node, s float64) *Node {
	var v mat.Dense
	v.Scale(s, a.Value)
	return t.push(&v, func(g *mat.Dense) {
		var ga mat.Dense
		ga.Scale(s, g)
		a.accumulate(&ga)
	}, a)
}

// Transpose returns aᵀ.
func (t *Tape) Transpose(a *Node) *Node {
	v := mat.DenseCopyOf(a.Value.T())
	return t.push(v, func(g *mat.Dense) {
		a.accumulate(mat.DenseCopyOf(g.T()))
	}, a)
}

// Sum returns the sum of all elements as a 1x1 node.
func (t *Tape) Sum(a *Node) *Node {
	r, c, d := raw(a.Value)
	v := mat.NewDense(1, 1, []float64{floats.Sum(d)})
	return t.push(v, func(g *mat.Dense) {
		ga := make([]float64, r*c)
		for i := range ga {
			ga[i] = g.At(0, 0)
		}
		a.accumulate(mat.NewDense(r, c, ga))
	}, a)
}

// MeanRows averages the rows of a into a 1xc node.
func (t *Tape) MeanRows(a *Node) *Node {
	r, c, d := raw(a.Value)
	out := make([]float64, c)
	for i := 0; i < r; i++ {
		floats.Add(out, d[i*c:(i+1)*c])
	}
	floats.Scale(1/float64(r), out)
	return t.push(mat.NewDense(1, c, out), func(g *mat.Dense) {
		_, _, gd := raw(g)
		ga := make([]float64, r*c)
		for i := 0; i < r; i++ {
			floats.AddScaled(ga[i*c:(i+1)*c], 1/float64(r), gd)
		}
		a.accumulate(mat.NewDense(r, c, ga))
	}, a)
}

// Gather selects rows of a by index; indices may repeat. Gradients scatter-add back.
func (t *Tape) Gather(a *Node, idx []int) *Node {
	r, c, d := raw(a.Value)
	out := make([]float64, len(idx)*c)
	for i, j := range idx {
		if j < 0 || j >= r {
			panic(fmt.Sprintf("autodiff: gather index %d out of range [0,%d)", j, r))
		}
		copy(out[i*c:(i+1)*c], d[j*c:(j+1)*c])
	}
	return t.push(mat.NewDense(len(idx), c, out), func(g *mat.Dense) {
		_, _, gd := raw(g)
		ga := make([]float64, r*c)
		for i, j := range idx {
			floats.Add(ga[j*c:(j+1)*c], gd[i*c:(i+1)*c])
		}
		a.accumulate(mat.NewDense(r, c, ga))
	}, a)
}

// SliceRows returns rows [i, j) of a.
func (t *Tape) SliceRows(a *Node, i, j int) *Node {
	idx := make([]int, 0, j-i)
	for k := i; k < j; k++ {
		idx = append(idx, k)
	}
	return t.Gather(a, idx)
}

// ConcatRows stacks nodes with equal column counts vertically.
func (t *Tape) ConcatRows(ns ...*Node) *Node {
	_, c := ns[0].Dims()
	var out []float64
	offsets := make([]int, len(ns)+1)
	for i, n := range ns {
		r, nc, d := raw(n.Value)
		if nc != c {
			panic(fmt.Sprintf("autodiff: concat rows with %d and %d columns", c, nc))
		}
		out = append(out, d...)
		offsets[i+1] = offsets[i] + r
	}
	return t.push(mat.NewDense(offsets[len(ns)], c, out), func(g *mat.Dense) {
		_, _, gd := raw(g)
		for i, n := range ns {
			if !n.needsGrad {
				continue
			}
			part := append([]float64(nil), gd[offsets[i]*c:offsets[i+1]*c]...)
			n.accumulate(mat.NewDense(offsets[i+1]-offsets[i], c, part))
		}
	}, ns...)
}

// SliceCols returns columns [i, j) of a.
func (t *Tape) SliceCols(a *Node, i, j int) *Node {
	r, c, d := raw(a.Value)
	w := j - i
	out := make([]float64, r*w)
	for k := 0; k < r; k++ {
		copy(out[k*w:(k+1)*w], d[k*c+i:k*c+j])
	}
	return t.push(mat.NewDense(r, w, out), func(g *mat.Dense) {
		_, _, gd := raw(g)
		ga := make([]float64, r*c)
		for k := 0; k < r; k++ {
			copy(ga[k*c+i:k*c+j], gd[k*w:(k+1)*w])
		}
		a.accumulate(mat.NewDense(r, c, ga))
	}, a)
}

// ConcatCols joins nodes with equal row counts horizontally.
func (t *Tape) ConcatCols(ns ...*Node) *Node {
	r, _ := ns[0].Dims()
	offsets := make([]int, len(ns)+1)
	for i, n := range ns {
		nr, nc := n.Dims()
		if nr != r {
			panic(fmt.Sprintf("autodiff: concat cols with %d and %d rows", r, nr))
		}
		offsets[i+1] = offsets[i] + nc
	}
	c := offsets[len(ns)]
	out := make([]float64, r*c)
	for i, n := range ns {
		_, nc, d := raw(n.Value)
		for k := 0; k < r; k++ {
			copy(out[k*c+offsets[i]:k*c+offsets[i]+nc], d[k*nc:(k+1)*nc])
		}
	}
	return t.push(mat.NewDense(r, c, out), func(g *mat.Dense) {
		_, _, gd := raw(g)
		for i, n := range ns {
			if !n.needsGrad {
				continue
			}
			nc := offsets[i+1] - offsets[i]
			part := make([]float64, r*nc)
			for k := 0; k < r; k++ {
				copy(part[k*nc:(k+1)*nc], gd[k*c+offsets[i]:k*c+offsets[i+1]])
			}
			n.accumulate(mat.NewDense(r, nc, part))
		}
	}, ns...)
}

func colSum(g *mat.Dense) *mat.Dense {
	r, c, gd := raw(g)
	out := make([]float64, c)
	for i := 0; i < r; i++ {
		floats.Add(out, gd[i*c:(i+1)*c])
	}
	return mat.NewDense(1, c, out)
}
