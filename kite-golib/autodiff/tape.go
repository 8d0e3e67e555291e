// Package autodiff implements reverse-mode differentiation over gonum dense matrices.
//
// A Tape records every operation whose inputs require a gradient. Calling Backward on a
// scalar node walks the record in reverse and accumulates gradients into the Grad
// matrices of the leaves created with Var. Leaves share their Grad matrix with the
// caller, so running several tapes before reading the gradient sums them.
package autodiff

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Node is a value in the computation graph.
type Node struct {
	Value *mat.Dense
	Grad  *mat.Dense

	needsGrad bool
	backward  func(g *mat.Dense)
}

// Dims returns the shape of the node's value.
func (n *Node) Dims() (int, int) {
	return n.Value.Dims()
}

// Scalar returns the single element of a 1x1 node.
func (n *Node) Scalar() float64 {
	return n.Value.At(0, 0)
}

// RequiresGrad reports whether gradients flow into this node.
func (n *Node) RequiresGrad() bool {
	return n.needsGrad
}

func (n *Node) grad() *mat.Dense {
	if n.Grad == nil {
		r, c := n.Value.Dims()
		n.Grad = mat.NewDense(r, c, nil)
	}
	return n.Grad
}

func (n *Node) accumulate(g *mat.Dense) {
	if !n.needsGrad {
		return
	}
	gr := n.grad()
	gr.Add(gr, g)
}

// Tape records operations for a single forward pass.
type Tape struct {
	nodes []*Node
	train bool
	rng   *rand.Rand
}

// NewTape returns a tape for training: dropout is active and gradients are recorded.
func NewTape(rng *rand.Rand) *Tape {
	return &Tape{train: true, rng: rng}
}

// NewEvalTape returns a tape for inference: dropout is the identity and nothing is recorded.
func NewEvalTape() *Tape {
	return &Tape{}
}

// Training reports whether the tape runs in training mode.
func (t *Tape) Training() bool {
	return t.train
}

// Len returns the number of recorded operations.
func (t *Tape) Len() int {
	return len(t.nodes)
}

// Const wraps m as a node that never receives gradients.
func (t *Tape) Const(m *mat.Dense) *Node {
	return &Node{Value: m}
}

// Var wraps a leaf whose gradient is accumulated into grad. On an eval tape, or when
// grad is nil, the leaf is a constant.
func (t *Tape) Var(value, grad *mat.Dense) *Node {
	if !t.train || grad == nil {
		return t.Const(value)
	}
	vr, vc := value.Dims()
	gr, gc := grad.Dims()
	if vr != gr || vc != gc {
		panic(fmt.Sprintf("autodiff: gradient shape %dx%d does not match value %dx%d", gr, gc, vr, vc))
	}
	return &Node{Value: value, Grad: grad, needsGrad: true}
}

func (t *Tape) push(value *mat.Dense, backward func(g *mat.Dense), inputs ...*Node) *Node {
	n := &Node{Value: value}
	if !t.train {
		return n
	}
	for _, in := range inputs {
		if in.needsGrad {
			n.needsGrad = true
			break
		}
	}
	if n.needsGrad {
		n.backward = backward
		t.nodes = append(t.nodes, n)
	}
	return n
}

// Backward seeds the 1x1 loss with gradient one and propagates to every leaf.
func (t *Tape) Backward(loss *Node) {
	if r, c := loss.Dims(); r != 1 || c != 1 {
		panic(fmt.Sprintf("autodiff: backward from non-scalar %dx%d", r, c))
	}
	if !loss.needsGrad {
		return
	}
	g := loss.grad()
	g.Set(0, 0, g.At(0, 0)+1)
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := t.nodes[i]
		if n.Grad != nil {
			n.backward(n.Grad)
		}
	}
	t.nodes = nil
}

// raw returns a compact row-major view of m's data, copying if needed.
func raw(m *mat.Dense) (int, int, []float64) {
	r, c := m.Dims()
	rm := m.RawMatrix()
	if rm.Stride == c {
		return r, c, rm.Data[:r*c]
	}
	d := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		d = append(d, rm.Data[i*rm.Stride:i*rm.Stride+c]...)
	}
	return r, c, d
}

func mustShape(op string, a, b *Node) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic(fmt.Sprintf("autodiff: %s shape mismatch %dx%d vs %dx%d", op, ar, ac, br, bc))
	}
}
