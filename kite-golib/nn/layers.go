package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/kiteco/skillview/kite-golib/autodiff"
)

// LoRA is a low-rank update attached to a Linear layer: scale · dropout(x)·A·B.
type LoRA struct {
	A       *Param // in×r
	B       *Param // r×out
	Scale   float64
	Dropout float64
}

// NewLoRA creates an adapter whose update starts at zero: A is Kaiming-uniform and B is zero.
func NewLoRA(name string, in, out, rank int, alpha, dropout float64, rng *rand.Rand) *LoRA {
	a := NewParam(name+".lora_A", in, rank)
	KaimingUniform(a, in, rng)
	return &LoRA{
		A:       a,
		B:       NewParam(name+".lora_B", rank, out),
		Scale:   alpha / float64(rank),
		Dropout: dropout,
	}
}

// Forward computes the adapter's additive update for x.
func (l *LoRA) Forward(t *autodiff.Tape, x *autodiff.Node) *autodiff.Node {
	h := t.MatMul(t.Dropout(x, l.Dropout), l.A.Node(t))
	return t.Scale(t.MatMul(h, l.B.Node(t)), l.Scale)
}

// Params returns the adapter parameters.
func (l *LoRA) Params() []*Param {
	return []*Param{l.A, l.B}
}

// Linear computes xW + b, plus the adapter update when one is attached.
type Linear struct {
	Name    string
	Weight  *Param // in×out
	Bias    *Param // 1×out
	Adapter *LoRA
}

// NewLinear creates a Kaiming-uniform initialized layer.
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	w := NewParam(name+".weight", in, out)
	KaimingUniform(w, in, rng)
	b := NewParam(name+".bias", 1, out)
	KaimingUniform(b, in, rng)
	b.NoDecay = true
	return &Linear{Name: name, Weight: w, Bias: b}
}

// In returns the input width.
func (l *Linear) In() int {
	r, _ := l.Weight.Dims()
	return r
}

// Out returns the output width.
func (l *Linear) Out() int {
	_, c := l.Weight.Dims()
	return c
}

// Forward applies the layer to the rows of x.
func (l *Linear) Forward(t *autodiff.Tape, x *autodiff.Node) *autodiff.Node {
	y := t.AddRow(t.MatMul(x, l.Weight.Node(t)), l.Bias.Node(t))
	if l.Adapter != nil {
		y = t.Add(y, l.Adapter.Forward(t, x))
	}
	return y
}

// Params returns the base weights followed by any adapter weights.
func (l *Linear) Params() []*Param {
	ps := []*Param{l.Weight, l.Bias}
	if l.Adapter != nil {
		ps = append(ps, l.Adapter.Params()...)
	}
	return ps
}

// LayerNorm normalizes rows then applies a learned affine transform.
type LayerNorm struct {
	Gamma *Param
	Beta  *Param
	Eps   float64
}

// NewLayerNorm creates an identity-initialized layer norm over dim columns.
func NewLayerNorm(name string, dim int) *LayerNorm {
	g := NewParam(name+".weight", 1, dim)
	for j := 0; j < dim; j++ {
		g.Value.Set(0, j, 1)
	}
	g.NoDecay = true
	b := NewParam(name+".bias", 1, dim)
	b.NoDecay = true
	return &LayerNorm{Gamma: g, Beta: b, Eps: 1e-5}
}

// Forward normalizes the rows of x.
func (n *LayerNorm) Forward(t *autodiff.Tape, x *autodiff.Node) *autodiff.Node {
	return t.LayerNorm(x, n.Gamma.Node(t), n.Beta.Node(t), n.Eps)
}

// Params returns gamma and beta.
func (n *LayerNorm) Params() []*Param {
	return []*Param{n.Gamma, n.Beta}
}

// Attend runs scaled dot-product attention over the rows of a packed L×3D
// query/key/value matrix split into heads, returning L×D.
func Attend(t *autodiff.Tape, qkv *autodiff.Node, heads int, dropout float64) *autodiff.Node {
	_, c := qkv.Dims()
	if c%3 != 0 || (c/3)%heads != 0 {
		panic(fmt.Sprintf("nn: cannot split %d packed columns into %d heads", c, heads))
	}
	d := c / 3
	dh := d / heads
	scale := 1 / math.Sqrt(float64(dh))

	outs := make([]*autodiff.Node, heads)
	for h := 0; h < heads; h++ {
		q := t.SliceCols(qkv, h*dh, (h+1)*dh)
		k := t.SliceCols(qkv, d+h*dh, d+(h+1)*dh)
		v := t.SliceCols(qkv, 2*d+h*dh, 2*d+(h+1)*dh)
		scores := t.Scale(t.MatMul(q, t.Transpose(k)), scale)
		probs := t.Dropout(t.SoftmaxRows(scores), dropout)
		outs[h] = t.MatMul(probs, v)
	}
	if heads == 1 {
		return outs[0]
	}
	return t.ConcatCols(outs...)
}

// MultiHeadAttention is self-attention with a packed input projection and an output projection.
type MultiHeadAttention struct {
	InProj  *Linear // D×3D
	OutProj *Linear // D×D
	Heads   int
	Dropout float64
}

// NewMultiHeadAttention creates attention over dim-wide rows.
func NewMultiHeadAttention(name string, dim, heads int, dropout float64, rng *rand.Rand) (*MultiHeadAttention, error) {
	if heads < 1 || dim%heads != 0 {
		return nil, fmt.Errorf("embedding dim %d is not divisible by %d heads", dim, heads)
	}
	return &MultiHeadAttention{
		InProj:  NewLinear(name+".in_proj", dim, 3*dim, rng),
		OutProj: NewLinear(name+".out_proj", dim, dim, rng),
		Heads:   heads,
		Dropout: dropout,
	}, nil
}

// Forward lets every row of x attend to every row of x.
func (m *MultiHeadAttention) Forward(t *autodiff.Tape, x *autodiff.Node) *autodiff.Node {
	return m.OutProj.Forward(t, Attend(t, m.InProj.Forward(t, x), m.Heads, m.Dropout))
}

// Params returns the projection parameters.
func (m *MultiHeadAttention) Params() []*Param {
	return append(m.InProj.Params(), m.OutProj.Params()...)
}
