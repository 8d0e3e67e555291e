// Package nn provides trainable parameters and the layers, optimizer and schedules built on them.
package nn

import (
	"fmt"
	"math"
	"math/rand"

	humanize "github.com/dustin/go-humanize"
	"github.com/kiteco/skillview/kite-golib/autodiff"
	"gonum.org/v1/gonum/mat"
)

// Param is a named weight matrix with its gradient.
type Param struct {
	Name      string
	Value     *mat.Dense
	Grad      *mat.Dense
	Trainable bool
	// NoDecay excludes the parameter from weight decay (biases and normalization weights).
	NoDecay bool
}

// NewParam allocates a zero r×c trainable parameter.
func NewParam(name string, r, c int) *Param {
	return &Param{
		Name:      name,
		Value:     mat.NewDense(r, c, nil),
		Trainable: true,
	}
}

// NewScalar allocates a 1x1 parameter holding v.
func NewScalar(name string, v float64) *Param {
	p := NewParam(name, 1, 1)
	p.Value.Set(0, 0, v)
	return p
}

// Node places the parameter on the tape. Frozen parameters become constants.
func (p *Param) Node(t *autodiff.Tape) *autodiff.Node {
	if !p.Trainable {
		return t.Const(p.Value)
	}
	if p.Grad == nil {
		r, c := p.Value.Dims()
		p.Grad = mat.NewDense(r, c, nil)
	}
	return t.Var(p.Value, p.Grad)
}

// Dims returns the parameter shape.
func (p *Param) Dims() (int, int) {
	return p.Value.Dims()
}

// Numel returns the number of elements.
func (p *Param) Numel() int {
	r, c := p.Value.Dims()
	return r * c
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	if p.Grad != nil {
		p.Grad.Zero()
	}
}

// ZeroGrads clears the gradients of every parameter.
func ZeroGrads(params []*Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// Freeze marks every parameter as not trainable and drops its gradient.
func Freeze(params []*Param) {
	for _, p := range params {
		p.Trainable = false
		p.Grad = nil
	}
}

// Trainable filters params down to the trainable ones.
func Trainable(params []*Param) []*Param {
	var out []*Param
	for _, p := range params {
		if p.Trainable {
			out = append(out, p)
		}
	}
	return out
}

// TrainableFraction counts trainable and total parameter elements.
func TrainableFraction(params []*Param) (trainable, total int, fraction float64) {
	for _, p := range params {
		total += p.Numel()
		if p.Trainable {
			trainable += p.Numel()
		}
	}
	if total > 0 {
		fraction = float64(trainable) / float64(total)
	}
	return
}

// TrainableReport formats TrainableFraction for logs.
func TrainableReport(params []*Param) string {
	trainable, total, fraction := TrainableFraction(params)
	return fmt.Sprintf("Trainable: %s | Total: %s | %%: %.2f",
		humanize.Comma(int64(trainable)), humanize.Comma(int64(total)), 100*fraction)
}

// KaimingUniform fills p with U(-1/sqrt(fanIn), 1/sqrt(fanIn)), the default for linear layers.
func KaimingUniform(p *Param, fanIn int, rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(fanIn))
	fill(p, func() float64 { return (2*rng.Float64() - 1) * bound })
}

// Normal fills p with N(0, std²).
func Normal(p *Param, std float64, rng *rand.Rand) {
	fill(p, func() float64 { return rng.NormFloat64() * std })
}

func fill(p *Param, f func() float64) {
	r, c := p.Value.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			p.Value.Set(i, j, f())
		}
	}
}
