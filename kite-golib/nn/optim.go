package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// AdamW is Adam with decoupled weight decay.
type AdamW struct {
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	step  int
	state map[*Param]*moments
}

type moments struct {
	m, v []float64
}

// NewAdamW returns an optimizer with the usual betas (0.9, 0.999) and eps 1e-8.
func NewAdamW(weightDecay float64) *AdamW {
	return &AdamW{
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: weightDecay,
		state:       make(map[*Param]*moments),
	}
}

// Steps returns the number of updates applied.
func (o *AdamW) Steps() int {
	return o.step
}

// Step updates every trainable parameter with a gradient using learning rate lr.
func (o *AdamW) Step(params []*Param, lr float64) {
	o.step++
	bc1 := 1 - math.Pow(o.Beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.Beta2, float64(o.step))

	for _, p := range params {
		if !p.Trainable || p.Grad == nil {
			continue
		}
		w := p.Value.RawMatrix().Data
		g := p.Grad.RawMatrix().Data
		st, ok := o.state[p]
		if !ok {
			st = &moments{m: make([]float64, len(w)), v: make([]float64, len(w))}
			o.state[p] = st
		}
		if o.WeightDecay > 0 && !p.NoDecay {
			floats.Scale(1-lr*o.WeightDecay, w)
		}
		for i := range w {
			st.m[i] = o.Beta1*st.m[i] + (1-o.Beta1)*g[i]
			st.v[i] = o.Beta2*st.v[i] + (1-o.Beta2)*g[i]*g[i]
			w[i] -= lr * (st.m[i] / bc1) / (math.Sqrt(st.v[i]/bc2) + o.Eps)
		}
	}
}

// ClipGradNorm rescales gradients so their global L2 norm is at most max, returning the norm before clipping.
func ClipGradNorm(params []*Param, max float64) float64 {
	var sq float64
	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		n := floats.Norm(p.Grad.RawMatrix().Data, 2)
		sq += n * n
	}
	norm := math.Sqrt(sq)
	if max > 0 && norm > max {
		for _, p := range params {
			if p.Grad != nil {
				p.Grad.Scale(max/(norm+1e-6), p.Grad)
			}
		}
	}
	return norm
}

// Schedule maps an optimizer step to a learning-rate multiplier.
type Schedule func(step int) float64

// Schedule names.
const (
	ScheduleConstant           = "constant"
	ScheduleLinear             = "linear"
	ScheduleCosineWithRestarts = "cosine_with_restarts"
)

// NewSchedule builds a named schedule with linear warmup over warmup steps out of total.
func NewSchedule(name string, warmup, total int) (Schedule, error) {
	warm := func(step int) (float64, bool) {
		if step < warmup {
			return float64(step) / math.Max(1, float64(warmup)), true
		}
		return 0, false
	}
	progress := func(step int) float64 {
		return float64(step-warmup) / math.Max(1, float64(total-warmup))
	}

	switch name {
	case ScheduleConstant:
		return func(step int) float64 {
			if f, ok := warm(step); ok {
				return f
			}
			return 1
		}, nil
	case ScheduleLinear:
		return func(step int) float64 {
			if f, ok := warm(step); ok {
				return f
			}
			return math.Max(0, 1-progress(step))
		}, nil
	case ScheduleCosineWithRestarts:
		const cycles = 1
		return func(step int) float64 {
			if f, ok := warm(step); ok {
				return f
			}
			p := progress(step)
			if p >= 1 {
				return 0
			}
			return math.Max(0, 0.5*(1+math.Cos(math.Pi*math.Mod(cycles*p, 1))))
		}, nil
	default:
		return nil, fmt.Errorf("unknown learning rate schedule %q", name)
	}
}
