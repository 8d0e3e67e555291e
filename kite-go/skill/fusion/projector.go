// Package fusion merges per-view embeddings into a single embedding aligned to a
// reference mean and standard deviation.
package fusion

import (
	"fmt"
	"math/rand"

	"github.com/kiteco/skillview/kite-golib/autodiff"
	"github.com/kiteco/skillview/kite-golib/nn"
)

// Options configure a Projector.
type Options struct {
	InputDim  int     `json:"input_dim" yaml:"input_dim"`
	HiddenDim int     `json:"hidden_dim" yaml:"hidden_dim"`
	OutputDim int     `json:"output_dim" yaml:"output_dim"`
	Heads     int     `json:"heads" yaml:"heads"`
	Dropout   float64 `json:"dropout" yaml:"dropout"`
	UseGate   bool    `json:"use_gate" yaml:"use_gate"`
	// LearnStats makes the target mean and std trainable.
	LearnStats bool    `json:"learn_stats" yaml:"learn_stats"`
	TargetMean float64 `json:"target_mean" yaml:"target_mean"`
	TargetStd  float64 `json:"target_std" yaml:"target_std"`
}

// DefaultOptions returns the projector used by the classifier.
func DefaultOptions() Options {
	return Options{
		InputDim:   768,
		HiddenDim:  1024,
		OutputDim:  768,
		Heads:      12,
		Dropout:    0.1,
		UseGate:    true,
		LearnStats: true,
		TargetMean: 0.0007,
		TargetStd:  0.1168,
	}
}

// Projector fuses V×D view embeddings into a 1×OutputDim embedding. The result does
// not depend on the order of the views.
type Projector struct {
	opts Options

	viewNorm *nn.LayerNorm
	viewAttn *nn.MultiHeadAttention
	proj1    *nn.Linear
	norm1    *nn.LayerNorm
	gate     *nn.Linear
	proj2    *nn.Linear
	normOut  *nn.LayerNorm
	mean     *nn.Param
	std      *nn.Param
}

// New builds a projector with weights drawn from rng.
func New(opts Options, rng *rand.Rand) (*Projector, error) {
	if opts.InputDim < 1 || opts.HiddenDim < 1 || opts.OutputDim < 1 {
		return nil, fmt.Errorf("projector dimensions must be positive: %d/%d/%d", opts.InputDim, opts.HiddenDim, opts.OutputDim)
	}
	attn, err := nn.NewMultiHeadAttention("projector.view_attn", opts.InputDim, opts.Heads, opts.Dropout, rng)
	if err != nil {
		return nil, err
	}
	p := &Projector{
		opts:     opts,
		viewNorm: nn.NewLayerNorm("projector.view_norm", opts.InputDim),
		viewAttn: attn,
		proj1:    nn.NewLinear("projector.proj1", opts.InputDim, opts.HiddenDim, rng),
		norm1:    nn.NewLayerNorm("projector.norm1", opts.HiddenDim),
		proj2:    nn.NewLinear("projector.proj2", opts.HiddenDim, opts.OutputDim, rng),
		normOut:  nn.NewLayerNorm("projector.norm_final", opts.OutputDim),
		mean:     nn.NewScalar("projector.text_mean", opts.TargetMean),
		std:      nn.NewScalar("projector.text_std", opts.TargetStd),
	}
	if opts.UseGate {
		p.gate = nn.NewLinear("projector.gate", opts.HiddenDim, opts.HiddenDim, rng)
	}
	p.mean.Trainable = opts.LearnStats
	p.std.Trainable = opts.LearnStats
	p.mean.NoDecay = true
	p.std.NoDecay = true
	return p, nil
}

// Options returns the configuration the projector was built with.
func (p *Projector) Options() Options {
	return p.opts
}

// Stats returns the current target mean and std.
func (p *Projector) Stats() (mean, std float64) {
	return p.mean.Value.At(0, 0), p.std.Value.At(0, 0)
}

// Params returns every projector parameter, including fixed statistics.
func (p *Projector) Params() []*nn.Param {
	var ps []*nn.Param
	ps = append(ps, p.viewNorm.Params()...)
	ps = append(ps, p.viewAttn.Params()...)
	ps = append(ps, p.proj1.Params()...)
	ps = append(ps, p.norm1.Params()...)
	if p.gate != nil {
		ps = append(ps, p.gate.Params()...)
	}
	ps = append(ps, p.proj2.Params()...)
	ps = append(ps, p.normOut.Params()...)
	return append(ps, p.mean, p.std)
}

// Fuse maps the V×InputDim view embeddings of one sample to a 1×OutputDim embedding.
func (p *Projector) Fuse(t *autodiff.Tape, views *autodiff.Node) *autodiff.Node {
	v, d := views.Dims()
	if v == 0 || d != p.opts.InputDim {
		panic(fmt.Sprintf("fusion: %d views of width %d, expected width %d", v, d, p.opts.InputDim))
	}

	x := p.viewNorm.Forward(t, views)
	x = p.viewAttn.Forward(t, x)
	fused := t.MeanRows(x)

	h := p.proj1.Forward(t, fused)
	h = t.GELU(h)
	h = p.norm1.Forward(t, h)
	h = t.Dropout(h, p.opts.Dropout)
	if p.gate != nil {
		h = t.Mul(h, t.Sigmoid(p.gate.Forward(t, h)))
	}

	out := p.normOut.Forward(t, p.proj2.Forward(t, h))
	return t.AlignStats(out, p.mean.Node(t), p.std.Node(t))
}
