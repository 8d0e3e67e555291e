// Package encoder implements the per-view video encoder: a divided space-time
// transformer over frame patches, with low-rank adapters and a resizable time embedding.
package encoder

import (
	"fmt"
	"math/rand"

	"github.com/kiteco/skillview/kite-golib/autodiff"
	"github.com/kiteco/skillview/kite-golib/nn"
	"gonum.org/v1/gonum/mat"
)

// Layer is one transformer block: temporal attention, spatial attention, MLP.
type Layer struct {
	TemporalNorm  *nn.LayerNorm
	TemporalQKV   *nn.Linear
	TemporalOut   *nn.Linear
	TemporalDense *nn.Linear

	SpatialNorm *nn.LayerNorm
	SpatialQKV  *nn.Linear
	SpatialOut  *nn.Linear

	MLPNorm      *nn.LayerNorm
	Intermediate *nn.Linear
	Output       *nn.Linear
}

// sublayers maps adapter target paths to linear layers.
func (l *Layer) sublayers() map[string]*nn.Linear {
	return map[string]*nn.Linear{
		"temporal_attention.attention.qkv": l.TemporalQKV,
		"temporal_attention.output.dense":  l.TemporalOut,
		"temporal_dense":                   l.TemporalDense,
		"attention.attention.qkv":          l.SpatialQKV,
		"attention.output.dense":           l.SpatialOut,
		"intermediate.dense":               l.Intermediate,
		"output.dense":                     l.Output,
	}
}

func (l *Layer) params() []*nn.Param {
	var ps []*nn.Param
	for _, n := range []*nn.LayerNorm{l.TemporalNorm, l.SpatialNorm, l.MLPNorm} {
		ps = append(ps, n.Params()...)
	}
	for _, lin := range []*nn.Linear{l.TemporalQKV, l.TemporalOut, l.TemporalDense, l.SpatialQKV, l.SpatialOut, l.Intermediate, l.Output} {
		ps = append(ps, lin.Params()...)
	}
	return ps
}

// Encoder maps one view clip to a pooled embedding.
type Encoder struct {
	cfg Config

	patch     *nn.Linear
	positions *nn.Param // patches × hidden
	time      *nn.Param // frames × hidden, nil when the architecture has none
	layers    []*Layer
	final     *nn.LayerNorm
}

// newBase builds the architecture for cfg with deterministic random weights.
func newBase(cfg Config, seed int64) (*Encoder, error) {
	if cfg.Hidden%cfg.Heads != 0 {
		return nil, &ConfigMismatchError{What: "attention heads", Detail: fmt.Sprintf("hidden size %d not divisible by %d heads", cfg.Hidden, cfg.Heads)}
	}
	if cfg.PatchSize < 1 || cfg.ImageSize%cfg.PatchSize != 0 {
		return nil, &ConfigMismatchError{What: "patch size", Detail: fmt.Sprintf("image size %d not divisible by patch size %d", cfg.ImageSize, cfg.PatchSize)}
	}

	rng := rand.New(rand.NewSource(seed))
	d := cfg.Hidden
	norm := func(name string) *nn.LayerNorm {
		n := nn.NewLayerNorm(name, d)
		n.Eps = cfg.LayerNormEps
		return n
	}

	e := &Encoder{
		cfg:       cfg,
		patch:     nn.NewLinear("embeddings.patch_embeddings.projection", cfg.PatchDim(), d, rng),
		positions: nn.NewParam("embeddings.position_embeddings", cfg.Patches(), d),
		final:     norm("layernorm"),
	}
	nn.Normal(e.positions, 0.02, rng)
	if cfg.Frames > 0 {
		e.time = nn.NewParam("embeddings.time_embeddings", cfg.Frames, d)
		nn.Normal(e.time, 0.02, rng)
	}

	for i := 0; i < cfg.Layers; i++ {
		prefix := fmt.Sprintf("encoder.layer.%d.", i)
		e.layers = append(e.layers, &Layer{
			TemporalNorm:  norm(prefix + "temporal_layernorm"),
			TemporalQKV:   nn.NewLinear(prefix+"temporal_attention.attention.qkv", d, 3*d, rng),
			TemporalOut:   nn.NewLinear(prefix+"temporal_attention.output.dense", d, d, rng),
			TemporalDense: nn.NewLinear(prefix+"temporal_dense", d, d, rng),
			SpatialNorm:   norm(prefix + "layernorm_before"),
			SpatialQKV:    nn.NewLinear(prefix+"attention.attention.qkv", d, 3*d, rng),
			SpatialOut:    nn.NewLinear(prefix+"attention.output.dense", d, d, rng),
			MLPNorm:       norm(prefix + "layernorm_after"),
			Intermediate:  nn.NewLinear(prefix+"intermediate.dense", d, cfg.Intermediate, rng),
			Output:        nn.NewLinear(prefix+"output.dense", cfg.Intermediate, d, rng),
		})
	}
	return e, nil
}

// Config returns the encoder hyper-parameters. Frames reflects the current time embedding.
func (e *Encoder) Config() Config {
	return e.cfg
}

// Hidden returns the embedding width.
func (e *Encoder) Hidden() int {
	return e.cfg.Hidden
}

// TimeEmbedding returns the time-embedding table, or nil when the encoder has none.
func (e *Encoder) TimeEmbedding() *nn.Param {
	return e.time
}

// SetTimeEmbedding replaces the time-embedding table.
func (e *Encoder) SetTimeEmbedding(p *nn.Param) error {
	if _, c := p.Dims(); c != e.cfg.Hidden {
		return &ConfigMismatchError{What: "time embedding", Detail: fmt.Sprintf("width %d, expected %d", c, e.cfg.Hidden)}
	}
	e.time = p
	e.cfg.Frames, _ = p.Dims()
	return nil
}

// Params returns every parameter, base and adapter, in a stable order.
func (e *Encoder) Params() []*nn.Param {
	ps := append([]*nn.Param{}, e.patch.Params()...)
	ps = append(ps, e.positions)
	if e.time != nil {
		ps = append(ps, e.time)
	}
	for _, l := range e.layers {
		ps = append(ps, l.params()...)
	}
	return append(ps, e.final.Params()...)
}

// Sublayers implements Adaptable.
func (e *Encoder) Sublayers(path string) []*nn.Linear {
	var out []*nn.Linear
	for _, l := range e.layers {
		if lin, ok := l.sublayers()[path]; ok {
			out = append(out, lin)
		}
	}
	return out
}

// Encode runs the encoder over one clip given as a T × (C·H·W) matrix of normalized
// pixels, channel-major per frame, and returns the 1×hidden mean over all tokens.
// Pixels are treated as constants.
func (e *Encoder) Encode(t *autodiff.Tape, view *autodiff.Node) *autodiff.Node {
	frames, _ := view.Dims()
	if e.time == nil || frames != e.cfg.Frames {
		panic(fmt.Sprintf("encoder: clip of %d frames for a time embedding of %d", frames, e.cfg.Frames))
	}
	n := e.cfg.Patches()

	patches := Patchify(view.Value, e.cfg)
	x := e.patch.Forward(t, t.Const(patches))

	// token t*n+p gets position p and time t
	posIdx := make([]int, frames*n)
	timeIdx := make([]int, frames*n)
	for f := 0; f < frames; f++ {
		for p := 0; p < n; p++ {
			posIdx[f*n+p] = p
			timeIdx[f*n+p] = f
		}
	}
	x = t.Add(x, t.Gather(e.positions.Node(t), posIdx))
	x = t.Add(x, t.Gather(e.time.Node(t), timeIdx))

	// patch-major order groups each patch's frames together
	toPatchMajor := make([]int, frames*n)
	toFrameMajor := make([]int, frames*n)
	for p := 0; p < n; p++ {
		for f := 0; f < frames; f++ {
			toPatchMajor[p*frames+f] = f*n + p
			toFrameMajor[f*n+p] = p*frames + f
		}
	}

	for _, l := range e.layers {
		xt := t.Gather(x, toPatchMajor)
		h := l.TemporalNorm.Forward(t, xt)
		h = attendBlocks(t, l.TemporalQKV.Forward(t, h), n, frames, e.cfg.Heads)
		h = l.TemporalDense.Forward(t, l.TemporalOut.Forward(t, h))
		x = t.Gather(t.Add(xt, h), toFrameMajor)

		h = l.SpatialNorm.Forward(t, x)
		h = attendBlocks(t, l.SpatialQKV.Forward(t, h), frames, n, e.cfg.Heads)
		x = t.Add(x, l.SpatialOut.Forward(t, h))

		h = l.MLPNorm.Forward(t, x)
		h = l.Output.Forward(t, t.GELU(l.Intermediate.Forward(t, h)))
		x = t.Add(x, h)
	}

	return t.MeanRows(e.final.Forward(t, x))
}

// attendBlocks runs attention within each of blocks consecutive groups of size rows.
func attendBlocks(t *autodiff.Tape, qkv *autodiff.Node, blocks, size, heads int) *autodiff.Node {
	outs := make([]*autodiff.Node, blocks)
	for b := 0; b < blocks; b++ {
		outs[b] = nn.Attend(t, t.SliceRows(qkv, b*size, (b+1)*size), heads, 0)
	}
	if blocks == 1 {
		return outs[0]
	}
	return t.ConcatRows(outs...)
}

// Patchify cuts each frame of a T × (C·H·W) clip into non-overlapping patches, returning a
// (T·N) × (C·P·P) matrix whose row f*N+p is patch p of frame f in raster order.
func Patchify(view *mat.Dense, cfg Config) *mat.Dense {
	frames, cols := view.Dims()
	c, s, ps := cfg.Channels, cfg.ImageSize, cfg.PatchSize
	if cols != c*s*s {
		panic(fmt.Sprintf("encoder: frame has %d values, expected %dx%dx%d", cols, c, s, s))
	}
	side := s / ps
	n := side * side
	out := mat.NewDense(frames*n, cfg.PatchDim(), nil)
	for f := 0; f < frames; f++ {
		frame := view.RawRowView(f)
		for py := 0; py < side; py++ {
			for px := 0; px < side; px++ {
				row := out.RawRowView(f*n + py*side + px)
				k := 0
				for ch := 0; ch < c; ch++ {
					for y := 0; y < ps; y++ {
						base := ch*s*s + (py*ps+y)*s + px*ps
						copy(row[k:k+ps], frame[base:base+ps])
						k += ps
					}
				}
			}
		}
	}
	return out
}
