package encoder

import (
	"math"

	"github.com/kiteco/skillview/kite-golib/nn"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// AdaptTimeEmbedding resizes a F×D time-embedding table to target rows by linear
// interpolation. When the table already has target rows it is returned unchanged,
// otherwise the result is a new trainable parameter.
//
// Row t samples source position min(t*src/target, src-1). Upsampling therefore ends on
// the last source row; downsampling ends short of it, e.g. 8 rows to 4 ends on row 6.
func AdaptTimeEmbedding(table *nn.Param, target int) *nn.Param {
	src, d := table.Dims()
	if src == target {
		return table
	}

	scale := float64(target) / float64(src)
	out := mat.NewDense(target, d, nil)
	for t := 0; t < target; t++ {
		orig := math.Min(float64(t)/scale, float64(src-1))
		lo := int(orig)
		hi := lo + 1
		if hi > src-1 {
			hi = src - 1
		}
		frac := orig - float64(lo)

		row := out.RawRowView(t)
		floats.AddScaled(row, 1-frac, table.Value.RawRowView(lo))
		floats.AddScaled(row, frac, table.Value.RawRowView(hi))
	}
	return &nn.Param{Name: table.Name, Value: out, Trainable: true}
}
