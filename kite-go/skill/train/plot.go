package train

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kiteco/skillview/kite-golib/errors"
)

// PlotLoss writes the per-step training loss to a PNG or SVG at path.
func PlotLoss(path string, losses []float64) error {
	if len(losses) == 0 {
		return errors.New("no losses to plot")
	}
	pts := make(plotter.XYs, len(losses))
	for i, l := range losses {
		pts[i].X = float64(i + 1)
		pts[i].Y = l
	}

	p := plot.New()
	p.Title.Text = "training loss"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "loss"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrapf(err, "error building loss line")
	}
	p.Add(line, plotter.NewGrid())
	return errors.WrapfOrNil(p.Save(6*vg.Inch, 4*vg.Inch, path), "error saving loss plot")
}
