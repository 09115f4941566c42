// Package gmmplot renders fitted mixture densities with gonum/plot.
package gmmplot

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	width  = 6 * vg.Inch
	height = 4 * vg.Inch
)

// Marginal writes a line plot of the density y at abscissas x to fname.
// The image format follows the file extension.  If obs is not empty, a
// normalized histogram of the observations is drawn underneath.
func Marginal(fname, title string, x, y, obs []float64) error {

	if len(x) != len(y) || len(x) < 2 {
		return fmt.Errorf("gmmplot: need matching abscissas and densities, got %d and %d", len(x), len(y))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "density"

	if len(obs) > 0 {
		h, err := plotter.NewHist(plotter.Values(obs), 40)
		if err != nil {
			return err
		}
		h.Normalize(1)
		h.FillColor = plotutil.Color(1)
		p.Add(h)
	}

	pts := make(plotter.XYs, len(x))
	for k := range x {
		pts[k].X = x[k]
		pts[k].Y = y[k]
	}
	if err := plotutil.AddLines(p, "mixture", pts); err != nil {
		return err
	}

	return p.Save(width, height, fname)
}

// Joint writes a contour plot of the grid to fname using nlevels evenly
// spaced levels between the smallest and largest grid values.
func Joint(fname, title string, g plotter.GridXYZ, nlevels int) error {

	if nlevels < 1 {
		return fmt.Errorf("gmmplot: need at least one contour level, got %d", nlevels)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	nc, nr := g.Dims()
	for c := 0; c < nc; c++ {
		for r := 0; r < nr; r++ {
			lo = math.Min(lo, g.Z(c, r))
			hi = math.Max(hi, g.Z(c, r))
		}
	}
	if !(hi > lo) {
		return fmt.Errorf("gmmplot: grid is constant")
	}

	// Interior levels only, the extremes give empty contours.
	levels := floats.Span(make([]float64, nlevels+2), lo, hi)[1 : nlevels+1]

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	p.Add(plotter.NewContour(g, levels, palette.Heat(nlevels, 1)))

	return p.Save(width, width, fname)
}
