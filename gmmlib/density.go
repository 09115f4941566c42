package gmmlib

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	defaultMarginalSamples = 1000
	defaultJointSamples    = 100
)

// Density evaluates normal densities.
type Density interface {

	// LogPDF returns a function that computes the log density of the
	// normal distribution with mean mu and covariance cov.
	LogPDF(mu []float64, cov mat.Symmetric) (func(x []float64) float64, error)

	// PDF1 returns the density at x of the univariate normal distribution
	// with mean mu and variance v.
	PDF1(x, mu, v float64) float64
}

// Gaussian is the Density backed by gonum's distmv and distuv packages.
type Gaussian struct{}

func (Gaussian) LogPDF(mu []float64, cov mat.Symmetric) (func(x []float64) float64, error) {
	nrm, ok := distmv.NewNormal(mu, cov, nil)
	if !ok {
		return nil, fmt.Errorf("%w: covariance is not positive definite", ErrNumericalFailure)
	}
	return nrm.LogProb, nil
}

func (Gaussian) PDF1(x, mu, v float64) float64 {
	return distuv.Normal{Mu: mu, Sigma: math.Sqrt(v)}.Prob(x)
}

// affine returns the scale and center mapping the normalized interval
// [-scale, scale] onto iv.
func affine(iv [2]float64, scale float64) (float64, float64) {
	return (iv[1] - iv[0]) / (2 * scale), (iv[0] + iv[1]) / 2
}

func checkInterval(name string, iv [2]float64) error {
	if !(iv[1] > iv[0]) {
		return fmt.Errorf("%w: %s [%v, %v] is empty", ErrInvalidArgument, name, iv[0], iv[1])
	}
	return nil
}

// Marginal returns the marginal density of variable i on nsamp evenly
// spaced points of plotInterval.  The fitted coordinates are taken to be
// normalized so that the interval [-scale, scale] corresponds to interval
// in the original units.  A non-positive scale means 1 and a non-positive
// nsamp means 1000.
func (gmm *GMM) Marginal(i int, interval, plotInterval [2]float64, scale float64, nsamp int) ([]float64, []float64, error) {

	if scale <= 0 {
		scale = 1
	}
	if nsamp <= 0 {
		nsamp = defaultMarginalSamples
	}
	if i < 0 || i >= gmm.NDim {
		return nil, nil, fmt.Errorf("%w: variable %d out of range [0, %d)", ErrInvalidArgument, i, gmm.NDim)
	}
	if nsamp < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 sample points, got %d", ErrInvalidArgument, nsamp)
	}
	if err := checkInterval("interval", interval); err != nil {
		return nil, nil, err
	}
	if err := checkInterval("plot interval", plotInterval); err != nil {
		return nil, nil, err
	}

	ra, c := affine(interval, scale)

	x := floats.Span(make([]float64, nsamp), plotInterval[0], plotInterval[1])
	y := make([]float64, nsamp)
	dens := gmm.density()

	for m := 0; m < gmm.NMixture; m++ {
		mu := ra*gmm.Mean.At(m, i) + c
		v := gmm.Cov[m].At(i, i) * ra * ra
		for k := range x {
			y[k] += gmm.Weight[m] * dens.PDF1(x[k], mu, v)
		}
	}

	return x, y, nil
}

// Grid holds a density evaluated on a rectangular grid.  The value at
// column c and row r is the density at (X(c), Y(r)).
type Grid struct {
	x, y []float64
	z    *mat.Dense
}

// Dims returns the number of columns and rows of the grid.
func (g *Grid) Dims() (c, r int) { return len(g.x), len(g.y) }

func (g *Grid) X(c int) float64 { return g.x[c] }

func (g *Grid) Y(r int) float64 { return g.y[r] }

func (g *Grid) Z(c, r int) float64 { return g.z.At(r, c) }

// Values returns the density values, one row per Y coordinate.
func (g *Grid) Values() *mat.Dense { return g.z }

// Meshgrid returns the X and Y coordinates of every grid point, laid out
// like Values.
func (g *Grid) Meshgrid() (*mat.Dense, *mat.Dense) {
	nc, nr := g.Dims()
	xx := mat.NewDense(nr, nc, nil)
	yy := mat.NewDense(nr, nc, nil)
	for r := 0; r < nr; r++ {
		for c := 0; c < nc; c++ {
			xx.Set(r, c, g.x[c])
			yy.Set(r, c, g.y[r])
		}
	}
	return xx, yy
}

// Joint returns the joint density of variables i and j on an nsamp×nsamp
// grid spanning plotIntervals.  The rescaling is the same as for Marginal,
// applied separately to each variable using intervals[0] for i and
// intervals[1] for j.  A non-positive nsamp means 100.
func (gmm *GMM) Joint(i, j int, intervals, plotIntervals [2][2]float64, scale float64, nsamp int) (*Grid, error) {

	if scale <= 0 {
		scale = 1
	}
	if nsamp <= 0 {
		nsamp = defaultJointSamples
	}
	for _, v := range []int{i, j} {
		if v < 0 || v >= gmm.NDim {
			return nil, fmt.Errorf("%w: variable %d out of range [0, %d)", ErrInvalidArgument, v, gmm.NDim)
		}
	}
	if nsamp < 2 {
		return nil, fmt.Errorf("%w: need at least 2 sample points, got %d", ErrInvalidArgument, nsamp)
	}
	for k := 0; k < 2; k++ {
		if err := checkInterval("interval", intervals[k]); err != nil {
			return nil, err
		}
		if err := checkInterval("plot interval", plotIntervals[k]); err != nil {
			return nil, err
		}
	}

	rai, ci := affine(intervals[0], scale)
	raj, cj := affine(intervals[1], scale)

	g := &Grid{
		x: floats.Span(make([]float64, nsamp), plotIntervals[0][0], plotIntervals[0][1]),
		y: floats.Span(make([]float64, nsamp), plotIntervals[1][0], plotIntervals[1][1]),
		z: mat.NewDense(nsamp, nsamp, nil),
	}

	pt := make([]float64, 2)
	for m := 0; m < gmm.NMixture; m++ {
		mu := []float64{rai*gmm.Mean.At(m, i) + ci, raj*gmm.Mean.At(m, j) + cj}
		s := gmm.Cov[m]
		cov := mat.NewSymDense(2, []float64{
			s.At(i, i) * rai * rai, s.At(i, j) * rai * raj,
			s.At(i, j) * rai * raj, s.At(j, j) * raj * raj,
		})
		if _, err := RepairCov(cov, gmm.Repair); err != nil {
			return nil, fmt.Errorf("mixture %d: %w", m, err)
		}

		logpdf, err := gmm.density().LogPDF(mu, cov)
		if err != nil {
			return nil, fmt.Errorf("mixture %d: %w", m, err)
		}

		for r := 0; r < nsamp; r++ {
			pt[1] = g.y[r]
			for c := 0; c < nsamp; c++ {
				pt[0] = g.x[c]
				g.z.Set(r, c, g.z.At(r, c)+gmm.Weight[m]*math.Exp(logpdf(pt)))
			}
		}
	}

	return g, nil
}
