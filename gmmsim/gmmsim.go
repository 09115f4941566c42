// Package gmmsim draws synthetic datasets from known Gaussian mixtures.
package gmmsim

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mixture is a Gaussian mixture with known parameters.
type Mixture struct {
	Weight []float64
	Mean   [][]float64
	Cov    []*mat.SymDense
}

// Diagonal returns an equally weighted mixture of nmix components whose
// means lie on the main diagonal, sep apart, each with covariance sd²I.
func Diagonal(nmix, ndim int, sep, sd float64) *Mixture {

	mx := &Mixture{
		Weight: make([]float64, nmix),
		Mean:   make([][]float64, nmix),
		Cov:    make([]*mat.SymDense, nmix),
	}

	step := sep / math.Sqrt(float64(ndim))
	for m := 0; m < nmix; m++ {
		mx.Weight[m] = 1 / float64(nmix)
		mx.Mean[m] = make([]float64, ndim)
		for j := range mx.Mean[m] {
			mx.Mean[m][j] = step * float64(m)
		}
		c := mat.NewSymDense(ndim, nil)
		for j := 0; j < ndim; j++ {
			c.SetSym(j, j, sd*sd)
		}
		mx.Cov[m] = c
	}

	return mx
}

// Sample draws n observations from the mixture.  It returns the n×d
// observations and the component that generated each one.
func (mx *Mixture) Sample(n int, src rand.Source) (*mat.Dense, []int, error) {

	if n < 1 || len(mx.Weight) == 0 || len(mx.Mean) != len(mx.Weight) || len(mx.Cov) != len(mx.Weight) {
		return nil, nil, fmt.Errorf("gmmsim: inconsistent mixture or n=%d", n)
	}

	dists := make([]*distmv.Normal, len(mx.Weight))
	for m := range dists {
		nrm, ok := distmv.NewNormal(mx.Mean[m], mx.Cov[m], src)
		if !ok {
			return nil, nil, fmt.Errorf("gmmsim: covariance %d is not positive definite", m)
		}
		dists[m] = nrm
	}

	cat := distuv.NewCategorical(mx.Weight, src)
	x := mat.NewDense(n, len(mx.Mean[0]), nil)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		k := int(cat.Rand())
		labels[i] = k
		dists[k].Rand(x.RawRowView(i))
	}

	return x, labels, nil
}

// MeanError returns the average distance from each true mean to the
// closest row of fitted.
func (mx *Mixture) MeanError(fitted mat.Matrix) float64 {

	r, c := fitted.Dims()
	row := make([]float64, c)

	var s float64
	for _, mu := range mx.Mean {
		best := math.Inf(1)
		for i := 0; i < r; i++ {
			mat.Row(row, i, fitted)
			best = math.Min(best, floats.Distance(mu, row, 2))
		}
		s += best
	}

	return s / float64(len(mx.Mean))
}
