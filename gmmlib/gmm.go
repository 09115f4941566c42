package gmmlib

import (
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/schollz/progressbar"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Every eigenvalue of a published covariance matrix exceeds this value.
	eigMin = 0.02

	// Size of one repair perturbation.
	repairStep = 0.05

	// Repair gives up after MaxRepair perturbations, or after as many as
	// are needed to lift every positive diagonal above its off-diagonal
	// row sum plus eigMin, whichever is larger, but never after more than
	// maxRepairCap.
	MaxRepair    = 200
	maxRepairCap = 2000

	// A mixture whose effective count falls below this value has collapsed.
	nmMin = 1e-10
)

// MeanInit selects how the mixture means are set at construction.
type MeanInit uint8

const (
	RandomMeans MeanInit = iota
	ZeroMeans
)

// RepairPolicy selects how a covariance matrix that is not positive
// definite is perturbed.
type RepairPolicy uint8

const (
	// RepairScaleDiagonal replaces cov with cov + 0.05 * I ∘ cov, i.e. the
	// diagonal is scaled by 1.05 and the off-diagonal is left alone.
	RepairScaleDiagonal RepairPolicy = iota

	// RepairAddIdentity replaces cov with cov + 0.05 * I.
	RepairAddIdentity
)

// GMM is a Gaussian mixture model whose parameters are estimated in place
// by the EM algorithm.
type GMM struct {

	// Number of mixtures
	NMixture int

	// Dimension of the observations
	NDim int

	// The mixing coefficients
	Weight []float64

	// The mixture means, one row per mixture
	Mean *mat.Dense

	// The mixture covariance matrices
	Cov []*mat.SymDense

	// The responsibilities from the most recent E-step, one row per
	// mixture and one column per observation
	Gamma *mat.Dense

	// The log-likelihood from the most recent EM step
	LogPost float64

	// The log-likelihood after each step of the most recent fit
	LLF []float64

	// How non positive definite covariances are repaired
	Repair RepairPolicy

	// Used for k-means initialization, KMeans{} if nil
	Clusterer Clusterer

	// Used for all density evaluations, Gaussian{} if nil
	Density Density

	// If true, Fit draws a progress bar on stdout
	ShowProgress bool

	// Write log messages here
	msglogger *zap.Logger
	parlogger *log.Logger
	logfiles  []*os.File
}

// FitStatus reports how a call to Fit ended.
type FitStatus struct {
	Steps     int
	Converged bool
	LogPost   float64
}

// New returns a GMM with uniform weights, identity covariances and means
// set according to init.  Random means are standard normal draws from src;
// a nil src is seeded from the clock.
func New(NMixture, NDim int, init MeanInit, src rand.Source) (*GMM, error) {

	if NMixture <= 0 || NDim <= 0 {
		return nil, fmt.Errorf("%w: NMixture=%d and NDim=%d must be positive",
			ErrInvalidArgument, NMixture, NDim)
	}

	gmm := &GMM{
		NMixture:  NMixture,
		NDim:      NDim,
		Weight:    make([]float64, NMixture),
		Mean:      mat.NewDense(NMixture, NDim, nil),
		Cov:       make([]*mat.SymDense, NMixture),
		msglogger: zap.NewNop(),
	}

	for m := 0; m < NMixture; m++ {
		gmm.Weight[m] = 1 / float64(NMixture)
		gmm.Cov[m] = identity(NDim)
	}

	switch init {
	case RandomMeans:
		if src == nil {
			t := uint64(time.Now().UnixNano())
			src = rand.NewPCG(t, t>>1)
		}
		rng := rand.New(src)
		for m := 0; m < NMixture; m++ {
			for j := 0; j < NDim; j++ {
				gmm.Mean.Set(m, j, rng.NormFloat64())
			}
		}
	case ZeroMeans:
	default:
		return nil, fmt.Errorf("%w: unknown mean initialization %d", ErrInvalidArgument, init)
	}

	return gmm, nil
}

func identity(n int) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		s.SetSym(i, i, 1)
	}
	return s
}

func (gmm *GMM) clusterer() Clusterer {
	if gmm.Clusterer == nil {
		return &KMeans{}
	}
	return gmm.Clusterer
}

func (gmm *GMM) density() Density {
	if gmm.Density == nil {
		return Gaussian{}
	}
	return gmm.Density
}

func (gmm *GMM) checkFit(data mat.Matrix, maxSteps int, tol float64) error {

	var err error
	if data == nil {
		return fmt.Errorf("%w: no data", ErrInvalidArgument)
	}
	n, d := data.Dims()
	if n == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: empty dataset", ErrInvalidArgument))
	}
	if d != gmm.NDim {
		err = multierr.Append(err, fmt.Errorf("%w: data has %d columns, model has dimension %d",
			ErrInvalidArgument, d, gmm.NDim))
	}
	if maxSteps < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: maxSteps=%d must be at least 1",
			ErrInvalidArgument, maxSteps))
	}
	if !(tol > 0) {
		err = multierr.Append(err, fmt.Errorf("%w: tolerance %v must be positive",
			ErrInvalidArgument, tol))
	}

	return err
}

// Fit uses the EM algorithm to estimate the mixture parameters.  At least
// one step is always taken.  Iteration stops when the change in the
// log-likelihood per observation is at most tol, or after maxSteps steps.
// If useKMeans is true, the means are replaced by k-means cluster centers
// before the first step.
func (gmm *GMM) Fit(data mat.Matrix, maxSteps int, tol float64, useKMeans bool) (FitStatus, error) {

	var status FitStatus

	if err := gmm.checkFit(data, maxSteps, tol); err != nil {
		return status, err
	}
	n, _ := data.Dims()

	if useKMeans {
		centers, err := gmm.clusterer().Cluster(data, gmm.NMixture)
		if err != nil {
			return status, err
		}
		if r, c := centers.Dims(); r != gmm.NMixture || c != gmm.NDim {
			return status, fmt.Errorf("%w: clusterer returned %d×%d centers, want %d×%d",
				ErrInvalidArgument, r, c, gmm.NMixture, gmm.NDim)
		}
		gmm.Mean = mat.DenseCopyOf(centers)
	}

	gmm.LLF = make([]float64, 0, maxSteps)

	var bar *progressbar.ProgressBar
	if gmm.ShowProgress {
		bar = progressbar.New(maxSteps)
	}

	gmm.msglogger.Info("estimating model parameters",
		zap.Int("nobs", n), zap.Int("nmixture", gmm.NMixture), zap.Int("ndim", gmm.NDim))

	for step := 0; step < maxSteps; step++ {

		prev := gmm.LogPost
		if err := gmm.emStep(data); err != nil {
			gmm.msglogger.Error("EM step failed", zap.Int("step", step), zap.Error(err))
			return status, err
		}
		status.Steps++
		status.LogPost = gmm.LogPost
		gmm.LLF = append(gmm.LLF, gmm.LogPost)

		if bar != nil {
			_ = bar.Add(1)
		}

		if step > 0 && gmm.LogPost < prev {
			gmm.msglogger.Info("log-likelihood decreased",
				zap.Int("step", step), zap.Float64("by", prev-gmm.LogPost))
		}
		gmm.msglogger.Debug("EM step", zap.Int("step", step), zap.Float64("llf", gmm.LogPost))

		if math.Abs(gmm.LogPost-prev)/float64(n) <= tol {
			status.Converged = true
			break
		}
	}

	gmm.msglogger.Info("finished estimation", zap.Int("steps", status.Steps),
		zap.Bool("converged", status.Converged), zap.Float64("llf", gmm.LogPost))

	return status, nil
}

// emStep runs one expectation step followed by one maximization step.
func (gmm *GMM) emStep(data mat.Matrix) error {

	lse, err := gmm.Expectation(data)
	if err != nil {
		return err
	}

	if err := gmm.Maximization(data); err != nil {
		return err
	}

	// The likelihood of the parameters that produced Gamma.
	gmm.LogPost = floats.Sum(lse)

	return nil
}

// Expectation computes the responsibilities Gamma for the current
// parameters.  It returns, for each observation, the log of the mixture
// density at that observation.  Gamma is left unchanged on error.
func (gmm *GMM) Expectation(data mat.Matrix) ([]float64, error) {

	n, d := data.Dims()
	if d != gmm.NDim {
		return nil, fmt.Errorf("%w: data has %d columns, model has dimension %d",
			ErrInvalidArgument, d, gmm.NDim)
	}

	// Weighted log densities, mixtures by observations.
	gamma := mat.NewDense(gmm.NMixture, n, nil)
	row := make([]float64, d)
	for m := 0; m < gmm.NMixture; m++ {
		logpdf, err := gmm.density().LogPDF(gmm.Mean.RawRowView(m), gmm.Cov[m])
		if err != nil {
			return nil, fmt.Errorf("mixture %d: %w", m, err)
		}
		lw := math.Log(gmm.Weight[m])
		for i := 0; i < n; i++ {
			mat.Row(row, i, data)
			gamma.Set(m, i, lw+logpdf(row))
		}
	}

	// Normalize each column on the log scale.
	lse := make([]float64, n)
	col := make([]float64, gmm.NMixture)
	for i := 0; i < n; i++ {
		mat.Col(col, i, gamma)
		s := floats.LogSumExp(col)
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: observation %d has log-likelihood %v",
				ErrNumericalFailure, i, s)
		}
		lse[i] = s
		for m := range col {
			gamma.Set(m, i, math.Exp(col[m]-s))
		}
	}

	gmm.Gamma = gamma

	return lse, nil
}

// Maximization re-estimates the weights, means and covariances from the
// current responsibilities.  Nothing is changed unless every covariance
// matrix could be made positive definite.
func (gmm *GMM) Maximization(data mat.Matrix) error {

	n, d := data.Dims()
	if gmm.Gamma == nil {
		return fmt.Errorf("%w: no responsibilities, run Expectation first", ErrInvalidArgument)
	}
	if r, c := gmm.Gamma.Dims(); r != gmm.NMixture || c != n || d != gmm.NDim {
		return fmt.Errorf("%w: responsibilities are %d×%d, data is %d×%d",
			ErrInvalidArgument, r, c, n, d)
	}

	nm := make([]float64, gmm.NMixture)
	for m := range nm {
		nm[m] = floats.Sum(gmm.Gamma.RawRowView(m))
		if nm[m] < nmMin {
			return fmt.Errorf("%w: mixture %d has collapsed (effective count %g)",
				ErrNumericalFailure, m, nm[m])
		}
	}

	weight := make([]float64, gmm.NMixture)
	floats.ScaleTo(weight, 1/float64(n), nm)

	mean := mat.NewDense(gmm.NMixture, d, nil)
	mean.Mul(gmm.Gamma, data)
	for m := 0; m < gmm.NMixture; m++ {
		floats.Scale(1/nm[m], mean.RawRowView(m))
	}

	cov := make([]*mat.SymDense, gmm.NMixture)
	x := make([]float64, d)
	xv := mat.NewVecDense(d, x)
	for m := 0; m < gmm.NMixture; m++ {
		mu := mean.RawRowView(m)
		c := mat.NewSymDense(d, nil)
		for i := 0; i < n; i++ {
			mat.Row(x, i, data)
			floats.Sub(x, mu)
			c.SymRankOne(c, gmm.Gamma.At(m, i), xv)
		}
		c.ScaleSym(1/nm[m], c)

		k, err := RepairCov(c, gmm.Repair)
		if err != nil {
			return fmt.Errorf("mixture %d: %w", m, err)
		}
		if k > 0 {
			gmm.msglogger.Debug("repaired covariance", zap.Int("mixture", m), zap.Int("perturbations", k))
		}
		cov[m] = c
	}

	gmm.Weight = weight
	gmm.Mean = mean
	gmm.Cov = cov

	return nil
}

// IsPosDef returns true if every eigenvalue of s exceeds 0.02.
func IsPosDef(s mat.Symmetric) bool {

	var eig mat.EigenSym
	if !eig.Factorize(s, false) {
		return false
	}
	for _, v := range eig.Values(nil) {
		if !(v > eigMin) {
			return false
		}
	}

	return true
}

// RepairCov perturbs s in place until it is positive definite, returning
// the number of perturbations applied.  If s is still not positive definite
// after repairLimit(s, policy) perturbations, an error wrapping
// ErrNumericalFailure is returned.
func RepairCov(s *mat.SymDense, policy RepairPolicy) (int, error) {

	if policy != RepairScaleDiagonal && policy != RepairAddIdentity {
		return 0, fmt.Errorf("%w: unknown repair policy %d", ErrInvalidArgument, policy)
	}

	n := s.SymmetricDim()
	limit := repairLimit(s, policy)
	for k := 0; k < limit; k++ {
		if IsPosDef(s) {
			return k, nil
		}
		for i := 0; i < n; i++ {
			if policy == RepairScaleDiagonal {
				s.SetSym(i, i, s.At(i, i)*(1+repairStep))
			} else {
				s.SetSym(i, i, s.At(i, i)+repairStep)
			}
		}
	}

	if IsPosDef(s) {
		return limit, nil
	}

	return limit, fmt.Errorf("%w: covariance is not positive definite after %d perturbations",
		ErrNumericalFailure, limit)
}

// repairLimit returns the number of perturbations after which every row of
// s is diagonally dominant by more than eigMin, so that all eigenvalues
// exceed eigMin.  Scaling cannot move a diagonal that is zero or negative,
// such matrices get MaxRepair.
func repairLimit(s mat.Symmetric, policy RepairPolicy) int {

	n := s.SymmetricDim()
	need := 0.0
	for i := 0; i < n; i++ {
		d := s.At(i, i)
		target := eigMin
		for j := 0; j < n; j++ {
			if j != i {
				target += math.Abs(s.At(i, j))
			}
		}
		if d >= target {
			continue
		}

		var k float64
		switch policy {
		case RepairScaleDiagonal:
			if !(d > 0) {
				return MaxRepair
			}
			k = math.Ceil(math.Log(target/d) / math.Log1p(repairStep))
		case RepairAddIdentity:
			k = math.Ceil((target - d) / repairStep)
		}
		need = math.Max(need, k+1)
	}

	if math.IsNaN(need) || need > maxRepairCap {
		return maxRepairCap
	}

	return max(MaxRepair, int(need))
}
