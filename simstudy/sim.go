package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"runtime"

	"github.com/schollz/progressbar"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kesmarag/ml-gmm/gmmlib"
	"github.com/kesmarag/ml-gmm/gmmsim"
)

var (
	logger *zap.Logger

	out io.WriteCloser

	repairnames = map[gmmlib.RepairPolicy]string{
		gmmlib.RepairScaleDiagonal: "scale",
		gmmlib.RepairAddIdentity:   "identity",
	}
)

type model struct {
	nmixture int
	ndim     int
	nobs     int
	sep      float64
	sd       float64
	maxsteps int
	tol      float64
	kmeans   bool
	repair   gmmlib.RepairPolicy
}

var (
	basemodel = model{
		nmixture: 3,
		ndim:     2,
		nobs:     300,
		sep:      6,
		sd:       1,
		maxsteps: 200,
		tol:      1e-8,
		kmeans:   true,
		repair:   gmmlib.RepairScaleDiagonal,
	}
)

// fit simulates one dataset from m and fits a model to it.  The returned
// error is only set for failures of the fit itself.
func fit(m model, rep int) (gmmlib.FitStatus, float64, error) {

	seed := uint64(rep)
	mx := gmmsim.Diagonal(m.nmixture, m.ndim, m.sep, m.sd)
	x, _, err := mx.Sample(m.nobs, rand.NewPCG(seed, 1))
	if err != nil {
		panic(err)
	}

	gmm, err := gmmlib.New(m.nmixture, m.ndim, gmmlib.RandomMeans, rand.NewPCG(seed, 2))
	if err != nil {
		panic(err)
	}
	gmm.Repair = m.repair
	gmm.Clusterer = &gmmlib.KMeans{Seed: seed}

	st, err := gmm.Fit(x, m.maxsteps, m.tol, m.kmeans)
	if err != nil {
		return st, 0, err
	}

	return st, mx.MeanError(gmm.Mean), nil
}

type result struct {
	st   gmmlib.FitStatus
	merr float64
	err  error
}

// run fits nrep replications of m, at most nworker at a time, and writes
// one row per replication in replication order.
func run(m model, nrep, nworker int, bar *progressbar.ProgressBar) {

	res := make([]result, nrep)

	var g errgroup.Group
	g.SetLimit(nworker)
	for i := 0; i < nrep; i++ {
		g.Go(func() error {
			st, merr, err := fit(m, i)
			res[i] = result{st, merr, err}
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range res {
		_ = bar.Add(1)

		failed := r.err != nil
		if failed {
			logger.Info("fit failed", zap.Int("rep", i), zap.Int("nmixture", m.nmixture),
				zap.Float64("sep", m.sep), zap.Error(r.err))
		}

		_, _ = io.WriteString(out, fmt.Sprintf("%d,%d,%.2f,%t,%s,%d,%d,%t,%t,%.6f,%.4f\n",
			m.nmixture, m.ndim, m.sep, m.kmeans, repairnames[m.repair], i,
			r.st.Steps, r.st.Converged, failed, r.merr, r.st.LogPost))
	}
}

func main() {

	nrep := flag.Int("reps", 20, "Number of replications per setting")
	outname := flag.String("out", "result.csv", "Results file")
	logname := flag.String("logname", "sim.log", "Log file")
	nworker := flag.Int("workers", runtime.NumCPU(), "Number of concurrent fits")
	flag.Parse()

	var err error
	out, err = os.Create(*outname)
	if err != nil {
		panic(err)
	}
	defer out.Close()

	head := "NMixture,NDim,Sep,KMeans,Repair,Run,Steps,Converged,Failed,MeanError,LogPost\n"
	_, _ = io.WriteString(out, head)

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{*logname}
	logger, err = cfg.Build()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	var settings []model
	for _, nmix := range []int{2, 3, 5} {
		for _, sep := range []float64{2, 4, 8} {
			for _, kmeans := range []bool{true, false} {
				m := basemodel
				m.nmixture = nmix
				m.sep = sep
				m.kmeans = kmeans
				settings = append(settings, m)
			}
		}
	}
	m := basemodel
	m.repair = gmmlib.RepairAddIdentity
	settings = append(settings, m)

	bar := progressbar.New(len(settings) * *nrep)
	for _, m := range settings {
		logger.Info("running setting", zap.Int("nmixture", m.nmixture), zap.Float64("sep", m.sep),
			zap.Bool("kmeans", m.kmeans), zap.String("repair", repairnames[m.repair]))
		run(m, *nrep, max(*nworker, 1), bar)
	}
	fmt.Println()
}
