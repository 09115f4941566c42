package main

import (
	"encoding/csv"
	"flag"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/kesmarag/ml-gmm/gmmlib"
	"github.com/kesmarag/ml-gmm/gmmsim"
)

func main() {

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	var outname, truthname string
	flag.StringVar(&outname, "outname", "", "Output CSV file")
	flag.StringVar(&truthname, "truth", "", "Also write the generating model here")

	var nMixture, nDim, n int
	flag.IntVar(&nMixture, "nmixture", 2, "Number of mixtures")
	flag.IntVar(&nDim, "ndim", 2, "Dimension of the observations")
	flag.IntVar(&n, "n", 500, "Number of observations")

	var sep, sd float64
	flag.Float64Var(&sep, "sep", 6, "Distance between neighboring means")
	flag.Float64Var(&sd, "sd", 1, "Standard deviation of every variable")

	var seed uint64
	flag.Uint64Var(&seed, "seed", 0, "Random seed, 0 to seed from the clock")
	flag.Parse()

	if outname == "" {
		logger.Fatal("'outname' is required")
	}

	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}

	mx := gmmsim.Diagonal(nMixture, nDim, sep, sd)
	x, labels, err := mx.Sample(n, rand.NewPCG(seed, seed))
	if err != nil {
		logger.Fatal("cannot sample", zap.Error(err))
	}

	fid, err := os.Create(outname)
	if err != nil {
		logger.Fatal("cannot create output", zap.String("file", outname), zap.Error(err))
	}
	defer fid.Close()

	w := csv.NewWriter(fid)
	head := make([]string, 0, nDim+1)
	for j := 0; j < nDim; j++ {
		head = append(head, "x"+strconv.Itoa(j))
	}
	_ = w.Write(append(head, "mixture"))

	rec := make([]string, nDim+1)
	for i := 0; i < n; i++ {
		for j := 0; j < nDim; j++ {
			rec[j] = strconv.FormatFloat(x.At(i, j), 'g', -1, 64)
		}
		rec[nDim] = strconv.Itoa(labels[i])
		_ = w.Write(rec)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logger.Fatal("cannot write output", zap.String("file", outname), zap.Error(err))
	}

	logger.Info("wrote observations", zap.String("file", outname), zap.Int("n", n),
		zap.Int("nmixture", nMixture), zap.Int("ndim", nDim), zap.Uint64("seed", seed))

	if truthname == "" {
		return
	}

	gmm, err := gmmlib.New(nMixture, nDim, gmmlib.ZeroMeans, nil)
	if err != nil {
		logger.Fatal("cannot create model", zap.Error(err))
	}
	gmm.Weight = mx.Weight
	for m := range mx.Mean {
		gmm.Mean.SetRow(m, mx.Mean[m])
		gmm.Cov[m] = mat.NewSymDense(nDim, nil)
		gmm.Cov[m].CopySym(mx.Cov[m])
		if !gmmlib.IsPosDef(gmm.Cov[m]) {
			logger.Fatal("generating covariance is too small to be stored as a model",
				zap.Int("mixture", m), zap.Float64("sd", sd))
		}
	}
	if err := gmm.SaveFile(truthname); err != nil {
		logger.Fatal("cannot save model", zap.String("file", truthname), zap.Error(err))
	}
}
