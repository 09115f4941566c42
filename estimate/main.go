package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/kesmarag/ml-gmm/gmmlib"
	"github.com/kesmarag/ml-gmm/gmmplot"
)

var (
	logger *zap.Logger
)

// config holds the estimation settings.  Values read from a YAML file are
// overridden by flags given explicitly on the command line.
type config struct {
	Data      string  `yaml:"data"`
	Cols      []int   `yaml:"cols"`
	NMixture  int     `yaml:"nmixture"`
	MaxSteps  int     `yaml:"maxsteps"`
	Tol       float64 `yaml:"tol"`
	KMeans    bool    `yaml:"kmeans"`
	Normalize bool    `yaml:"normalize"`
	Repair    string  `yaml:"repair"`
	Seed      uint64  `yaml:"seed"`
	Logname   string  `yaml:"logname"`
	ModelOut  string  `yaml:"modelout"`
	Plot      string  `yaml:"plot"`
}

func parseCols(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var cols []int
	for _, f := range strings.Split(s, ",") {
		j, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("bad column %q: %w", f, err)
		}
		cols = append(cols, j)
	}
	return cols, nil
}

func loadConfig() *config {

	cfg := &config{}
	cfgname := flag.String("config", "", "YAML file with estimation settings")
	flag.StringVar(&cfg.Data, "data", "", "CSV file of observations")
	cols := flag.String("cols", "", "Comma separated columns to use, all if empty")
	flag.IntVar(&cfg.NMixture, "nmixture", 2, "Number of mixtures")
	flag.IntVar(&cfg.MaxSteps, "maxsteps", 100, "Maximum number of EM steps")
	flag.Float64Var(&cfg.Tol, "tol", 1e-6, "Convergence tolerance per observation")
	flag.BoolVar(&cfg.KMeans, "kmeans", true, "Initialize the means by k-means")
	flag.BoolVar(&cfg.Normalize, "normalize", false, "Rescale every column to [-1, 1] before fitting")
	flag.StringVar(&cfg.Repair, "repair", "scale", "Covariance repair, 'scale' or 'identity'")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "Seed for the random starting means")
	flag.StringVar(&cfg.Logname, "logname", "gmm", "Prefix of log files")
	flag.StringVar(&cfg.ModelOut, "modelout", "", "Write the fitted model here")
	flag.StringVar(&cfg.Plot, "plot", "", "Prefix of marginal and joint density plots")
	flag.Parse()

	if *cfgname != "" {
		buf, err := os.ReadFile(*cfgname)
		if err != nil {
			logger.Fatal("cannot read config", zap.String("file", *cfgname), zap.Error(err))
		}
		fromFile := *cfg
		if err := yaml.Unmarshal(buf, &fromFile); err != nil {
			logger.Fatal("cannot parse config", zap.String("file", *cfgname), zap.Error(err))
		}
		fromFlags := *cfg
		*cfg = fromFile
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "data":
				cfg.Data = fromFlags.Data
			case "nmixture":
				cfg.NMixture = fromFlags.NMixture
			case "maxsteps":
				cfg.MaxSteps = fromFlags.MaxSteps
			case "tol":
				cfg.Tol = fromFlags.Tol
			case "kmeans":
				cfg.KMeans = fromFlags.KMeans
			case "normalize":
				cfg.Normalize = fromFlags.Normalize
			case "repair":
				cfg.Repair = fromFlags.Repair
			case "seed":
				cfg.Seed = fromFlags.Seed
			case "logname":
				cfg.Logname = fromFlags.Logname
			case "modelout":
				cfg.ModelOut = fromFlags.ModelOut
			case "plot":
				cfg.Plot = fromFlags.Plot
			}
		})
	}

	if *cols != "" || len(cfg.Cols) == 0 {
		c, err := parseCols(*cols)
		if err != nil {
			logger.Fatal("bad -cols", zap.Error(err))
		}
		cfg.Cols = c
	}

	return cfg
}

func readData(cfg *config) *mat.Dense {

	fid, err := os.Open(cfg.Data)
	if err != nil {
		logger.Fatal("cannot open data", zap.String("file", cfg.Data), zap.Error(err))
	}
	defer fid.Close()

	x, err := gmmlib.ReadCSV(fid, cfg.Cols)
	if err != nil {
		logger.Fatal("cannot read data", zap.String("file", cfg.Data), zap.Error(err))
	}

	return x
}

// plots writes one marginal plot per variable and one joint plot per pair
// of variables, in the original units of the data.  iv maps the fitted
// coordinates back to those units and ranges holds the data range of each
// variable.
func plots(gmm *gmmlib.GMM, data *mat.Dense, iv, ranges [][2]float64, prefix string) {

	n, d := data.Dims()
	obs := make([]float64, n)

	widen := func(r [2]float64) [2]float64 {
		pad := (r[1] - r[0]) / 4
		return [2]float64{r[0] - pad, r[1] + pad}
	}

	for i := 0; i < d; i++ {
		pi := widen(ranges[i])
		xs, ys, err := gmm.Marginal(i, iv[i], pi, 1, 0)
		if err != nil {
			logger.Fatal("marginal", zap.Int("var", i), zap.Error(err))
		}

		mat.Col(obs, i, data)
		fname := fmt.Sprintf("%s_marginal_%d.png", prefix, i)
		if err := gmmplot.Marginal(fname, fmt.Sprintf("variable %d", i), xs, ys, obs); err != nil {
			logger.Fatal("marginal plot", zap.String("file", fname), zap.Error(err))
		}
		logger.Info("wrote plot", zap.String("file", fname))

		for j := i + 1; j < d; j++ {
			pj := widen(ranges[j])
			g, err := gmm.Joint(i, j, [2][2]float64{iv[i], iv[j]}, [2][2]float64{pi, pj}, 1, 0)
			if err != nil {
				logger.Fatal("joint", zap.Int("var1", i), zap.Int("var2", j), zap.Error(err))
			}
			fname := fmt.Sprintf("%s_joint_%d_%d.png", prefix, i, j)
			if err := gmmplot.Joint(fname, fmt.Sprintf("variables %d and %d", i, j), g, 10); err != nil {
				logger.Fatal("joint plot", zap.String("file", fname), zap.Error(err))
			}
			logger.Info("wrote plot", zap.String("file", fname))
		}
	}
}

func main() {

	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if cfg.Data == "" {
		logger.Fatal("'data' is a required argument")
	}

	data := readData(cfg)
	n, d := data.Dims()
	logger.Info("read data", zap.String("file", cfg.Data), zap.Int("nobs", n), zap.Int("ndim", d))

	// Fit on [-1, 1] scaled data, or on the raw data with the identity map.
	x := data
	iv := make([][2]float64, d)
	if cfg.Normalize {
		x, iv = gmmlib.Normalize(data)
	} else {
		for j := range iv {
			iv[j] = [2]float64{-1, 1}
		}
	}

	gmm, err := gmmlib.New(cfg.NMixture, d, gmmlib.RandomMeans, rand.NewPCG(cfg.Seed, cfg.Seed))
	if err != nil {
		logger.Fatal("cannot create model", zap.Error(err))
	}

	switch cfg.Repair {
	case "scale":
		gmm.Repair = gmmlib.RepairScaleDiagonal
	case "identity":
		gmm.Repair = gmmlib.RepairAddIdentity
	default:
		logger.Fatal("unknown repair policy", zap.String("repair", cfg.Repair))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Logname), 0o755); err != nil {
		logger.Fatal("cannot create log directory", zap.Error(err))
	}
	if _, err := gmm.SetLogger(cfg.Logname); err != nil {
		logger.Fatal("cannot open logs", zap.Error(err))
	}
	defer func() {
		if err := gmm.CloseLogs(); err != nil {
			logger.Error("cannot close logs", zap.Error(err))
		}
	}()
	gmm.ShowProgress = true

	gmm.WriteSummary("Starting values:")
	st, err := gmm.Fit(x, cfg.MaxSteps, cfg.Tol, cfg.KMeans)
	fmt.Println()
	if err != nil {
		logger.Fatal("estimation failed", zap.Error(err))
	}
	gmm.WriteSummary("Estimated parameters:")

	logger.Info("fitted model", zap.Int("steps", st.Steps), zap.Bool("converged", st.Converged),
		zap.Float64("llf", st.LogPost))
	fmt.Print(gmm)

	if cfg.ModelOut != "" {
		if err := gmm.SaveFile(cfg.ModelOut); err != nil {
			logger.Fatal("cannot save model", zap.String("file", cfg.ModelOut), zap.Error(err))
		}
		logger.Info("saved model", zap.String("file", cfg.ModelOut))
	}

	if cfg.Plot != "" {
		_, ranges := gmmlib.Normalize(data)
		plots(gmm, data, iv, ranges, cfg.Plot)
	}
}
