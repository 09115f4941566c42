package gmmplot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/kesmarag/ml-gmm/gmmlib"
)

func TestMarginalPlot(t *testing.T) {

	gmm, err := gmmlib.New(2, 1, gmmlib.ZeroMeans, nil)
	require.NoError(t, err)
	gmm.Mean.Set(1, 0, 4)

	x, y, err := gmm.Marginal(0, [2]float64{-1, 1}, [2]float64{-4, 8}, 1, 200)
	require.NoError(t, err)

	fname := filepath.Join(t.TempDir(), "marginal.png")
	require.NoError(t, Marginal(fname, "x0", x, y, []float64{-0.5, 0, 0.3, 3.8, 4.1}))

	fi, err := os.Stat(fname)
	require.NoError(t, err)
	assert.Positive(t, fi.Size())
}

func TestMarginalMismatch(t *testing.T) {
	err := Marginal(filepath.Join(t.TempDir(), "m.png"), "", []float64{1, 2}, []float64{1}, nil)
	assert.Error(t, err)
}

func TestJointPlot(t *testing.T) {

	gmm, err := gmmlib.New(1, 2, gmmlib.ZeroMeans, nil)
	require.NoError(t, err)
	gmm.Cov[0] = mat.NewSymDense(2, []float64{1, 0.6, 0.6, 1})

	unit := [2][2]float64{{-1, 1}, {-1, 1}}
	g, err := gmm.Joint(0, 1, unit, [2][2]float64{{-3, 3}, {-3, 3}}, 1, 40)
	require.NoError(t, err)

	fname := filepath.Join(t.TempDir(), "joint.svg")
	require.NoError(t, Joint(fname, "x0 x1", g, 8))

	fi, err := os.Stat(fname)
	require.NoError(t, err)
	assert.Positive(t, fi.Size())

	assert.Error(t, Joint(fname, "", g, 0))
}
