package gmmlib

import (
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestWriteReadGMM(t *testing.T) {

	data := genClusters(51, [][]float64{{0, 0}, {5, 5}}, 25, 1)
	gmm, err := New(2, 2, RandomMeans, rand.NewPCG(2, 3))
	require.NoError(t, err)
	gmm.Repair = RepairAddIdentity
	_, err = gmm.Fit(data, 20, 1e-8, true)
	require.NoError(t, err)

	fname := filepath.Join(t.TempDir(), "model.gob.gz")
	require.NoError(t, gmm.SaveFile(fname))

	got, err := LoadFile(fname)
	require.NoError(t, err)

	assert.Equal(t, gmm.NMixture, got.NMixture)
	assert.Equal(t, gmm.NDim, got.NDim)
	assert.Equal(t, gmm.Weight, got.Weight)
	assert.Equal(t, gmm.LogPost, got.LogPost)
	assert.Equal(t, RepairAddIdentity, got.Repair)
	assert.True(t, mat.Equal(gmm.Mean, got.Mean))
	for m := range gmm.Cov {
		assert.True(t, mat.Equal(gmm.Cov[m], got.Cov[m]))
	}

	// A loaded model answers density queries like the original.
	unit := [2]float64{-1, 1}
	_, y1, err := gmm.Marginal(1, unit, [2]float64{-5, 10}, 1, 50)
	require.NoError(t, err)
	_, y2, err := got.Marginal(1, unit, [2]float64{-5, 10}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, y1, y2)
}

func TestReadGMMGarbage(t *testing.T) {
	_, err := ReadGMM(bytes.NewReader([]byte("not a model")))
	assert.Error(t, err)
}

func TestReadGMMRejectsBadParameters(t *testing.T) {

	for _, tc := range []struct {
		name   string
		change func(*GMM)
	}{
		{"singular covariance", func(g *GMM) { g.Cov[1] = mat.NewSymDense(2, []float64{1, 1, 1, 1}) }},
		{"small covariance", func(g *GMM) { g.Cov[0] = mat.NewSymDense(2, []float64{0.01, 0, 0, 1}) }},
		{"weights do not sum to one", func(g *GMM) { g.Weight = []float64{0.9, 0.9} }},
		{"negative weight", func(g *GMM) { g.Weight = []float64{1.5, -0.5} }},
		{"infinite mean", func(g *GMM) { g.Mean.Set(0, 1, math.Inf(1)) }},
	} {
		gmm, err := New(2, 2, ZeroMeans, nil)
		require.NoError(t, err)
		tc.change(gmm)

		var buf bytes.Buffer
		require.NoError(t, gmm.WriteGMM(&buf), tc.name)
		_, err = ReadGMM(&buf)
		assert.True(t, errors.Is(err, ErrInvalidArgument), tc.name)
	}
}

func TestReadCSV(t *testing.T) {

	in := "id,x,y,label\n1,0.1,0.2,a\n2,0.4,0.5,b\nbad,row\n3,0.7,0.8,c\n"

	x, err := ReadCSV(strings.NewReader(in), []int{1, 2})
	require.NoError(t, err)
	want := mat.NewDense(3, 2, []float64{0.1, 0.2, 0.4, 0.5, 0.7, 0.8})
	assert.True(t, mat.EqualApprox(x, want, 1e-12))

	x, err = ReadCSV(strings.NewReader("1,2\n3,4\n"), nil)
	require.NoError(t, err)
	assert.True(t, mat.Equal(x, mat.NewDense(2, 2, []float64{1, 2, 3, 4})))

	_, err = ReadCSV(strings.NewReader("a,b\nc,d\n"), nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = ReadCSV(strings.NewReader("1,2\n"), []int{5})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestNormalize(t *testing.T) {

	data := mat.NewDense(3, 2, []float64{
		0, 7,
		5, 7,
		10, 7,
	})

	x, iv := Normalize(data)
	assert.Equal(t, [2]float64{0, 10}, iv[0])
	assert.Equal(t, [2]float64{6, 8}, iv[1])
	assert.True(t, mat.EqualApprox(x, mat.NewDense(3, 2, []float64{-1, 0, 0, 0, 1, 0}), 1e-12))
}

func TestNormalizedFitMapsBack(t *testing.T) {

	data := genClusters(61, [][]float64{{100}, {140}}, 60, 2)
	x, iv := Normalize(data)

	gmm, err := New(2, 1, RandomMeans, rand.NewPCG(4, 4))
	require.NoError(t, err)
	_, err = gmm.Fit(x, 100, 1e-9, true)
	require.NoError(t, err)

	xs, ys, err := gmm.Marginal(0, iv[0], [2]float64{80, 160}, 1, 1601)
	require.NoError(t, err)

	// The density has local maxima near both original centers.
	at := func(v float64) float64 { return ys[int((v-80)/0.05+0.5)] }
	assert.Greater(t, at(100), at(120))
	assert.Greater(t, at(140), at(120))
	assert.InDelta(t, 1, trapezoid(xs, ys), 1e-3)
}
