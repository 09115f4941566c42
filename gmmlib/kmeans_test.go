package gmmlib

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestKMeansSeparated(t *testing.T) {

	centers := [][]float64{{0, 0}, {10, 10}, {-10, 10}}
	data := genClusters(41, centers, 30, 0.5)

	km := &KMeans{}
	got, err := km.Cluster(data, 3)
	require.NoError(t, err)

	r, c := got.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 2, c)

	// Every true center has a fitted center close to it.
	for _, want := range centers {
		j, d := nearest(want, [][]float64{got.RawRowView(0), got.RawRowView(1), got.RawRowView(2)})
		assert.Less(t, d, 0.25, "center %v matched by %v", want, got.RawRowView(j))
	}
}

func TestKMeansDeterministic(t *testing.T) {

	data := genClusters(42, [][]float64{{0}, {3}, {6}}, 20, 1.5)

	a, err := (&KMeans{Seed: 9}).Cluster(data, 3)
	require.NoError(t, err)
	b, err := (&KMeans{Seed: 9}).Cluster(data, 3)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestKMeansIdenticalPoints(t *testing.T) {

	data := mat.NewDense(4, 1, []float64{2, 2, 2, 2})
	got, err := (&KMeans{NInit: 1}).Cluster(data, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.At(0, 0))
	assert.Equal(t, 2.0, got.At(1, 0))
}

func TestKMeansOneDimension(t *testing.T) {

	data := mat.NewDense(6, 1, []float64{1, 2, 3, 101, 102, 103})
	got, err := (&KMeans{}).Cluster(data, 2)
	require.NoError(t, err)

	c := []float64{got.At(0, 0), got.At(1, 0)}
	sort.Float64s(c)
	assert.InDelta(t, 2, c[0], 1e-12)
	assert.InDelta(t, 102, c[1], 1e-12)
}

func TestKMeansInvalid(t *testing.T) {
	data := mat.NewDense(2, 1, []float64{1, 2})
	_, err := (&KMeans{}).Cluster(data, 3)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	_, err = (&KMeans{}).Cluster(data, 0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
