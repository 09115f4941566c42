package gmmsim

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestDiagonal(t *testing.T) {

	mx := Diagonal(3, 4, 10, 0.5)
	require.Len(t, mx.Mean, 3)
	assert.InDelta(t, 10, math.Sqrt(4*math.Pow(mx.Mean[1][0]-mx.Mean[0][0], 2)), 1e-12)
	assert.InDelta(t, 0.25, mx.Cov[2].At(3, 3), 1e-12)
	assert.Equal(t, 0.0, mx.Cov[2].At(0, 3))
}

func TestSample(t *testing.T) {

	mx := Diagonal(2, 1, 20, 1)
	x, labels, err := mx.Sample(2000, rand.NewPCG(1, 2))
	require.NoError(t, err)

	r, c := x.Dims()
	require.Equal(t, 2000, r)
	require.Equal(t, 1, c)

	var a, b []float64
	for i, k := range labels {
		if k == 0 {
			a = append(a, x.At(i, 0))
		} else {
			b = append(b, x.At(i, 0))
		}
	}
	assert.InDelta(t, 0.5, float64(len(a))/2000, 0.05)
	assert.InDelta(t, 0, stat.Mean(a, nil), 0.2)
	assert.InDelta(t, 20, stat.Mean(b, nil), 0.2)
}

func TestSampleInvalid(t *testing.T) {
	mx := Diagonal(2, 2, 1, 1)
	_, _, err := mx.Sample(0, rand.NewPCG(1, 1))
	assert.Error(t, err)

	mx.Cov[1] = mat.NewSymDense(2, nil)
	_, _, err = mx.Sample(10, rand.NewPCG(1, 1))
	assert.Error(t, err)
}

func TestMeanError(t *testing.T) {
	mx := Diagonal(2, 1, 10, 1)
	fitted := mat.NewDense(2, 1, []float64{10.5, -0.5})
	assert.InDelta(t, 0.5, mx.MeanError(fitted), 1e-12)
}
