package gmmlib

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultKMeansInit = 10
	defaultKMeansIter = 300
)

// Clusterer partitions data into k clusters and returns the k×d matrix of
// cluster centers.
type Clusterer interface {
	Cluster(data mat.Matrix, k int) (*mat.Dense, error)
}

// KMeans is a Lloyd's algorithm Clusterer with k-means++ seeding.  The
// same Seed always produces the same centers.
type KMeans struct {

	// Seed for the random number generator
	Seed uint64

	// Number of seedings, the run with the lowest inertia is kept.
	// Defaults to 10.
	NInit int

	// Maximum number of Lloyd iterations per seeding, defaults to 300.
	MaxIter int
}

// Cluster runs k-means on the rows of data.
func (km *KMeans) Cluster(data mat.Matrix, k int) (*mat.Dense, error) {

	n, d := data.Dims()
	if k < 1 || k > n {
		return nil, fmt.Errorf("%w: cannot form %d clusters from %d observations", ErrInvalidArgument, k, n)
	}

	ninit := km.NInit
	if ninit <= 0 {
		ninit = defaultKMeansInit
	}
	maxiter := km.MaxIter
	if maxiter <= 0 {
		maxiter = defaultKMeansIter
	}

	obs := makeFloatArray(n, d)
	for i := range obs {
		mat.Row(obs[i], i, data)
	}

	rng := rand.New(rand.NewPCG(km.Seed, km.Seed))

	var best [][]float64
	binertia := math.Inf(1)
	for r := 0; r < ninit; r++ {
		centers := seedCenters(obs, k, rng)
		inertia := lloyd(obs, centers, maxiter)
		if inertia < binertia {
			binertia = inertia
			best = centers
		}
	}

	out := mat.NewDense(k, d, nil)
	for j := range best {
		out.SetRow(j, best[j])
	}

	return out, nil
}

// seedCenters chooses k initial centers using k-means++ seeding.
func seedCenters(obs [][]float64, k int, rng *rand.Rand) [][]float64 {

	n, d := len(obs), len(obs[0])
	centers := makeFloatArray(k, d)
	copy(centers[0], obs[rng.IntN(n)])

	dist := make([]float64, n)
	for i := 1; i < k; i++ {

		// Squared distance to the closest center chosen so far
		var s float64
		for j := range obs {
			l := math.Inf(1)
			for g := 0; g < i; g++ {
				if f := sqDist(centers[g], obs[j]); f < l {
					l = f
				}
			}
			dist[j] = l
			s += l
		}

		if s == 0 {
			copy(centers[i], obs[rng.IntN(n)])
			continue
		}

		t := rng.Float64() * s
		j := 0
		for u := dist[0]; u < t && j < n-1; u += dist[j] {
			j++
		}
		copy(centers[i], obs[j])
	}

	return centers
}

// lloyd refines centers in place and returns the final inertia (sum of
// squared distances to the closest center).
func lloyd(obs [][]float64, centers [][]float64, maxiter int) float64 {

	n, k := len(obs), len(centers)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	count := make([]int, k)

	var inertia float64
	for iter := 0; iter < maxiter; iter++ {

		changes := 0
		inertia = 0
		for i := range obs {
			c, dc := nearest(obs[i], centers)
			if c != assign[i] {
				changes++
				assign[i] = c
			}
			inertia += dc
		}

		if changes == 0 {
			break
		}

		// Recompute the centers; an empty cluster keeps its old center.
		for j := range count {
			count[j] = 0
		}
		for i := range obs {
			count[assign[i]]++
		}
		for j := range centers {
			if count[j] > 0 {
				zero(centers[j])
			}
		}
		for i := range obs {
			floats.Add(centers[assign[i]], obs[i])
		}
		for j := range centers {
			if count[j] > 0 {
				floats.Scale(1/float64(count[j]), centers[j])
			}
		}
	}

	return inertia
}

func nearest(x []float64, centers [][]float64) (int, float64) {
	c, m := 0, sqDist(x, centers[0])
	for j := 1; j < len(centers); j++ {
		if d := sqDist(x, centers[j]); d < m {
			c, m = j, d
		}
	}
	return c, m
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// Zero the elements of x
func zero(x []float64) {
	for j := range x {
		x[j] = 0
	}
}

// makeFloatArray makes a collection of r slices
// of length c, packed contiguously.
func makeFloatArray(r, c int) [][]float64 {

	bka := make([]float64, r*c)
	x := make([][]float64, r)
	ii := 0
	for j := 0; j < r; j++ {
		x[j] = bka[ii : ii+c]
		ii += c
	}

	return x
}
