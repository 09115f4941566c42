package gmmlib

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Stored mixing coefficients must sum to one within this tolerance.
const weightTol = 1e-6

// stored is the gob representation of a fitted model.
type stored struct {
	NMixture int
	NDim     int
	Weight   []float64
	Mean     []float64
	Cov      [][]float64
	LogPost  float64
	Repair   RepairPolicy
}

// WriteGMM writes the model parameters to w as a gzip-compressed gob.
func (gmm *GMM) WriteGMM(w io.Writer) error {

	st := stored{
		NMixture: gmm.NMixture,
		NDim:     gmm.NDim,
		Weight:   gmm.Weight,
		Mean:     mat.DenseCopyOf(gmm.Mean).RawMatrix().Data,
		Cov:      make([][]float64, gmm.NMixture),
		LogPost:  gmm.LogPost,
		Repair:   gmm.Repair,
	}
	for m, c := range gmm.Cov {
		st.Cov[m] = mat.DenseCopyOf(c).RawMatrix().Data
	}

	gid := gzip.NewWriter(w)
	if err := gob.NewEncoder(gid).Encode(&st); err != nil {
		return err
	}

	return gid.Close()
}

// ReadGMM reads a model written by WriteGMM.  The mixing coefficients must
// be a probability vector and every covariance must pass IsPosDef.
func ReadGMM(r io.Reader) (*GMM, error) {

	gid, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gid.Close()

	var st stored
	if err := gob.NewDecoder(gid).Decode(&st); err != nil {
		return nil, err
	}

	gmm, err := New(st.NMixture, st.NDim, ZeroMeans, nil)
	if err != nil {
		return nil, err
	}

	if len(st.Weight) != st.NMixture || len(st.Mean) != st.NMixture*st.NDim || len(st.Cov) != st.NMixture {
		return nil, fmt.Errorf("%w: stored parameters do not match %d mixtures of dimension %d",
			ErrInvalidArgument, st.NMixture, st.NDim)
	}

	for m, w := range st.Weight {
		if !(w >= 0) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: mixing coefficient %d is %v", ErrInvalidArgument, m, w)
		}
	}
	if s := floats.Sum(st.Weight); math.Abs(s-1) > weightTol {
		return nil, fmt.Errorf("%w: mixing coefficients sum to %v", ErrInvalidArgument, s)
	}
	for _, v := range st.Mean {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: mean is not finite", ErrInvalidArgument)
		}
	}

	gmm.Weight = st.Weight
	gmm.Mean = mat.NewDense(st.NMixture, st.NDim, st.Mean)
	for m, c := range st.Cov {
		if len(c) != st.NDim*st.NDim {
			return nil, fmt.Errorf("%w: covariance %d has %d values", ErrInvalidArgument, m, len(c))
		}
		s := mat.NewSymDense(st.NDim, c)
		if !IsPosDef(s) {
			return nil, fmt.Errorf("%w: covariance %d is not positive definite", ErrInvalidArgument, m)
		}
		gmm.Cov[m] = s
	}
	gmm.LogPost = st.LogPost
	gmm.Repair = st.Repair

	return gmm, nil
}

// SaveFile writes the model to the named file, see WriteGMM.
func (gmm *GMM) SaveFile(fname string) error {

	fid, err := os.Create(fname)
	if err != nil {
		return err
	}

	if err := gmm.WriteGMM(fid); err != nil {
		fid.Close()
		return err
	}

	return fid.Close()
}

// LoadFile reads a model from the named file, see ReadGMM.
func LoadFile(fname string) (*GMM, error) {

	fid, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	return ReadGMM(fid)
}

// ReadCSV reads the given columns of a CSV stream into an observations by
// variables matrix.  All columns are used if cols is empty.  Records in
// which a selected field is not a number, such as a header, are skipped.
func ReadCSV(r io.Reader, cols []int) (*mat.Dense, error) {

	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1

	var (
		data []float64
		nrow int
		ncol = len(cols)
	)

Main:
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		use := cols
		if len(use) == 0 {
			if ncol == 0 {
				ncol = len(record)
			}
			use = seq(ncol)
		}

		g := make([]float64, 0, len(use))
		for _, j := range use {
			if j < 0 || j >= len(record) {
				return nil, fmt.Errorf("%w: column %d not in record of length %d",
					ErrInvalidArgument, j, len(record))
			}
			f, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				continue Main
			}
			g = append(g, f)
		}

		data = append(data, g...)
		nrow++
	}

	if nrow == 0 {
		return nil, fmt.Errorf("%w: no numeric records", ErrInvalidArgument)
	}

	return mat.NewDense(nrow, ncol, data), nil
}

func seq(n int) []int {
	x := make([]int, n)
	for i := range x {
		x[i] = i
	}
	return x
}

// Normalize maps each column of data affinely onto [-1, 1].  It returns
// the scaled copy and the original [min, max] range of every column; a
// range can be passed as the interval argument of Marginal or Joint to
// express densities in the original units.  A constant column is centered
// and left unscaled.
func Normalize(data mat.Matrix) (*mat.Dense, [][2]float64) {

	n, d := data.Dims()
	out := mat.NewDense(n, d, nil)
	iv := make([][2]float64, d)
	col := make([]float64, n)

	for j := 0; j < d; j++ {
		mat.Col(col, j, data)
		lo, hi := col[0], col[0]
		for _, v := range col {
			lo = min(lo, v)
			hi = max(hi, v)
		}

		c, ra := (lo+hi)/2, (hi-lo)/2
		if ra == 0 {
			ra = 1
			lo, hi = c-1, c+1
		}
		iv[j] = [2]float64{lo, hi}

		for i, v := range col {
			out.Set(i, j, (v-c)/ra)
		}
	}

	return out, iv
}
