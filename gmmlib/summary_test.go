package gmmlib

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

func TestString(t *testing.T) {

	gmm, err := New(2, 3, ZeroMeans, nil)
	require.NoError(t, err)

	s := gmm.String()
	assert.True(t, strings.HasPrefix(s, strings.Repeat("#", 35)+"\n"))
	assert.True(t, strings.HasSuffix(s, strings.Repeat("#", 35)+"\n"))
	assert.Contains(t, s, " - number of mixtures: 2")
	assert.Contains(t, s, " - observation length: 3")
	assert.Contains(t, s, "[0.5 0.5]")
}

func TestWriteSummary(t *testing.T) {

	gmm, err := New(2, 2, ZeroMeans, nil)
	require.NoError(t, err)
	gmm.Mean.SetRow(1, []float64{1.5, -2})

	var buf bytes.Buffer
	gmm.UseLogger(nil, &buf)
	gmm.WriteSummary("Starting values:")

	out := buf.String()
	assert.Contains(t, out, "Starting values:")
	assert.Contains(t, out, "      1.5000      -2.0000")
	assert.Equal(t, 2, strings.Count(out, "Covariance"))
}

func TestFitLogs(t *testing.T) {

	core, logs := observer.New(zap.DebugLevel)
	gmm, err := New(1, 1, ZeroMeans, nil)
	require.NoError(t, err)
	gmm.UseLogger(zap.New(core), nil)

	_, err = gmm.Fit(mat.NewDense(4, 1, []float64{0, 0, 10, 10}), 10, 1e-6, false)
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("finished estimation").Len())
	assert.NotZero(t, logs.FilterMessage("EM step").Len())
}

func TestSetLogger(t *testing.T) {

	gmm, err := New(1, 1, ZeroMeans, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	lg, err := gmm.SetLogger(filepath.Join(dir, "gmm"))
	require.NoError(t, err)
	require.NotNil(t, lg)
	gmm.WriteSummary("Starting values:")
	require.NoError(t, gmm.CloseLogs())

	buf, err := os.ReadFile(filepath.Join(dir, "gmm_par.log"))
	require.NoError(t, err)
	assert.Contains(t, string(buf), "Starting values:")

	// Output after closing is discarded.
	gmm.WriteSummary("After close")
	_, err = gmm.Fit(mat.NewDense(2, 1, []float64{0, 1}), 2, 1e-6, false)
	require.NoError(t, err)
	require.NoError(t, gmm.CloseLogs())
}

func TestSetLoggerParFileFails(t *testing.T) {

	gmm, err := New(1, 1, ZeroMeans, nil)
	require.NoError(t, err)

	// A directory in place of the parameter log cannot be created as a file.
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "gmm_par.log"), 0o755))

	_, err = gmm.SetLogger(filepath.Join(dir, "gmm"))
	require.Error(t, err)
	assert.Empty(t, gmm.logfiles)

	// The model keeps logging to the previous, discarding, loggers.
	gmm.WriteSummary("x")
	_, err = gmm.Fit(mat.NewDense(2, 1, []float64{0, 1}), 2, 1e-6, false)
	require.NoError(t, err)

	_, err = gmm.SetLogger(filepath.Join(dir, "other"))
	require.NoError(t, err)
	assert.Len(t, gmm.logfiles, 2)
	require.NoError(t, gmm.CloseLogs())
}
