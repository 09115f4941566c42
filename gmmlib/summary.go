package gmmlib

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/mat"
)

const frameLen = 35

// SetLogger directs log messages to logname_msg.log and parameter
// summaries to logname_par.log.  The message logger is returned so that
// the calling program can also use it.  Files opened by an earlier call
// are closed; call CloseLogs when done.
func (gmm *GMM) SetLogger(logname string) (*zap.Logger, error) {

	if err := gmm.CloseLogs(); err != nil {
		return nil, err
	}

	msgfid, err := os.Create(logname + "_msg.log")
	if err != nil {
		return nil, err
	}

	parfid, err := os.Create(logname + "_par.log")
	if err != nil {
		return nil, multierr.Append(err, msgfid.Close())
	}

	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	gmm.msglogger = zap.New(zapcore.NewCore(enc, zapcore.AddSync(msgfid), zapcore.DebugLevel))
	gmm.parlogger = log.New(parfid, "", 0)
	gmm.logfiles = []*os.File{msgfid, parfid}

	return gmm.msglogger, nil
}

// CloseLogs closes the files opened by SetLogger and discards further log
// output.
func (gmm *GMM) CloseLogs() error {

	if len(gmm.logfiles) == 0 {
		return nil
	}

	err := gmm.msglogger.Sync()
	for _, f := range gmm.logfiles {
		err = multierr.Append(err, f.Close())
	}
	gmm.logfiles = nil
	gmm.msglogger = zap.NewNop()
	gmm.parlogger = log.New(io.Discard, "", 0)

	return err
}

// UseLogger directs log messages to msg and parameter summaries to par.
// Either may be nil to discard the corresponding output.
func (gmm *GMM) UseLogger(msg *zap.Logger, par io.Writer) {
	if msg == nil {
		msg = zap.NewNop()
	}
	if par == nil {
		par = io.Discard
	}
	gmm.msglogger = msg
	gmm.parlogger = log.New(par, "", 0)
}

func (gmm *GMM) logger() *log.Logger {
	if gmm.parlogger == nil {
		gmm.parlogger = log.New(io.Discard, "", 0)
	}
	return gmm.parlogger
}

// String returns a framed, human readable dump of the model parameters.
func (gmm *GMM) String() string {

	var b strings.Builder
	rule := func() { b.WriteString("\n" + strings.Repeat("-", frameLen) + "\n") }

	b.WriteString(strings.Repeat("#", frameLen))
	rule()
	b.WriteString("gmmlib.GMM")
	rule()
	fmt.Fprintf(&b, " - number of mixtures: %d\n", gmm.NMixture)
	fmt.Fprintf(&b, " - observation length: %d", gmm.NDim)
	rule()
	b.WriteString(" - mixing coefficients")
	rule()
	fmt.Fprintf(&b, "%v", gmm.Weight)
	rule()
	b.WriteString(" - mean values")
	rule()
	fmt.Fprintf(&b, "%v", mat.Formatted(gmm.Mean, mat.Squeeze()))
	rule()
	b.WriteString(" - covariances")
	rule()
	for m, c := range gmm.Cov {
		if m > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%v", mat.Formatted(c, mat.Squeeze()))
	}
	b.WriteString("\n" + strings.Repeat("-", frameLen))
	b.WriteString("\n" + strings.Repeat("#", frameLen) + "\n")

	return b.String()
}

// WriteSummary writes the model parameters to the parameter log.
func (gmm *GMM) WriteSummary(title string) {

	lg := gmm.logger()

	lg.Print(title)
	lg.Printf("\n")

	lg.Printf("Mixing coefficients:\n")
	gmm.writeMatrix(gmm.Weight, 0, 1, gmm.NMixture)
	lg.Printf("\n")

	lg.Printf("Means:\n")
	gmm.writeMatrix(gmm.Mean.RawMatrix().Data, 0, gmm.NMixture, gmm.NDim)
	lg.Printf("\n")

	for m, c := range gmm.Cov {
		lg.Printf("Covariance %d:\n", m)
		gmm.writeMatrix(mat.DenseCopyOf(c).RawMatrix().Data, 0, gmm.NDim, gmm.NDim)
		lg.Printf("\n")
	}
}

// writeMatrix writes a row-major matrix in text format to the parameter log
func (gmm *GMM) writeMatrix(x []float64, off, nrow, ncol int) {

	var buf bytes.Buffer

	for i := 0; i < nrow; i++ {

		buf.Reset()

		for j := 0; j < ncol; j++ {
			_, _ = io.WriteString(&buf, fmt.Sprintf("%12.4f ", x[off+i*ncol+j]))
		}

		gmm.logger().Print(buf.String())
	}
}
