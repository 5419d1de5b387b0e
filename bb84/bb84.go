// Package bb84 implements the classical post-processing of a decoy-state BB84
// session: sifting, per-intensity statistics, decoy-state bounds on the
// single-photon yield and error rate, the secure key rate, and distillation of
// the final key.
//
// Distillation truncates the raw signal key to its secure length. It performs
// neither error correction nor privacy amplification, so the keys it returns
// are NOT cryptographically secure and must not be used as such.
package bb84

import (
	"io"
	"log/slog"
	"time"

	"github.com/alan-christopher/decoy-bb84/bb84/bitmap"
)

var (
	DefaultErrorCorrectionFactor = 1.1
	DefaultSignalIntensity       = 0.5
	DefaultDecoyIntensities      = []float64{0.1, 0.0}
	DefaultStateProbabilities    = map[string]float64{"signal": 0.8, "decoy_1": 0.1, "decoy_2": 0.1}
)

// Stats packages together the per-run metrics reported alongside the key.
type Stats struct {
	// Duration covers transmission (when known) and post-processing.
	Duration     time.Duration
	PerIntensity IntensityStats
}

// A Report is the outcome of post-processing one batch of pulses.
type Report struct {
	// FinalKey is a prefix of RawKey whose length is governed by Rate.
	FinalKey bitmap.Dense
	// RawKey holds the sender's sifted bits from signal-intensity pulses.
	RawKey bitmap.Dense
	// Sifted is the number of pulses that survived sifting at any intensity.
	Sifted int

	SignalIntensity float64
	DecoyIntensity  float64
	Estimate        SinglePhotonEstimate

	// RawRate is the secure key rate before clamping. A negative value means
	// no key can be extracted; it is not an error.
	RawRate float64
	Rate    float64

	Stats    Stats
	Warnings []*InsufficientDataError
}

// Reliable reports whether every configured intensity contributed data. An
// unreliable report still carries a key, but its rate rests on defaulted
// statistics.
func (r Report) Reliable() bool {
	return len(r.Warnings) == 0
}

// Opts packages together the arguments necessary to construct a
// PostProcessor.
type Opts struct {
	// Intensities lists the signal and decoy intensities and how often each is
	// chosen. Must be valid, see IntensityConfig.Validate.
	Intensities IntensityConfig

	// ErrorCorrectionFactor (f_ec) penalizes non-ideal reconciliation in the
	// secure rate. Must be at least 1. Defaults to
	// DefaultErrorCorrectionFactor.
	ErrorCorrectionFactor float64

	// Logger receives warnings about degenerate statistics and a summary of
	// each run. Defaults to discarding everything.
	Logger *slog.Logger
}

func (o Opts) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
