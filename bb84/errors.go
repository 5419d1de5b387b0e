package bb84

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports nonsensical intensity, probability or key
	// length settings. It is always fatal.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrAlignment reports that sender and receiver records cannot be paired
	// up index by index.
	ErrAlignment = errors.New("pulse and detection records are misaligned")

	// ErrIntensityOrder reports a decoy intensity that is not strictly below
	// the signal intensity.
	ErrIntensityOrder = errors.New("decoy intensity must be below signal intensity")

	// ErrInsufficientData is the sentinel wrapped by InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient data")
)

// An InsufficientDataError flags an intensity bucket with no pulses sent or no
// detections. It is not fatal: the bucket's yield and QBER default to zero and
// estimation proceeds, but the resulting key rate is statistically
// unreliable.
type InsufficientDataError struct {
	Intensity     float64
	SentCount     int
	DetectedCount int
}

func (e *InsufficientDataError) Error() string {
	if e.SentCount == 0 {
		return fmt.Sprintf("insufficient data: no pulses sent at intensity %v", e.Intensity)
	}
	return fmt.Sprintf("insufficient data: none of %d pulses at intensity %v were detected", e.SentCount, e.Intensity)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}
