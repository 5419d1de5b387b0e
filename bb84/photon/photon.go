// Package photon provides the boundary between classical post-processing and
// the physical layer that prepares, transmits and measures weak coherent
// pulses.
package photon

import (
	"fmt"
	"time"
)

// A Basis identifies one of the two BB84 measurement bases.
type Basis uint8

const (
	// BasisZ is the rectilinear basis.
	BasisZ Basis = iota
	// BasisX is the diagonal basis.
	BasisX
)

func (b Basis) String() string {
	switch b {
	case BasisZ:
		return "Z"
	case BasisX:
		return "X"
	}
	return fmt.Sprintf("Basis(%d)", uint8(b))
}

// A PulseRecord describes the sender's choices for a single pulse.
type PulseRecord struct {
	Index     int
	Bit       uint8
	Basis     Basis
	Intensity float64
}

// A DetectionRecord describes what the receiver observed for a single pulse.
// A record with Detected unset stands for "no click"; its Basis and Bit carry
// no meaning.
type DetectionRecord struct {
	Detected bool
	Basis    Basis
	Bit      uint8
}

// A Transmission is the receiver-side outcome of sending a batch of pulses.
type Transmission struct {
	// Detections is index-aligned with the pulses that were sent.
	Detections []DetectionRecord

	// Elapsed is the (possibly simulated) wall time the transmission took.
	Elapsed time.Duration
}

// A Channel sends pulses to a receiver and reports what was detected.
type Channel interface {
	Transmit(pulses []PulseRecord) (Transmission, error)
}
