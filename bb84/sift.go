package bb84

import (
	"fmt"

	"github.com/alan-christopher/decoy-bb84/bb84/bitmap"
	"github.com/alan-christopher/decoy-bb84/bb84/photon"
)

// A SiftedEntry is a pulse that was detected and measured in the basis it was
// prepared in.
type SiftedEntry struct {
	Index     int
	AliceBit  uint8
	BobBit    uint8
	Intensity float64
}

// Sift keeps, in input order, the pulses whose detection is present and whose
// preparation and measurement bases agree.
func Sift(pulses []photon.PulseRecord, detections []photon.DetectionRecord) ([]SiftedEntry, error) {
	if len(pulses) != len(detections) {
		return nil, fmt.Errorf("%w: %d pulses but %d detections", ErrAlignment, len(pulses), len(detections))
	}
	var sendBasis, receiveBasis, detected bitmap.Dense
	for i, p := range pulses {
		sendBasis.AppendBit(p.Basis == photon.BasisX)
		receiveBasis.AppendBit(detections[i].Basis == photon.BasisX)
		detected.AppendBit(detections[i].Detected)
	}
	siftMask := bitmap.And(bitmap.XNor(sendBasis, receiveBasis), detected)

	sifted := make([]SiftedEntry, 0, bitmap.CountOnes(siftMask))
	for i, p := range pulses {
		if !siftMask.Get(i) {
			continue
		}
		sifted = append(sifted, SiftedEntry{
			Index:     p.Index,
			AliceBit:  p.Bit,
			BobBit:    detections[i].Bit,
			Intensity: p.Intensity,
		})
	}
	return sifted, nil
}
