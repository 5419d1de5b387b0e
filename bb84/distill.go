package bb84

import (
	"errors"
	"math"

	"github.com/alan-christopher/decoy-bb84/bb84/bitmap"
)

// RawSignalKey returns the sender's sifted bits from pulses sent at
// muSignal, in order.
func RawSignalKey(sifted []SiftedEntry, muSignal float64) bitmap.Dense {
	var bits, mask bitmap.Dense
	for _, e := range sifted {
		bits.AppendBit(e.AliceBit == 1)
		mask.AppendBit(e.Intensity == muSignal)
	}
	return bitmap.Select(bits, mask)
}

// Distill returns the first floor(raw.Size() × rate) bits of raw. rate is
// clamped to [0, 1].
//
// Truncation stands in for error correction and privacy amplification; the
// result is not a secure key.
func Distill(raw bitmap.Dense, rate float64) (bitmap.Dense, error) {
	if math.IsNaN(rate) {
		return bitmap.Dense{}, errors.New("distilling: rate is NaN")
	}
	n := int(math.Floor(float64(raw.Size()) * clamp(rate, 0, 1)))
	return bitmap.Prefix(raw, n)
}
