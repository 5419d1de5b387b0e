// Package bitmap provides utilities for operating on densely-packed arrays of
// booleans. Raw keys, final keys and per-pulse basis masks are all carried as
// bitmaps.
package bitmap

import (
	"fmt"
	"math/bits"
)

const byteSize = 8

// Empty returns an empty, dense bitmap.
func Empty() Dense {
	return Dense{}
}

// FromString converts a string of '1's and '0's to a Dense. Spaces are
// ignored, so "1010 0011" is a valid representation.
func FromString(s string) (Dense, error) {
	d := Dense{}
	for _, c := range s {
		switch c {
		case '1':
			d.AppendBit(true)
		case '0':
			d.AppendBit(false)
		case ' ':
			continue
		default:
			return Dense{}, fmt.Errorf("invalid bitmap string rep: %s", s)
		}
	}
	return d, nil
}

// FromBits builds a Dense from a slice of 0/1 values. Any non-zero value is
// treated as a set bit.
func FromBits(vals []uint8) Dense {
	d := Dense{bits: make([]byte, 0, BytesFor(len(vals)))}
	for _, v := range vals {
		d.AppendBit(v != 0)
	}
	return d
}

// CountOnes returns the total number of bits set in d.
func CountOnes(d Dense) int {
	var sum int
	for _, b := range d.bits[:d.SizeBytes()] {
		sum += bits.OnesCount8(b)
	}
	return sum
}

// Equal returns true iff a and b have the same length and contain the same
// bits.
func Equal(a, b Dense) bool {
	if a.len != b.len {
		return false
	}
	for i := 0; i < a.len; i++ {
		if a.Get(i) != b.Get(i) {
			return false
		}
	}
	return true
}

// BytesFor returns the number of bytes necessary to hold the provided number of
// bits.
func BytesFor(bits int) int {
	return (bits + byteSize - 1) / byteSize
}
