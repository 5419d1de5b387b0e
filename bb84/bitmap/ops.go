package bitmap

import "fmt"

// And returns the bitwise AND of two bitmaps.
func And(a, b Dense) Dense {
	short, long := a, b
	if b.len < a.len {
		short, long = b, a
	}
	rLen := short.len
	if short.negated {
		rLen = long.len
	}
	r := Dense{
		bits:    make([]byte, 0, BytesFor(rLen)),
		len:     rLen,
		negated: a.negated && b.negated,
	}
	for i := 0; i < short.SizeBytes(); i++ {
		r.bits = append(r.bits, byteAt(a, i)&byteAt(b, i))
	}
	for i := short.SizeBytes(); i < r.SizeBytes(); i++ {
		r.bits = append(r.bits, byteAt(long, i))
	}
	r.clearTail()
	return r
}

// XOr returns the bitwise XOR of two bitmaps.
func XOr(a, b Dense) Dense {
	return combine(a, b, a.negated != b.negated, func(x, y byte) byte { return x ^ y })
}

// XNor returns the bitwise XNOR of two bitmaps, i.e. a mask of the positions
// at which a and b agree.
func XNor(a, b Dense) Dense {
	return combine(a, b, a.negated == b.negated, func(x, y byte) byte { return ^(x ^ y) })
}

func combine(a, b Dense, negated bool, op func(x, y byte) byte) Dense {
	long := a
	if b.len > a.len {
		long = b
	}
	r := Dense{
		bits:    make([]byte, 0, long.SizeBytes()),
		len:     long.len,
		negated: negated,
	}
	for i := 0; i < long.SizeBytes(); i++ {
		r.bits = append(r.bits, op(byteAt(a, i), byteAt(b, i)))
	}
	r.clearTail()
	return r
}

// byteAt returns the i-th byte of d, substituting the implicit value past its
// end.
func byteAt(d Dense, i int) byte {
	if i < len(d.bits) && i < d.SizeBytes() {
		b := d.bits[i]
		if off := d.len % byteSize; off != 0 && i == d.SizeBytes()-1 {
			if d.negated {
				b |= 0xFF << off
			} else {
				b &= 0xFF >> (byteSize - off)
			}
		}
		return b
	}
	if d.negated {
		return 0xFF
	}
	return 0
}

// Select selects a subset of bits from data, according to which bits are set in
// mask.
func Select(data, mask Dense) Dense {
	var d Dense
	for i := 0; i < data.Size(); i++ {
		if !mask.Get(i) {
			continue
		}
		d.AppendBit(data.Get(i))
	}
	return d
}

// Slice creates a copy of bits [start, end) of d.
func Slice(d Dense, start, end int) (Dense, error) {
	if end > d.len {
		return Dense{}, fmt.Errorf("slicing bitmap of len %d up to %d", d.len, end)
	}
	if start < 0 {
		return Dense{}, fmt.Errorf("slicing bitmap with negative start: %d", start)
	}
	if end < start {
		return Dense{}, fmt.Errorf("slicing bitmap to negative length: %d", end-start)
	}

	r := Dense{}
	for ; start%byteSize != 0 && start < end; start++ {
		r.AppendBit(d.Get(start))
	}
	if start == end {
		return r, nil
	}
	j := start / byteSize
	r.Append(Dense{bits: d.bits[j : j+BytesFor(end-start)], len: end - start})
	return r, nil
}

// Prefix returns a copy of the first n bits of d.
func Prefix(d Dense, n int) (Dense, error) {
	return Slice(d, 0, n)
}
