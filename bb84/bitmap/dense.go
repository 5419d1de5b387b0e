package bitmap

import "strings"

// A Dense is a bitmap where every bit is explicitly represented. Bits past
// the end of a Dense read as zero, or as one for a negated Dense.
type Dense struct {
	bits []byte
	len  int

	negated bool
}

// NewDense returns a new dense bitmap whose contents are a view of data, and
// whose length is bitLen. If bitLen is longer than data, then trailing zeros
// are added. If bitLen is negative, then it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * byteSize
	}
	r := Dense{
		bits: data,
		len:  bitLen,
	}
	for len(r.bits) < r.SizeBytes() {
		r.bits = append(r.bits, 0)
	}
	return r
}

// Get returns the i-th bit in this bitmap.
func (d Dense) Get(i int) bool {
	if i < 0 || i >= d.len {
		return d.negated
	}
	j, pos := i/byteSize, i%byteSize
	if j >= len(d.bits) {
		return d.negated
	}
	return 0 < d.bits[j]&(1<<pos)
}

// Size returns the number of bits in this bitmap, excluding implicit trailing
// bits.
func (d Dense) Size() int {
	return d.len
}

// SizeBytes returns the number of bytes in this bitmap, excluding implicit
// trailing bits.
func (d Dense) SizeBytes() int {
	return BytesFor(d.len)
}

// Data returns a view of the bytes underlying this bitmap. Modifying the
// returned slice modifies this bitmap.
func (d Dense) Data() []byte {
	return d.bits
}

// Bits returns the contents of d as a slice of 0/1 values.
func (d Dense) Bits() []uint8 {
	r := make([]uint8, d.len)
	for i := range r {
		if d.Get(i) {
			r[i] = 1
		}
	}
	return r
}

// String renders d as a string of '0's and '1's, in index order.
func (d Dense) String() string {
	var sb strings.Builder
	sb.Grow(d.len)
	for i := 0; i < d.len; i++ {
		if d.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	i, pos := d.len/byteSize, d.len%byteSize
	d.len++
	if pos == 0 {
		d.bits = append(d.bits[:i], 0)
	}
	if bit {
		d.bits[i] |= 1 << pos
	} else {
		d.bits[i] &= ^(1 << pos)
	}
}

// Append adds the contents of d2 to the end of d.
func (d *Dense) Append(d2 Dense) {
	off := d.len % byteSize
	if off == 0 {
		d.bits = d.bits[:d.SizeBytes()]
		for i := 0; i < d2.SizeBytes(); i++ {
			d.bits = append(d.bits, byteAt(d2, i))
		}
		d.len += d2.len
		d.clearTail()
		return
	}
	for i := 0; i < d2.len; i++ {
		d.AppendBit(d2.Get(i))
	}
}

// clearTail drops surplus bytes and resets the unused high bits of the last
// byte to the implicit value.
func (d *Dense) clearTail() {
	d.bits = d.bits[:d.SizeBytes()]
	off := d.len % byteSize
	if off == 0 {
		return
	}
	last := len(d.bits) - 1
	if d.negated {
		d.bits[last] |= 0xFF << off
	} else {
		d.bits[last] &= 0xFF >> (byteSize - off)
	}
}
