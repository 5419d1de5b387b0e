package bitmap

import (
	"bytes"
	"reflect"
	"testing"
)

func mustDense(t *testing.T, s string) Dense {
	d, err := FromString(s)
	if err != nil {
		t.Fatalf("bugged test setup: %v", err)
	}
	return d
}

func TestFromStringRejectsGarbage(t *testing.T) {
	if _, err := FromString("10x1"); err == nil {
		t.Errorf("FromString(%q) succeeded, want error", "10x1")
	}
}

func TestFromBits(t *testing.T) {
	tcs := []struct {
		name string
		vals []uint8
		eout Dense
	}{
		{"empty", nil, mustDense(t, "")},
		{"short", []uint8{1, 0, 1}, mustDense(t, "101")},
		{"multibyte", []uint8{0, 0, 0, 0, 0, 0, 0, 1, 1, 1}, mustDense(t, "00000001 11")},
		{"non-binary treated as set", []uint8{2, 0}, mustDense(t, "10")},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := FromBits(tc.vals)
			if out.Size() != tc.eout.Size() {
				t.Fatalf("got bitmap of len %d, want %d", out.Size(), tc.eout.Size())
			}
			if !bytes.Equal(out.Data(), tc.eout.Data()) {
				t.Errorf("FromBits(%v) == %v, want %v", tc.vals, out.Data(), tc.eout.Data())
			}
		})
	}
}

func TestBitsRoundTrip(t *testing.T) {
	want := []uint8{1, 1, 0, 1, 0, 0, 0, 1, 1}
	got := FromBits(want).Bits()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Bits() == %v, want %v", got, want)
	}
}

func TestSelect(t *testing.T) {
	tcs := []struct {
		name string
		data Dense
		mask Dense
		eout Dense
	}{
		{
			name: "all",
			data: mustDense(t, "101"),
			mask: mustDense(t, "111"),
			eout: mustDense(t, "101"),
		}, {
			name: "some",
			data: mustDense(t, "10100011"),
			mask: mustDense(t, "11111100"),
			eout: mustDense(t, "101000"),
		}, {
			name: "none",
			data: mustDense(t, "10100011 111"),
			mask: mustDense(t, "00000000 000"),
			eout: mustDense(t, ""),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := Select(tc.data, tc.mask)
			if out.len != tc.eout.len {
				t.Errorf("got bitmap of len %d, want %d", out.len, tc.eout.len)
			}
			if !bytes.Equal(out.bits, tc.eout.bits) {
				t.Errorf("Select(%v, %v) == %v, want %v", tc.data.bits, tc.mask.bits, out.bits, tc.eout.bits)
			}
		})
	}
}

func TestCountOnes(t *testing.T) {
	tcs := []struct {
		name string
		data Dense
		eout int
	}{
		{"short", mustDense(t, "101"), 2},
		{"empty", mustDense(t, ""), 0},
		{"multibyte one", mustDense(t, "1111 1111 11"), 10},
		{"multibyte two", mustDense(t, "1011 1011 10"), 7},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := CountOnes(tc.data)
			if out != tc.eout {
				t.Errorf("CountOnes(%v) == %v, want %v", tc.data.bits, out, tc.eout)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	tcs := []struct {
		name string
		a, b Dense
		eout bool
	}{
		{"same", mustDense(t, "1011 0"), mustDense(t, "1011 0"), true},
		{"empty", Empty(), mustDense(t, ""), true},
		{"different bit", mustDense(t, "1011 0"), mustDense(t, "1011 1"), false},
		{"different length", mustDense(t, "1011"), mustDense(t, "1011 0"), false},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.a, tc.b); got != tc.eout {
				t.Errorf("Equal(%v, %v) == %v, want %v", tc.a, tc.b, got, tc.eout)
			}
		})
	}
}
