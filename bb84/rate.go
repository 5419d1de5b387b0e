package bb84

import "math"

// BinaryEntropy returns H(p) = -p log2 p - (1-p) log2 (1-p), with H(0) = H(1)
// = 0.
func BinaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

// RawSecureRate returns 1 - H(e1) - fEc·H(qberSignal), which may be negative.
func RawSecureRate(e1, qberSignal, fEc float64) float64 {
	return 1 - BinaryEntropy(e1) - fEc*BinaryEntropy(qberSignal)
}

// SecureRate returns the fraction of the raw signal key that can be kept,
// RawSecureRate clamped to [0, 1]. It is 0 when no single-photon yield could
// be established.
func SecureRate(y1, e1, qberSignal, fEc float64) float64 {
	if !(y1 > 0) {
		return 0
	}
	return clamp(RawSecureRate(e1, qberSignal, fEc), 0, 1)
}
