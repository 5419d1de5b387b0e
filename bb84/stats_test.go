package bb84

import (
	"errors"
	"math"
	"testing"

	"github.com/alan-christopher/decoy-bb84/bb84/photon"
)

func TestEstimateIntensityStats(t *testing.T) {
	pulses := []photon.PulseRecord{
		{Index: 0, Intensity: 0.5},
		{Index: 1, Intensity: 0.5},
		{Index: 2, Intensity: 0.5},
		{Index: 3, Intensity: 0.5},
		{Index: 4, Intensity: 0.1},
		{Index: 5, Intensity: 0.1},
		{Index: 6, Intensity: 0.7},
	}
	sifted := []SiftedEntry{
		{Index: 0, AliceBit: 1, BobBit: 1, Intensity: 0.5},
		{Index: 1, AliceBit: 0, BobBit: 1, Intensity: 0.5},
		{Index: 3, AliceBit: 1, BobBit: 1, Intensity: 0.5},
		{Index: 4, AliceBit: 1, BobBit: 0, Intensity: 0.1},
		{Index: 6, AliceBit: 1, BobBit: 0, Intensity: 0.7},
	}
	stats := EstimateIntensityStats(pulses, sifted, []float64{0.5, 0.1, 0})

	tcs := []struct {
		mu   float64
		want IntensityBucket
	}{{
		mu:   0.5,
		want: IntensityBucket{Intensity: 0.5, SentCount: 4, DetectedCount: 3, ErrorCount: 1, Yield: 0.75, QBER: 1.0 / 3},
	}, {
		mu:   0.1,
		want: IntensityBucket{Intensity: 0.1, SentCount: 2, DetectedCount: 1, ErrorCount: 1, Yield: 0.5, QBER: 1},
	}, {
		mu:   0,
		want: IntensityBucket{Intensity: 0},
	},
	}
	if len(stats) != len(tcs) {
		t.Errorf("got %d buckets, want %d", len(stats), len(tcs))
	}
	for _, tc := range tcs {
		got, ok := stats[tc.mu]
		if !ok {
			t.Errorf("no bucket for intensity %v", tc.mu)
			continue
		}
		if got.SentCount != tc.want.SentCount || got.DetectedCount != tc.want.DetectedCount || got.ErrorCount != tc.want.ErrorCount {
			t.Errorf("bucket %v counts = %+v, want %+v", tc.mu, got, tc.want)
		}
		if math.Abs(got.Yield-tc.want.Yield) > 1e-12 || math.Abs(got.QBER-tc.want.QBER) > 1e-12 {
			t.Errorf("bucket %v rates = (%v, %v), want (%v, %v)", tc.mu, got.Yield, got.QBER, tc.want.Yield, tc.want.QBER)
		}
	}
}

func TestInsufficient(t *testing.T) {
	tcs := []struct {
		name   string
		bucket IntensityBucket
		want   bool
	}{
		{name: "healthy", bucket: IntensityBucket{Intensity: 0.5, SentCount: 10, DetectedCount: 1}},
		{name: "nothing sent", bucket: IntensityBucket{Intensity: 0}, want: true},
		{name: "nothing detected", bucket: IntensityBucket{Intensity: 0.1, SentCount: 10}, want: true},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			w := tc.bucket.Insufficient()
			if (w != nil) != tc.want {
				t.Fatalf("Insufficient() = %v, want error: %t", w, tc.want)
			}
			if w == nil {
				return
			}
			if !errors.Is(w, ErrInsufficientData) {
				t.Errorf("Insufficient() does not wrap %v", ErrInsufficientData)
			}
			if w.Intensity != tc.bucket.Intensity || w.SentCount != tc.bucket.SentCount {
				t.Errorf("Insufficient() = %+v, does not describe %+v", w, tc.bucket)
			}
		})
	}
}

func TestSortedBuckets(t *testing.T) {
	stats := EstimateIntensityStats(nil, nil, []float64{0.1, 0, 0.5})
	got := stats.Sorted()
	want := []float64{0.5, 0.1, 0}
	for i, b := range got {
		if b.Intensity != want[i] {
			t.Errorf("Sorted()[%d] = %v, want %v", i, b.Intensity, want[i])
		}
	}
}
