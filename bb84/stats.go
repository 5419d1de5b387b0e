package bb84

import (
	"sort"

	"github.com/alan-christopher/decoy-bb84/bb84/bitmap"
	"github.com/alan-christopher/decoy-bb84/bb84/photon"
)

// An IntensityBucket aggregates the observations for a single intensity.
type IntensityBucket struct {
	Intensity     float64
	SentCount     int
	DetectedCount int
	ErrorCount    int

	// Yield is DetectedCount/SentCount, or 0 when nothing was sent.
	Yield float64
	// QBER is ErrorCount/DetectedCount, or 0 when nothing was detected.
	QBER float64
}

// Insufficient returns a non-nil error if b has no pulses sent or no
// detections.
func (b IntensityBucket) Insufficient() *InsufficientDataError {
	if b.SentCount > 0 && b.DetectedCount > 0 {
		return nil
	}
	return &InsufficientDataError{
		Intensity:     b.Intensity,
		SentCount:     b.SentCount,
		DetectedCount: b.DetectedCount,
	}
}

// IntensityStats maps each configured intensity to its bucket.
type IntensityStats map[float64]IntensityBucket

// Sorted returns the buckets in descending order of intensity.
func (s IntensityStats) Sorted() []IntensityBucket {
	buckets := make([]IntensityBucket, 0, len(s))
	for _, b := range s {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Intensity > buckets[j].Intensity
	})
	return buckets
}

type tally struct {
	alice, bob bitmap.Dense
}

// EstimateIntensityStats counts, for each of intensities, the pulses sent, the
// sifted detections and the sifted bit errors. Pulses and sifted entries at
// intensities outside the list are ignored.
func EstimateIntensityStats(pulses []photon.PulseRecord, sifted []SiftedEntry, intensities []float64) IntensityStats {
	stats := make(IntensityStats, len(intensities))
	tallies := make(map[float64]*tally, len(intensities))
	for _, mu := range intensities {
		stats[mu] = IntensityBucket{Intensity: mu}
		tallies[mu] = &tally{}
	}
	for _, p := range pulses {
		if b, ok := stats[p.Intensity]; ok {
			b.SentCount++
			stats[p.Intensity] = b
		}
	}
	for _, e := range sifted {
		t, ok := tallies[e.Intensity]
		if !ok {
			continue
		}
		t.alice.AppendBit(e.AliceBit == 1)
		t.bob.AppendBit(e.BobBit == 1)
	}
	for mu, b := range stats {
		t := tallies[mu]
		b.DetectedCount = t.alice.Size()
		b.ErrorCount = bitmap.CountOnes(bitmap.XOr(t.alice, t.bob))
		b.Yield = ratio(b.DetectedCount, b.SentCount)
		b.QBER = ratio(b.ErrorCount, b.DetectedCount)
		stats[mu] = b
	}
	return stats
}

func ratio(num, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}
