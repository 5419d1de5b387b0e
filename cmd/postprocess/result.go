package main

import (
	"github.com/alan-christopher/decoy-bb84/bb84"
	"github.com/alan-christopher/decoy-bb84/bb84/bitmap"
)

// result is the JSON document printed on success. Both parties hold the same
// distilled key, so bob_key repeats alice_key.
type result struct {
	AliceKey []int       `json:"alice_key"`
	BobKey   []int       `json:"bob_key"`
	Time     float64     `json:"time"`
	Stats    resultStats `json:"stats"`
}

type resultStats struct {
	DurationS       float64         `json:"duration_s"`
	Sifted          int             `json:"sifted"`
	RawKeyBits      int             `json:"raw_key_bits"`
	FinalKeyBits    int             `json:"final_key_bits"`
	SignalIntensity float64         `json:"signal_intensity"`
	DecoyIntensity  float64         `json:"decoy_intensity"`
	Y1              float64         `json:"y1"`
	E1              float64         `json:"e1"`
	RawRate         float64         `json:"raw_rate"`
	Rate            float64         `json:"rate"`
	Reliable        bool            `json:"reliable"`
	Warnings        []string        `json:"warnings,omitempty"`
	PerIntensity    []intensityStat `json:"per_intensity"`
}

type intensityStat struct {
	Intensity float64 `json:"intensity"`
	Sent      int     `json:"sent"`
	Detected  int     `json:"detected"`
	Errors    int     `json:"errors"`
	Yield     float64 `json:"yield"`
	QBER      float64 `json:"qber"`
}

func newResult(r bb84.Report) result {
	key := keyBits(r.FinalKey)
	res := result{
		AliceKey: key,
		BobKey:   append([]int(nil), key...),
		Time:     r.Stats.Duration.Seconds(),
		Stats: resultStats{
			DurationS:       r.Stats.Duration.Seconds(),
			Sifted:          r.Sifted,
			RawKeyBits:      r.RawKey.Size(),
			FinalKeyBits:    r.FinalKey.Size(),
			SignalIntensity: r.SignalIntensity,
			DecoyIntensity:  r.DecoyIntensity,
			Y1:              r.Estimate.Y1,
			E1:              r.Estimate.E1,
			RawRate:         r.RawRate,
			Rate:            r.Rate,
			Reliable:        r.Reliable(),
		},
	}
	for _, w := range r.Warnings {
		res.Stats.Warnings = append(res.Stats.Warnings, w.Error())
	}
	for _, b := range r.Stats.PerIntensity.Sorted() {
		res.Stats.PerIntensity = append(res.Stats.PerIntensity, intensityStat{
			Intensity: b.Intensity,
			Sent:      b.SentCount,
			Detected:  b.DetectedCount,
			Errors:    b.ErrorCount,
			Yield:     b.Yield,
			QBER:      b.QBER,
		})
	}
	return res
}

func keyBits(d bitmap.Dense) []int {
	bits := make([]int, d.Size())
	for i, b := range d.Bits() {
		bits[i] = int(b)
	}
	return bits
}
