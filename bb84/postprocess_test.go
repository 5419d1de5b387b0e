package bb84

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/alan-christopher/decoy-bb84/bb84/bitmap"
	"github.com/alan-christopher/decoy-bb84/bb84/photon"
)

// syntheticRun returns n pulses, one in five at decoy and the rest at signal,
// each detected and measured in its own basis. Within each intensity the k-th
// detection has its bit flipped iff flip(k).
func syntheticRun(n int, signal, decoy float64, flip func(k int) bool) ([]photon.PulseRecord, []photon.DetectionRecord) {
	pulses := make([]photon.PulseRecord, n)
	detections := make([]photon.DetectionRecord, n)
	seen := map[float64]int{}
	for i := range pulses {
		mu := signal
		if i%5 == 0 {
			mu = decoy
		}
		bit := uint8(i*7/3) % 2
		basis := photon.Basis(i/2) % 2
		pulses[i] = photon.PulseRecord{Index: i, Bit: bit, Basis: basis, Intensity: mu}
		if flip(seen[mu]) {
			bit ^= 1
		}
		seen[mu]++
		detections[i] = photon.DetectionRecord{Detected: true, Basis: basis, Bit: bit}
	}
	return pulses, detections
}

func never(int) bool { return false }

func singleDecoyOpts() Opts {
	return Opts{
		Intensities: IntensityConfig{
			Signal:        0.5,
			Decoys:        []float64{0.1},
			Probabilities: map[string]float64{"signal": 0.8, "decoy_1": 0.2},
		},
		ErrorCorrectionFactor: 1.1,
	}
}

func TestProcessErrorFree(t *testing.T) {
	p, err := NewPostProcessor(singleDecoyOpts())
	if err != nil {
		t.Fatal(err)
	}
	pulses, detections := syntheticRun(1000, 0.5, 0.1, never)
	r, err := p.Process(pulses, detections)
	if err != nil {
		t.Fatalf("Process() = %v", err)
	}
	if r.Rate != 1 {
		t.Errorf("Rate = %v, want 1", r.Rate)
	}
	if r.RawKey.Size() != 800 {
		t.Errorf("raw key has %d bits, want 800", r.RawKey.Size())
	}
	if !bitmap.Equal(r.FinalKey, r.RawKey) {
		t.Errorf("final key differs from raw key at rate 1")
	}
	if r.Sifted != 1000 {
		t.Errorf("Sifted = %d, want 1000", r.Sifted)
	}
	if !r.Reliable() {
		t.Errorf("Reliable() = false, warnings %v", r.Warnings)
	}
	if r.DecoyIntensity != 0.1 {
		t.Errorf("DecoyIntensity = %v, want 0.1", r.DecoyIntensity)
	}
}

func TestProcessHighErrorRate(t *testing.T) {
	p, err := NewPostProcessor(singleDecoyOpts())
	if err != nil {
		t.Fatal(err)
	}
	pulses, detections := syntheticRun(1000, 0.5, 0.1, func(k int) bool { return k%100 < 11 })
	r, err := p.Process(pulses, detections)
	if err != nil {
		t.Fatalf("Process() = %v", err)
	}
	if qber := r.Stats.PerIntensity[0.5].QBER; math.Abs(qber-0.11) > 1e-12 {
		t.Fatalf("signal QBER = %v, want 0.11", qber)
	}
	if r.RawRate > 0 {
		t.Errorf("RawRate = %v, want <= 0", r.RawRate)
	}
	if r.Rate != 0 {
		t.Errorf("Rate = %v, want 0", r.Rate)
	}
	if r.FinalKey.Size() != 0 {
		t.Errorf("final key has %d bits, want none", r.FinalKey.Size())
	}
	if r.RawKey.Size() != 800 {
		t.Errorf("raw key has %d bits, want 800", r.RawKey.Size())
	}
}

func TestProcessUnusedIntensity(t *testing.T) {
	var logs bytes.Buffer
	opts := Opts{
		Intensities: IntensityConfig{
			Signal:        0.5,
			Decoys:        []float64{0.1, 0},
			Probabilities: map[string]float64{"signal": 0.8, "decoy_1": 0.2, "decoy_2": 0},
		},
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	}
	p, err := NewPostProcessor(opts)
	if err != nil {
		t.Fatal(err)
	}
	pulses, detections := syntheticRun(1000, 0.5, 0.1, never)
	r, err := p.Process(pulses, detections)
	if err != nil {
		t.Fatalf("Process() = %v", err)
	}
	vacuum, ok := r.Stats.PerIntensity[0]
	if !ok {
		t.Fatal("no bucket for the unused vacuum intensity")
	}
	if vacuum.SentCount != 0 || vacuum.Yield != 0 || vacuum.QBER != 0 {
		t.Errorf("vacuum bucket = %+v, want zeroes", vacuum)
	}
	if r.Reliable() || len(r.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want exactly one", r.Warnings)
	}
	if w := r.Warnings[0]; w.Intensity != 0 || !errors.Is(w, ErrInsufficientData) {
		t.Errorf("warning = %v, want insufficient data at intensity 0", w)
	}
	if !strings.Contains(logs.String(), "level=WARN") {
		t.Errorf("no warning logged; logs:\n%s", logs.String())
	}
	if r.Rate != 1 {
		t.Errorf("Rate = %v, want 1", r.Rate)
	}
}

func TestProcessVacuumOnly(t *testing.T) {
	opts := Opts{
		Intensities: IntensityConfig{
			Signal:        0.5,
			Decoys:        []float64{0},
			Probabilities: map[string]float64{"signal": 0.8, "decoy_1": 0.2},
		},
	}
	p, err := NewPostProcessor(opts)
	if err != nil {
		t.Fatal(err)
	}
	pulses, detections := syntheticRun(1000, 0.5, 0, never)
	for i, pulse := range pulses {
		if pulse.Intensity == 0 {
			detections[i] = photon.DetectionRecord{}
		}
	}
	r, err := p.Process(pulses, detections)
	if err != nil {
		t.Fatalf("Process() = %v", err)
	}
	if r.DecoyIntensity != 0 {
		t.Errorf("DecoyIntensity = %v, want 0", r.DecoyIntensity)
	}
	if r.Estimate.Y1 != 1 || r.Estimate.E1 != 0 {
		t.Errorf("Estimate = %+v, want {Y1:1 E1:0}", r.Estimate)
	}
	if len(r.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one for the undetected vacuum", r.Warnings)
	}
}

func TestProcessFailures(t *testing.T) {
	pulses, detections := syntheticRun(100, 0.5, 0.1, never)
	tcs := []struct {
		name       string
		opts       Opts
		pulses     []photon.PulseRecord
		detections []photon.DetectionRecord
		want       error
	}{{
		name:       "misaligned",
		opts:       singleDecoyOpts(),
		pulses:     pulses,
		detections: detections[:99],
		want:       ErrAlignment,
	}, {
		name: "unconfigured intensity",
		opts: Opts{
			Intensities: IntensityConfig{
				Signal:        0.5,
				Decoys:        []float64{0.2},
				Probabilities: map[string]float64{"signal": 0.8, "decoy_1": 0.2},
			},
		},
		pulses:     pulses,
		detections: detections,
		want:       ErrConfiguration,
	}, {
		name: "decoy above signal",
		opts: Opts{
			Intensities: IntensityConfig{
				Signal:        0.1,
				Decoys:        []float64{0.5},
				Probabilities: map[string]float64{"signal": 0.8, "decoy_1": 0.2},
			},
		},
		pulses:     pulses,
		detections: detections,
		want:       ErrIntensityOrder,
	},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewPostProcessor(tc.opts)
			if err != nil {
				t.Fatal(err)
			}
			r, err := p.Process(tc.pulses, tc.detections)
			if !errors.Is(err, tc.want) {
				t.Errorf("Process() = %v, want %v", err, tc.want)
			}
			if r.FinalKey.Size() != 0 {
				t.Errorf("failed Process() returned a %d bit key", r.FinalKey.Size())
			}
		})
	}
}

func TestNewPostProcessorValidates(t *testing.T) {
	tcs := []struct {
		name string
		opts Opts
	}{{
		name: "bad intensities",
		opts: Opts{Intensities: IntensityConfig{Signal: 0.5}},
	}, {
		name: "error correction below one",
		opts: func() Opts {
			o := singleDecoyOpts()
			o.ErrorCorrectionFactor = 0.9
			return o
		}(),
	},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPostProcessor(tc.opts); !errors.Is(err, ErrConfiguration) {
				t.Errorf("NewPostProcessor() = %v, want %v", err, ErrConfiguration)
			}
		})
	}
}
