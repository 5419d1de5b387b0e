package photon

import (
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Speed of light in vacuum, km/s.
const speedOfLight = 299792.458

var (
	DefaultAttenuation      = 0.2 // dB/km
	DefaultDetectorEff      = 0.1
	DefaultDarkCountProb    = 1e-6
	DefaultMisalignment     = 0.01
	DefaultRepetitionRate   = 1e6 // Hz
	DefaultRefractiveIndex  = 1.47
	DefaultSimulatedSrcSeed = uint64(5678)
)

// SimulatedOpts parameterizes a Simulated channel. Zero-valued fields take
// the corresponding Default* value, except DistanceKm, DarkCountProb and
// Misalignment, for which zero is meaningful.
type SimulatedOpts struct {
	// DistanceKm is the fiber length between sender and receiver.
	DistanceKm float64

	// AttenuationDBPerKm is the fiber loss.
	AttenuationDBPerKm float64

	// DetectorEfficiency is the probability the receiver's detector clicks on
	// a single arriving photon.
	DetectorEfficiency float64

	// DarkCountProb is the per-pulse probability of a spurious click.
	DarkCountProb float64

	// Misalignment is the probability that a photon measured in the matching
	// basis yields the wrong bit.
	Misalignment float64

	// RepetitionRateHz is the pulse rate of the source.
	RepetitionRateHz float64

	// RefractiveIndex of the fiber, used for propagation delay.
	RefractiveIndex float64

	// Src drives photon-number sampling, the receiver's basis choice and
	// every other random decision. Defaults to a source seeded with
	// DefaultSimulatedSrcSeed.
	Src rand.Source
}

// A Simulated channel models a lossy fiber feeding a threshold detector. The
// photon number of each pulse is Poisson distributed with mean equal to the
// pulse intensity.
type Simulated struct {
	opts SimulatedOpts
	rng  *rand.Rand
	eta  float64
}

// NewSimulated returns a Simulated channel configured by opts, or an error if
// the options are out of range.
func NewSimulated(opts SimulatedOpts) (*Simulated, error) {
	if opts.DistanceKm < 0 {
		return nil, fmt.Errorf("negative distance: %v", opts.DistanceKm)
	}
	if opts.AttenuationDBPerKm == 0 {
		opts.AttenuationDBPerKm = DefaultAttenuation
	}
	if opts.DetectorEfficiency == 0 {
		opts.DetectorEfficiency = DefaultDetectorEff
	}
	if opts.RepetitionRateHz == 0 {
		opts.RepetitionRateHz = DefaultRepetitionRate
	}
	if opts.RefractiveIndex == 0 {
		opts.RefractiveIndex = DefaultRefractiveIndex
	}
	if opts.Src == nil {
		opts.Src = rand.NewSource(DefaultSimulatedSrcSeed)
	}
	switch {
	case opts.AttenuationDBPerKm < 0:
		return nil, errors.New("attenuation must be non-negative")
	case opts.DetectorEfficiency < 0 || opts.DetectorEfficiency > 1:
		return nil, errors.New("detector efficiency must be in [0, 1]")
	case opts.DarkCountProb < 0 || opts.DarkCountProb > 1:
		return nil, errors.New("dark count probability must be in [0, 1]")
	case opts.Misalignment < 0 || opts.Misalignment > 0.5:
		return nil, errors.New("misalignment must be in [0, 0.5]")
	case opts.RepetitionRateHz < 0:
		return nil, errors.New("repetition rate must be positive")
	}
	eta := math.Pow(10, -opts.AttenuationDBPerKm*opts.DistanceKm/10) * opts.DetectorEfficiency
	return &Simulated{
		opts: opts,
		rng:  rand.New(opts.Src),
		eta:  eta,
	}, nil
}

// Transmittance returns the end-to-end single photon detection probability,
// i.e. channel transmittance times detector efficiency.
func (s *Simulated) Transmittance() float64 {
	return s.eta
}

// Transmit implements the Channel interface.
func (s *Simulated) Transmit(pulses []PulseRecord) (Transmission, error) {
	dets := make([]DetectionRecord, len(pulses))
	for i, p := range pulses {
		if p.Intensity < 0 {
			return Transmission{}, fmt.Errorf("pulse %d: negative intensity %v", i, p.Intensity)
		}
		dets[i] = s.measure(p)
	}
	return Transmission{Detections: dets, Elapsed: s.elapsed(len(pulses))}, nil
}

func (s *Simulated) measure(p PulseRecord) DetectionRecord {
	basis := Basis(s.rng.Intn(2))
	photons := 0
	if p.Intensity > 0 {
		photons = int(distuv.Poisson{Lambda: p.Intensity, Src: s.opts.Src}.Rand())
	}
	signal := photons > 0 && s.rng.Float64() < 1-math.Pow(1-s.eta, float64(photons))
	dark := s.rng.Float64() < s.opts.DarkCountProb
	if !signal && !dark {
		return DetectionRecord{}
	}

	bit := uint8(s.rng.Intn(2))
	if signal && basis == p.Basis {
		bit = p.Bit
		if s.rng.Float64() < s.opts.Misalignment {
			bit ^= 1
		}
	}
	return DetectionRecord{Detected: true, Basis: basis, Bit: bit}
}

func (s *Simulated) elapsed(pulses int) time.Duration {
	emit := float64(pulses) / s.opts.RepetitionRateHz
	propagate := s.opts.DistanceKm * s.opts.RefractiveIndex / speedOfLight
	return time.Duration((emit + propagate) * float64(time.Second))
}
