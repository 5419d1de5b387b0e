package bb84

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/alan-christopher/decoy-bb84/bb84/photon"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// ProbabilityTolerance is how far state probabilities may sum from 1.
const ProbabilityTolerance = 1e-6

// An IntensityConfig describes the pulse intensities (mean photon numbers)
// available to the sender.
type IntensityConfig struct {
	Signal float64
	Decoys []float64

	// Probabilities maps "signal", "decoy_1", ..., "decoy_k" to the
	// probability of choosing Signal, Decoys[0], ..., Decoys[k-1].
	Probabilities map[string]float64
}

// StateNames returns the probability keys, aligned with Intensities.
func (c IntensityConfig) StateNames() []string {
	names := make([]string, 0, len(c.Decoys)+1)
	names = append(names, "signal")
	for i := range c.Decoys {
		names = append(names, "decoy_"+strconv.Itoa(i+1))
	}
	return names
}

// Intensities returns the signal intensity followed by the decoys, in
// configured order.
func (c IntensityConfig) Intensities() []float64 {
	return append([]float64{c.Signal}, c.Decoys...)
}

// Validate checks c, returning an error wrapping ErrConfiguration if it is
// unusable.
func (c IntensityConfig) Validate() error {
	if !(c.Signal > 0) || math.IsInf(c.Signal, 0) {
		return fmt.Errorf("%w: signal intensity must be positive, got %v", ErrConfiguration, c.Signal)
	}
	if len(c.Decoys) == 0 {
		return fmt.Errorf("%w: at least one decoy intensity is required", ErrConfiguration)
	}
	seen := map[float64]bool{c.Signal: true}
	for i, d := range c.Decoys {
		if !(d >= 0) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: decoy_%d intensity must be non-negative, got %v", ErrConfiguration, i+1, d)
		}
		if seen[d] {
			return fmt.Errorf("%w: intensity %v configured twice", ErrConfiguration, d)
		}
		seen[d] = true
	}
	names := c.StateNames()
	if len(c.Probabilities) != len(names) {
		return fmt.Errorf("%w: %d state probabilities for %d intensities", ErrConfiguration, len(c.Probabilities), len(names))
	}
	for _, name := range names {
		p, ok := c.Probabilities[name]
		if !ok {
			return fmt.Errorf("%w: missing state probability %q", ErrConfiguration, name)
		}
		if !(p >= 0) {
			return fmt.Errorf("%w: state probability %q must be non-negative, got %v", ErrConfiguration, name, p)
		}
	}
	if sum := floats.Sum(c.weights()); math.Abs(sum-1) > ProbabilityTolerance {
		return fmt.Errorf("%w: state probabilities sum to %v, want 1", ErrConfiguration, sum)
	}
	return nil
}

func (c IntensityConfig) weights() []float64 {
	names := c.StateNames()
	w := make([]float64, len(names))
	for i, name := range names {
		w[i] = c.Probabilities[name]
	}
	return w
}

// A PulseGenerator draws the sender's per-pulse intensity, bit and basis.
type PulseGenerator struct {
	intensities []float64
	choose      distuv.Categorical
	rng         *rand.Rand
}

// NewPulseGenerator returns a PulseGenerator drawing from cfg. Every draw is
// taken from src, so generators built from identically seeded sources produce
// identical pulses.
func NewPulseGenerator(cfg IntensityConfig, src rand.Source) (*PulseGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("must provide a random source")
	}
	return &PulseGenerator{
		intensities: cfg.Intensities(),
		choose:      distuv.NewCategorical(cfg.weights(), src),
		rng:         rand.New(src),
	}, nil
}

// Generate returns n pulses. For each pulse the intensity is drawn first, then
// a uniform bit, then a uniform basis.
func (g *PulseGenerator) Generate(n int) ([]photon.PulseRecord, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: key length must be positive, got %d", ErrConfiguration, n)
	}
	pulses := make([]photon.PulseRecord, n)
	for i := range pulses {
		mu := g.intensities[int(g.choose.Rand())]
		pulses[i] = photon.PulseRecord{
			Index:     i,
			Intensity: mu,
			Bit:       uint8(g.rng.Intn(2)),
			Basis:     photon.Basis(g.rng.Intn(2)),
		}
	}
	return pulses, nil
}
