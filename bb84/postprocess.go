package bb84

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alan-christopher/decoy-bb84/bb84/photon"
)

// A PostProcessor turns the sender's pulse records and the receiver's
// detection records into a distilled key.
type PostProcessor struct {
	cfg         IntensityConfig
	intensities map[float64]bool
	fEc         float64
	log         *slog.Logger
}

// NewPostProcessor returns a PostProcessor configured by opts.
func NewPostProcessor(opts Opts) (*PostProcessor, error) {
	if err := opts.Intensities.Validate(); err != nil {
		return nil, err
	}
	if opts.ErrorCorrectionFactor == 0 {
		opts.ErrorCorrectionFactor = DefaultErrorCorrectionFactor
	}
	if !(opts.ErrorCorrectionFactor >= 1) {
		return nil, fmt.Errorf("%w: error correction factor must be at least 1, got %v",
			ErrConfiguration, opts.ErrorCorrectionFactor)
	}
	intensities := make(map[float64]bool)
	for _, mu := range opts.Intensities.Intensities() {
		intensities[mu] = true
	}
	return &PostProcessor{
		cfg:         opts.Intensities,
		intensities: intensities,
		fEc:         opts.ErrorCorrectionFactor,
		log:         opts.logger(),
	}, nil
}

// Process sifts, estimates and distills a single batch. Degenerate intensity
// buckets are reported as warnings on the returned Report; any other failure
// aborts without a key.
func (p *PostProcessor) Process(pulses []photon.PulseRecord, detections []photon.DetectionRecord) (Report, error) {
	start := time.Now()
	if err := p.checkPulses(pulses); err != nil {
		return Report{}, err
	}
	sifted, err := Sift(pulses, detections)
	if err != nil {
		return Report{}, fmt.Errorf("sifting: %w", err)
	}
	p.log.Debug("sifted pulses", "pulses", len(pulses), "sifted", len(sifted))

	stats := EstimateIntensityStats(pulses, sifted, p.cfg.Intensities())
	var warnings []*InsufficientDataError
	for _, mu := range p.cfg.Intensities() {
		if w := stats[mu].Insufficient(); w != nil {
			p.log.Warn("statistics unreliable", "intensity", mu,
				"sent", w.SentCount, "detected", w.DetectedCount, "err", w)
			warnings = append(warnings, w)
		}
	}

	decoy := p.estimationDecoy()
	est, err := p.estimate(stats, decoy)
	if err != nil {
		return Report{}, fmt.Errorf("estimating single-photon contribution: %w", err)
	}

	signal := stats[p.cfg.Signal]
	rawRate := RawSecureRate(est.E1, signal.QBER, p.fEc)
	rate := SecureRate(est.Y1, est.E1, signal.QBER, p.fEc)
	rawKey := RawSignalKey(sifted, p.cfg.Signal)
	finalKey, err := Distill(rawKey, rate)
	if err != nil {
		return Report{}, err
	}
	if rate == 0 {
		p.log.Info("no extractable key", "raw_rate", rawRate, "y1", est.Y1, "e1", est.E1)
	}

	r := Report{
		FinalKey:        finalKey,
		RawKey:          rawKey,
		Sifted:          len(sifted),
		SignalIntensity: p.cfg.Signal,
		DecoyIntensity:  decoy,
		Estimate:        est,
		RawRate:         rawRate,
		Rate:            rate,
		Stats:           Stats{PerIntensity: stats},
		Warnings:        warnings,
	}
	r.Stats.Duration = time.Since(start)
	p.log.Info("post-processing complete",
		"sifted", r.Sifted, "raw_key_bits", rawKey.Size(), "final_key_bits", finalKey.Size(),
		"qber", signal.QBER, "y1", est.Y1, "e1", est.E1, "rate", rate)
	return r, nil
}

func (p *PostProcessor) checkPulses(pulses []photon.PulseRecord) error {
	for i, pulse := range pulses {
		if !p.intensities[pulse.Intensity] {
			return fmt.Errorf("%w: pulse %d has unconfigured intensity %v", ErrConfiguration, i, pulse.Intensity)
		}
	}
	return nil
}

// estimationDecoy returns the first decoy above vacuum, or the vacuum if that
// is the only decoy.
func (p *PostProcessor) estimationDecoy() float64 {
	for _, nu := range p.cfg.Decoys {
		if nu > 0 {
			return nu
		}
	}
	return p.cfg.Decoys[0]
}

func (p *PostProcessor) estimate(stats IntensityStats, decoy float64) (SinglePhotonEstimate, error) {
	mu := p.cfg.Signal
	if vacuum, ok := stats[0]; ok && decoy > 0 && vacuum.SentCount > 0 {
		return EstimateSinglePhotonWithVacuum(stats[mu], stats[decoy], vacuum, mu, decoy)
	}
	return EstimateSinglePhoton(stats[mu], stats[decoy], mu, decoy)
}
