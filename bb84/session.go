package bb84

import (
	"errors"
	"fmt"

	"github.com/alan-christopher/decoy-bb84/bb84/photon"
	"golang.org/x/exp/rand"
)

// SessionOpts packages together the arguments necessary to construct a
// Session.
type SessionOpts struct {
	Opts

	// Channel carries pulses from sender to receiver. Must be non-nil.
	Channel photon.Channel

	// Src drives the sender's intensity, bit and basis choices. Must be
	// non-nil.
	Src rand.Source

	// KeyLength is the number of pulses sent per run. Must be positive.
	KeyLength int
}

// A Session runs the sender's side of a simulated exchange end to end:
// generate pulses, transmit them, then post-process what came back.
type Session struct {
	gen     *PulseGenerator
	proc    *PostProcessor
	channel photon.Channel
	n       int
}

// A Transcript holds the raw records of a Session run.
type Transcript struct {
	Pulses     []photon.PulseRecord
	Detections []photon.DetectionRecord
}

// NewSession returns a Session configured by opts.
func NewSession(opts SessionOpts) (*Session, error) {
	if opts.Channel == nil {
		return nil, errors.New("must provide a channel")
	}
	if opts.KeyLength <= 0 {
		return nil, fmt.Errorf("%w: key length must be positive, got %d", ErrConfiguration, opts.KeyLength)
	}
	proc, err := NewPostProcessor(opts.Opts)
	if err != nil {
		return nil, err
	}
	gen, err := NewPulseGenerator(opts.Intensities, opts.Src)
	if err != nil {
		return nil, err
	}
	return &Session{gen: gen, proc: proc, channel: opts.Channel, n: opts.KeyLength}, nil
}

// Run performs one exchange. The report's duration covers the channel's
// elapsed time plus post-processing.
func (s *Session) Run() (Report, Transcript, error) {
	pulses, err := s.gen.Generate(s.n)
	if err != nil {
		return Report{}, Transcript{}, fmt.Errorf("generating pulses: %w", err)
	}
	tx, err := s.channel.Transmit(pulses)
	if err != nil {
		return Report{}, Transcript{}, fmt.Errorf("transmitting pulses: %w", err)
	}
	tr := Transcript{Pulses: pulses, Detections: tx.Detections}
	r, err := s.proc.Process(pulses, tx.Detections)
	if err != nil {
		return Report{}, tr, err
	}
	r.Stats.Duration += tx.Elapsed
	return r, tr, nil
}
