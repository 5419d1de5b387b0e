// Package publish announces completed runs on a Kafka topic. Only statistics
// are published; key material never leaves the process.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alan-christopher/decoy-bb84/internal/config"
	"github.com/alan-christopher/decoy-bb84/internal/storage"
)

// A Summary is the JSON value of a published message.
type Summary struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	Pulses       int       `json:"pulses"`
	DistanceKm   float64   `json:"distance_km"`
	Sifted       int       `json:"sifted"`
	RawKeyBits   int       `json:"raw_key_bits"`
	FinalKeyBits int       `json:"final_key_bits"`
	QBER         float64   `json:"qber"`
	Y1           float64   `json:"y1"`
	E1           float64   `json:"e1"`
	Rate         float64   `json:"rate"`
	DurationS    float64   `json:"duration_s"`
	Reliable     bool      `json:"reliable"`
	Intensities  []Bucket  `json:"intensities"`
}

type Bucket struct {
	Intensity float64 `json:"intensity"`
	Sent      int     `json:"sent"`
	Detected  int     `json:"detected"`
	Errors    int     `json:"errors"`
	Yield     float64 `json:"yield"`
	QBER      float64 `json:"qber"`
}

func NewSummary(run storage.Run) Summary {
	s := Summary{
		RunID:        run.ID,
		StartedAt:    run.StartedAt,
		Pulses:       run.Pulses,
		DistanceKm:   run.DistanceKm,
		Sifted:       run.Sifted,
		RawKeyBits:   run.RawKeyBits,
		FinalKeyBits: run.FinalKeyBits,
		QBER:         run.QBER,
		Y1:           run.Y1,
		E1:           run.E1,
		Rate:         run.Rate,
		DurationS:    run.Duration.Seconds(),
		Reliable:     run.Reliable,
	}
	for _, b := range run.Buckets {
		s.Intensities = append(s.Intensities, Bucket{
			Intensity: b.Intensity,
			Sent:      b.SentCount,
			Detected:  b.DetectedCount,
			Errors:    b.ErrorCount,
			Yield:     b.Yield,
			QBER:      b.QBER,
		})
	}
	return s
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	w messageWriter
}

// NewPublisher returns a Publisher for cfg, or nil if publishing is disabled.
func NewPublisher(cfg config.PublishConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("publish requires brokers, topic")
	}
	return &Publisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}, nil
}

// Publish writes run's summary keyed by its id.
func (p *Publisher) Publish(ctx context.Context, run storage.Run) error {
	value, err := json.Marshal(NewSummary(run))
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: []byte(run.ID), Value: value, Time: run.StartedAt}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing run %s: %w", run.ID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}
