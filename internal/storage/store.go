package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alan-christopher/decoy-bb84/bb84"
	"github.com/alan-christopher/decoy-bb84/internal/config"
)

// A Run is the persisted summary of one post-processing run. Key material is
// never stored.
type Run struct {
	ID              string
	StartedAt       time.Time
	Pulses          int
	DistanceKm      float64
	SignalIntensity float64
	DecoyIntensity  float64
	Sifted          int
	RawKeyBits      int
	FinalKeyBits    int
	QBER            float64
	Y1              float64
	E1              float64
	RawRate         float64
	Rate            float64
	Duration        time.Duration
	Reliable        bool
	Buckets         []bb84.IntensityBucket
}

// NewRun summarizes r, a run that began at startedAt, under a fresh run id.
func NewRun(r bb84.Report, startedAt time.Time, pulses int, distanceKm float64) Run {
	return Run{
		ID:              uuid.NewString(),
		StartedAt:       startedAt.UTC(),
		Pulses:          pulses,
		DistanceKm:      distanceKm,
		SignalIntensity: r.SignalIntensity,
		DecoyIntensity:  r.DecoyIntensity,
		Sifted:          r.Sifted,
		RawKeyBits:      r.RawKey.Size(),
		FinalKeyBits:    r.FinalKey.Size(),
		QBER:            r.Stats.PerIntensity[r.SignalIntensity].QBER,
		Y1:              r.Estimate.Y1,
		E1:              r.Estimate.E1,
		RawRate:         r.RawRate,
		Rate:            r.Rate,
		Duration:        r.Stats.Duration,
		Reliable:        r.Reliable(),
		Buckets:         r.Stats.PerIntensity.Sorted(),
	}
}

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type queries struct {
	insertRun     string
	insertBucket  string
	selectRun     string
	selectBuckets string
}

type baseStore struct {
	db *sql.DB
	q  queries
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) SaveRun(ctx context.Context, run Run) error {
	if b.db == nil {
		return nil
	}
	if run.ID == "" {
		return errors.New("run id is empty")
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, b.q.insertRun,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Pulses,
		run.DistanceKm,
		run.SignalIntensity,
		run.DecoyIntensity,
		run.Sifted,
		run.RawKeyBits,
		run.FinalKeyBits,
		run.QBER,
		run.Y1,
		run.E1,
		run.RawRate,
		run.Rate,
		run.Duration.Nanoseconds(),
		run.Reliable,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	stmt, err := tx.PrepareContext(ctx, b.q.insertBucket)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, bk := range run.Buckets {
		if _, err := stmt.ExecContext(ctx,
			run.ID,
			bk.Intensity,
			bk.SentCount,
			bk.DetectedCount,
			bk.ErrorCount,
			bk.Yield,
			bk.QBER,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("saving intensity %v of run %s: %w", bk.Intensity, run.ID, err)
		}
	}
	return tx.Commit()
}

func (b *baseStore) GetRun(ctx context.Context, id string) (Run, error) {
	if b.db == nil {
		return Run{}, sql.ErrNoRows
	}
	run := Run{ID: id}
	var startedAt string
	var durationNs int64
	err := b.db.QueryRowContext(ctx, b.q.selectRun, id).Scan(
		&startedAt,
		&run.Pulses,
		&run.DistanceKm,
		&run.SignalIntensity,
		&run.DecoyIntensity,
		&run.Sifted,
		&run.RawKeyBits,
		&run.FinalKeyBits,
		&run.QBER,
		&run.Y1,
		&run.E1,
		&run.RawRate,
		&run.Rate,
		&durationNs,
		&run.Reliable,
	)
	if err != nil {
		return Run{}, fmt.Errorf("loading run %s: %w", id, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Run{}, fmt.Errorf("run %s: bad timestamp %q: %w", id, startedAt, err)
	}
	run.Duration = time.Duration(durationNs)

	rows, err := b.db.QueryContext(ctx, b.q.selectBuckets, id)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var bk bb84.IntensityBucket
		if err := rows.Scan(&bk.Intensity, &bk.SentCount, &bk.DetectedCount, &bk.ErrorCount, &bk.Yield, &bk.QBER); err != nil {
			return Run{}, err
		}
		run.Buckets = append(run.Buckets, bk)
	}
	return run, rows.Err()
}
