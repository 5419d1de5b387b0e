package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/qkd?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, q: postgresQueries}}, nil
}

var postgresQueries = queries{
	insertRun: `INSERT INTO runs (id, started_at, pulses, distance_km, signal_intensity, decoy_intensity,
		sifted, raw_key_bits, final_key_bits, qber, y1, e1, raw_rate, rate, duration_ns, reliable)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
	insertBucket: `INSERT INTO intensity_stats (run_id, intensity, sent, detected, errors, yield, qber)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	selectRun: `SELECT started_at, pulses, distance_km, signal_intensity, decoy_intensity,
		sifted, raw_key_bits, final_key_bits, qber, y1, e1, raw_rate, rate, duration_ns, reliable
		FROM runs WHERE id = $1`,
	selectBuckets: `SELECT intensity, sent, detected, errors, yield, qber
		FROM intensity_stats WHERE run_id = $1 ORDER BY intensity DESC`,
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			started_at TEXT NOT NULL,
			pulses INTEGER NOT NULL,
			distance_km DOUBLE PRECISION NOT NULL,
			signal_intensity DOUBLE PRECISION NOT NULL,
			decoy_intensity DOUBLE PRECISION NOT NULL,
			sifted INTEGER NOT NULL,
			raw_key_bits INTEGER NOT NULL,
			final_key_bits INTEGER NOT NULL,
			qber DOUBLE PRECISION NOT NULL,
			y1 DOUBLE PRECISION NOT NULL,
			e1 DOUBLE PRECISION NOT NULL,
			raw_rate DOUBLE PRECISION NOT NULL,
			rate DOUBLE PRECISION NOT NULL,
			duration_ns BIGINT NOT NULL,
			reliable BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS intensity_stats (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES runs(id),
			intensity DOUBLE PRECISION NOT NULL,
			sent INTEGER NOT NULL,
			detected INTEGER NOT NULL,
			errors INTEGER NOT NULL,
			yield DOUBLE PRECISION NOT NULL,
			qber DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_intensity_stats_run ON intensity_stats(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
