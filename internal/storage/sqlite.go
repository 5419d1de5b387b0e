package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:qkd.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db, q: sqliteQueries}}, nil
}

var sqliteQueries = queries{
	insertRun: `INSERT INTO runs (id, started_at, pulses, distance_km, signal_intensity, decoy_intensity,
		sifted, raw_key_bits, final_key_bits, qber, y1, e1, raw_rate, rate, duration_ns, reliable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	insertBucket: `INSERT INTO intensity_stats (run_id, intensity, sent, detected, errors, yield, qber)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
	selectRun: `SELECT started_at, pulses, distance_km, signal_intensity, decoy_intensity,
		sifted, raw_key_bits, final_key_bits, qber, y1, e1, raw_rate, rate, duration_ns, reliable
		FROM runs WHERE id = ?`,
	selectBuckets: `SELECT intensity, sent, detected, errors, yield, qber
		FROM intensity_stats WHERE run_id = ? ORDER BY intensity DESC`,
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			pulses INTEGER NOT NULL,
			distance_km REAL NOT NULL,
			signal_intensity REAL NOT NULL,
			decoy_intensity REAL NOT NULL,
			sifted INTEGER NOT NULL,
			raw_key_bits INTEGER NOT NULL,
			final_key_bits INTEGER NOT NULL,
			qber REAL NOT NULL,
			y1 REAL NOT NULL,
			e1 REAL NOT NULL,
			raw_rate REAL NOT NULL,
			rate REAL NOT NULL,
			duration_ns INTEGER NOT NULL,
			reliable INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS intensity_stats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			intensity REAL NOT NULL,
			sent INTEGER NOT NULL,
			detected INTEGER NOT NULL,
			errors INTEGER NOT NULL,
			yield REAL NOT NULL,
			qber REAL NOT NULL
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
