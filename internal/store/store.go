// Package store persists emitted run statistics to a local SQLite
// database so repeated analyses can be compared later.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/averis/bulklog/internal/stats"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the stats database at path.
func Open(path string) (*Store, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS run_stats(
	  id             INTEGER PRIMARY KEY,
	  recorded_at    TEXT    NOT NULL,
	  export_group   TEXT    NOT NULL,
	  params_json    TEXT    NOT NULL CHECK (json_valid(params_json)),
	  start_at       TEXT,
	  resource_count INTEGER NOT NULL,
	  byte_count     INTEGER NOT NULL,
	  duration_ms    REAL    NOT NULL,
	  patient_count  INTEGER NOT NULL,
	  error_count    INTEGER NOT NULL,
	  run_count      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_stats_group ON run_stats(export_group);
	CREATE INDEX IF NOT EXISTS idx_run_stats_recorded ON run_stats(recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertStats records every stats block in one transaction.
func (s *Store) InsertStats(ctx context.Context, all []*stats.RunStats) error {
	recordedAt := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	statement, err := tx.PrepareContext(ctx, `INSERT INTO run_stats(
	  recorded_at, export_group, params_json, start_at,
	  resource_count, byte_count, duration_ms, patient_count, error_count, run_count
	) VALUES(?,?,json(?),?,?,?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	for _, entry := range all {
		params, err := json.Marshal(entry.Params)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to encode params: %w", err)
		}
		var startAt any
		if entry.Start != nil {
			startAt = entry.Start.UTC().Format(time.RFC3339Nano)
		}
		if _, err := statement.ExecContext(ctx,
			recordedAt, entry.Group, string(params), startAt,
			entry.ResourceCount, entry.ByteCount, entry.DurationMS,
			entry.PatientCount, entry.ErrorCount, entry.RunCount,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert stats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
