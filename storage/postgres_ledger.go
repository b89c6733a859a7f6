package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"domus-ia/models"
	"domus-ia/utils"
)

// PostgresLedger keeps one row per ingestion run in PostgreSQL.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger opens a connection to PostgreSQL, waits for it to answer
// and creates the ingest_runs table when missing.
func NewPostgresLedger(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, Logger: logger}
	if err := retry.Do(ctx, "postgres ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pl := &PostgresLedger{db: db}
	if err := pl.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pl, nil
}

func (pl *PostgresLedger) migrate(ctx context.Context) error {
	_, err := pl.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ingest_runs (
			id             SERIAL PRIMARY KEY,
			source_file    TEXT        NOT NULL,
			started_at     TIMESTAMPTZ NOT NULL,
			finished_at    TIMESTAMPTZ NOT NULL,
			records        INTEGER     NOT NULL DEFAULT 0,
			batches        INTEGER     NOT NULL DEFAULT 0,
			failed_batches INTEGER     NOT NULL DEFAULT 0,
			attempted      INTEGER     NOT NULL DEFAULT 0,
			upserted       INTEGER     NOT NULL DEFAULT 0,
			modified       INTEGER     NOT NULL DEFAULT 0,
			matched        INTEGER     NOT NULL DEFAULT 0,
			failed         INTEGER     NOT NULL DEFAULT 0,
			dropped        INTEGER     NOT NULL DEFAULT 0,
			superseded     INTEGER     NOT NULL DEFAULT 0,
			status         VARCHAR(16) NOT NULL,
			error          TEXT        NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_ingest_runs_status  ON ingest_runs(status);
	`)
	return err
}

const insertRunQuery = `
	INSERT INTO ingest_runs (
		source_file, started_at, finished_at, records, batches, failed_batches,
		attempted, upserted, modified, matched, failed, dropped, superseded,
		status, error
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`

// RecordRun inserts the summary of a finished run.
func (pl *PostgresLedger) RecordRun(ctx context.Context, s models.RunSummary) error {
	if _, err := pl.db.ExecContext(ctx, insertRunQuery, runArgs(s)...); err != nil {
		return fmt.Errorf("postgres: record run: %w", err)
	}
	return nil
}

func runArgs(s models.RunSummary) []interface{} {
	finished := s.FinishedAt
	if finished.IsZero() {
		finished = s.StartedAt
	}
	return []interface{}{
		s.SourceFile, s.StartedAt.UTC(), finished.UTC(),
		s.Records, s.Batches, s.FailedBatches,
		s.Attempted, s.Upserted, s.Modified, s.Matched, s.Failed, s.Dropped, s.Superseded,
		s.Status, s.Error,
	}
}

func (pl *PostgresLedger) Close() error {
	return pl.db.Close()
}

var _ RunRecorder = (*PostgresLedger)(nil)
