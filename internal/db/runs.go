//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgEdge/pgedge-starload/internal/logging"
	"github.com/pgEdge/pgedge-starload/internal/warehouse"
	"github.com/pgEdge/pgedge-starload/pkg/version"
)

const runsTable = "starload_runs"

// Execer is satisfied by *pgxpool.Pool and *pgx.Conn.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RunRecord is one row of the run history.
type RunRecord struct {
	RunID         uuid.UUID
	StartedAt     time.Time
	FinishedAt    time.Time
	Status        string
	SourceRecords int
	Inserted      int64
	Dropped       int64
	Version       string
	Summary       []byte
}

// NewRunRecord summarizes a pipeline report for the run history.
func NewRunRecord(r *warehouse.Report) (RunRecord, error) {
	summary, err := r.Summary()
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to encode run summary: %w", err)
	}
	rec := RunRecord{
		RunID:         r.RunID,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Status:        r.Status(),
		SourceRecords: r.SourceRecords,
		Version:       version.Short(),
		Summary:       summary,
	}
	for _, s := range r.Stages {
		rec.Inserted += int64(s.Inserted)
		rec.Dropped += int64(s.Dropped)
	}
	return rec, nil
}

// SaveRun records a finished pipeline run.
func SaveRun(ctx context.Context, db Execer, rec RunRecord) error {
	_, err := db.Exec(ctx, `
        INSERT INTO starload_runs
            (run_id, started_at, finished_at, status, source_records,
             inserted, dropped, version, summary)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
    `, rec.RunID, rec.StartedAt, rec.FinishedAt, rec.Status, rec.SourceRecords,
		rec.Inserted, rec.Dropped, rec.Version, string(rec.Summary))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}

	logging.Debug().
		Str("run_id", rec.RunID.String()).
		Str("status", rec.Status).
		Msg("Saved run")
	return nil
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(ctx context.Context, db Execer, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(ctx, fmt.Sprintf(`
        SELECT run_id, started_at, finished_at, status, source_records,
               inserted, dropped, version, summary::text
        FROM %s
        ORDER BY started_at DESC
        LIMIT $1
    `, runsTable), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RunRecord, error) {
		var (
			rec     RunRecord
			summary string
		)
		err := row.Scan(&rec.RunID, &rec.StartedAt, &rec.FinishedAt, &rec.Status,
			&rec.SourceRecords, &rec.Inserted, &rec.Dropped, &rec.Version, &summary)
		rec.Summary = []byte(summary)
		return rec, err
	})
}
