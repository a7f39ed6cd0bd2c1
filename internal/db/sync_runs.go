package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Sync Run Methods
// -----------------------------------------------------------------------------

// CreateSyncRun inserts a new run record in the running state.
// A nil ID is replaced with a fresh UUID.
func (db *DB) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO sync_runs (id, trigger, status, max_pages)
		 VALUES ($1, $2, $3, $4)
		 RETURNING started_at`,
		run.ID, run.Trigger, run.Status, run.MaxPages,
	).Scan(&run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// CompleteSyncRun stores the final counters and status of a run
func (db *DB) CompleteSyncRun(ctx context.Context, run *SyncRun) error {
	err := db.pool.QueryRow(ctx,
		`UPDATE sync_runs
		 SET status = $2, total_reported = $3, processed = $4, saved = $5,
		     failed = $6, degraded = $7, skipped = $8, error = $9, completed_at = NOW()
		 WHERE id = $1
		 RETURNING completed_at`,
		run.ID, run.Status, run.TotalReported, run.Processed, run.Saved,
		run.Failed, run.Degraded, run.Skipped, run.Error,
	).Scan(&run.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to complete sync run %s: %w", run.ID, err)
	}
	return nil
}

// ListSyncRuns retrieves the most recent runs
func (db *DB) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, trigger, status, max_pages, total_reported, processed, saved,
		        failed, degraded, skipped, error, started_at, completed_at
		 FROM sync_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &r.MaxPages, &r.TotalReported,
			&r.Processed, &r.Saved, &r.Failed, &r.Degraded, &r.Skipped, &r.Error,
			&r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
