package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"listing-scraper/models"

	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS job_runs (
	job_id TEXT PRIMARY KEY,
	site_id TEXT NOT NULL,
	state TEXT NOT NULL,
	records_written INTEGER NOT NULL,
	pages_visited INTEGER NOT NULL,
	malformed INTEGER NOT NULL,
	abort_reason TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_errors (
	job_id TEXT NOT NULL REFERENCES job_runs(job_id),
	seq INTEGER NOT NULL,
	cursor TEXT NOT NULL,
	kind TEXT NOT NULL,
	retried INTEGER NOT NULL,
	attempt INTEGER NOT NULL,
	message TEXT NOT NULL,
	at TEXT NOT NULL,
	PRIMARY KEY (job_id, seq)
);
`

// RunHistory keeps every job result in a local sqlite database.
type RunHistory struct {
	db *sql.DB
}

func OpenRunHistory(path string) (*RunHistory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and writes serial
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create run history schema: %w", err)
	}
	return &RunHistory{db: db}, nil
}

func (h *RunHistory) Close() error {
	return h.db.Close()
}

func (h *RunHistory) Record(ctx context.Context, r models.RunResult) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO job_runs
			(job_id, site_id, state, records_written, pages_visited, malformed, abort_reason, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.SiteID, string(r.State), r.RecordsWritten, r.PagesVisited, r.Malformed,
		r.AbortReason, formatTime(r.StartedAt), formatTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_errors WHERE job_id = ?`, r.JobID); err != nil {
		return fmt.Errorf("clear job errors: %w", err)
	}
	for i, e := range r.Errors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO job_errors (job_id, seq, cursor, kind, retried, attempt, message, at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.JobID, i, e.Cursor, string(e.Kind), e.Retried, e.Attempt, e.Message, formatTime(e.At),
		)
		if err != nil {
			return fmt.Errorf("insert job error: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns the latest runs, newest first, without their error
// entries.
func (h *RunHistory) Recent(ctx context.Context, limit int) ([]models.RunResult, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT job_id, site_id, state, records_written, pages_visited, malformed, abort_reason, started_at, finished_at
		FROM job_runs ORDER BY started_at DESC, job_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RunResult
	for rows.Next() {
		var (
			r                 models.RunResult
			state             string
			started, finished string
		)
		if err := rows.Scan(&r.JobID, &r.SiteID, &state, &r.RecordsWritten, &r.PagesVisited, &r.Malformed, &r.AbortReason, &started, &finished); err != nil {
			return nil, err
		}
		r.State = models.JobState(state)
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ErrorCount returns how many error entries were stored for a job.
func (h *RunHistory) ErrorCount(ctx context.Context, jobID string) (int, error) {
	var n int
	err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_errors WHERE job_id = ?`, jobID).Scan(&n)
	return n, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
