package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DLR-TS/sumoldl/internal/schema"
)

// SimRun tracks one simulator driver iteration, identified by a UUID
// correlation id so compare.txt/viewer output on disk can be traced back to
// the database row that describes it.
type SimRun struct {
	RunID      string
	Scenario   string
	LoopKind   string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Warnings   int
	Errors     int
	Detail     string
}

// InsertSimRun records the start of a new iteration.
func (s *Store) InsertSimRun(ctx context.Context, run SimRun) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (run_id, scenario, loop_kind, started_at, status, warnings, errors, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, schema.Quote(s.schema.SimRuns)),
		run.RunID, run.Scenario, run.LoopKind, run.StartedAt.Unix(), run.Status, run.Warnings, run.Errors, run.Detail)
	if err != nil {
		return fmt.Errorf("insert sim run %s: %w", run.RunID, err)
	}
	return nil
}

// FinishSimRun records the completion status of runID.
func (s *Store) FinishSimRun(ctx context.Context, runID string, finishedAt time.Time, status string, warnings, errors int, detail string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET finished_at = ?, status = ?, warnings = ?, errors = ?, detail = ? WHERE run_id = ?`,
		schema.Quote(s.schema.SimRuns)), finishedAt.Unix(), status, warnings, errors, detail, runID)
	if err != nil {
		return fmt.Errorf("finish sim run %s: %w", runID, err)
	}
	return nil
}

// RecentSimRuns returns the last limit sim runs ordered by start time
// descending, for the scheduler's status endpoint.
func (s *Store) RecentSimRuns(ctx context.Context, limit int) ([]SimRun, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT run_id, scenario, loop_kind, started_at, finished_at, status, warnings, errors, detail
		 FROM %s ORDER BY started_at DESC LIMIT ?`, schema.Quote(s.schema.SimRuns)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SimRun
	for rows.Next() {
		var r SimRun
		var started int64
		var finished sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&r.RunID, &r.Scenario, &r.LoopKind, &started, &finished, &r.Status, &r.Warnings, &r.Errors, &detail); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			t := time.Unix(finished.Int64, 0).UTC()
			r.FinishedAt = &t
		}
		r.Detail = detail.String
		out = append(out, r)
	}
	return out, rows.Err()
}
