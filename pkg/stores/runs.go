package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/executor"
)

var _ executor.Recorder = (*SQLiteStore)(nil)

// RecordRunStart inserts a run in the running state.
func (s *SQLiteStore) RecordRunStart(ctx context.Context, runID string, requested []string, started time.Time) error {
	if requested == nil {
		requested = []string{}
	}
	encoded, err := json.Marshal(requested)
	if err != nil {
		return fmt.Errorf("failed to encode requested tasks: %w", err)
	}

	query := `INSERT INTO runs (id, requested, status, started_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		runID, string(encoded), string(engine.RunStatusRunning), started.UTC(),
	); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// RecordTaskResult stores the result of one task. A second result for the
// same task replaces the first.
func (s *SQLiteStore) RecordTaskResult(ctx context.Context, runID string, result *engine.TaskResult) error {
	query := `
		INSERT OR REPLACE INTO task_results
			(run_id, task_id, outcome, reason, error, started_at, ended_at, stdout, stderr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		runID,
		result.ID.String(),
		string(result.Outcome),
		result.Reason,
		result.ErrorMessage(),
		nullTime(result.Start.UTC()),
		nullTime(result.End.UTC()),
		result.Stdout,
		result.Stderr,
	)
	if err != nil {
		return fmt.Errorf("failed to record result of %s: %w", result.ID, err)
	}
	return nil
}

// RecordRunEnd stores the final status and counts of a run.
func (s *SQLiteStore) RecordRunEnd(ctx context.Context, runID string, summary engine.RunSummary) error {
	query := `
		UPDATE runs
		SET status = ?, finished_at = ?, duration_ms = ?, total = ?, failed = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(summary.Status),
		time.Now().UTC(),
		summary.Duration.Milliseconds(),
		summary.Total,
		len(summary.Failed),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

const runColumns = `id, requested, status, started_at, finished_at, duration_ms, total, failed`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var (
		requested  string
		status     string
		finishedAt sql.NullTime
		durationMS int64
	)
	if err := row.Scan(&run.ID, &requested, &status, &run.StartedAt, &finishedAt,
		&durationMS, &run.Total, &run.Failed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(requested), &run.Requested); err != nil {
		return nil, fmt.Errorf("failed to decode requested tasks of run %s: %w", run.ID, err)
	}
	run.Status = engine.RunStatus(status)
	run.FinishedAt = timePtr(finishedAt)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return run, nil
}

// GetRun retrieves a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recently started run, or nil when none exist.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.ListRuns(ctx, 1, 0)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// ListRuns returns runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run together with its task results.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListTaskResults returns the task results of a run ordered by start time.
// Tasks that never started sort last.
func (s *SQLiteStore) ListTaskResults(ctx context.Context, runID string) ([]*TaskRecord, error) {
	query := `
		SELECT run_id, task_id, outcome, reason, error, started_at, ended_at, stdout, stderr
		FROM task_results
		WHERE run_id = ?
		ORDER BY started_at IS NULL, started_at, task_id
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task results: %w", err)
	}
	defer rows.Close()

	var records []*TaskRecord
	for rows.Next() {
		r := &TaskRecord{}
		var (
			outcome    string
			start, end sql.NullTime
		)
		if err := rows.Scan(&r.RunID, &r.TaskID, &outcome, &r.Reason, &r.Error,
			&start, &end, &r.Stdout, &r.Stderr); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		r.Outcome = engine.Outcome(outcome)
		r.Start = timePtr(start)
		r.End = timePtr(end)
		records = append(records, r)
	}
	return records, rows.Err()
}
