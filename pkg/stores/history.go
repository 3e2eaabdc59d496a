package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/work"
)

var _ work.Store = (*SQLiteStore)(nil)

// Load implements work.Store.
func (s *SQLiteStore) Load(ctx context.Context, id identifier.TaskID) (*work.History, error) {
	var input, output string
	err := s.db.QueryRowContext(ctx,
		`SELECT input, output FROM task_history WHERE task_id = ?`, id.String(),
	).Scan(&input, &output)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", id, err)
	}

	var h work.History
	if err := json.Unmarshal([]byte(input), &h.Input); err != nil {
		return nil, fmt.Errorf("failed to decode input history for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(output), &h.Output); err != nil {
		return nil, fmt.Errorf("failed to decode output history for %s: %w", id, err)
	}
	if h.Input.TaskID != id {
		return nil, fmt.Errorf("history for %s belongs to %s", id, h.Input.TaskID)
	}
	return &h, nil
}

// Save implements work.Store. It replaces any previous history of the task.
func (s *SQLiteStore) Save(ctx context.Context, h *work.History) error {
	input, err := json.Marshal(h.Input)
	if err != nil {
		return fmt.Errorf("failed to encode input history for %s: %w", h.Input.TaskID, err)
	}
	output, err := json.Marshal(h.Output)
	if err != nil {
		return fmt.Errorf("failed to encode output history for %s: %w", h.Input.TaskID, err)
	}

	query := `
		INSERT INTO task_history (task_id, input, output, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			input = excluded.input,
			output = excluded.output,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		h.Input.TaskID.String(), string(input), string(output), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to save history for %s: %w", h.Input.TaskID, err)
	}
	return nil
}

// Remove implements work.Store. Removing a missing history is not an error.
func (s *SQLiteStore) Remove(ctx context.Context, id identifier.TaskID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_history WHERE task_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to remove history for %s: %w", id, err)
	}
	return nil
}

// ListHistory returns every cached task history ordered by task id.
func (s *SQLiteStore) ListHistory(ctx context.Context) ([]*HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, updated_at FROM task_history ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list histories: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{}
		if err := rows.Scan(&e.TaskID, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearHistory deletes every cached history and returns how many were removed.
func (s *SQLiteStore) ClearHistory(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM task_history`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear histories: %w", err)
	}
	return result.RowsAffected()
}
