package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/assemble/assemble/pkg/telemetry"
)

// AppendEvent persists a lifecycle event.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event telemetry.Event) error {
	data := []byte("{}")
	if len(event.Data) > 0 {
		encoded, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to encode event data: %w", err)
		}
		data = encoded
	}

	query := `
		INSERT INTO events (id, run_id, task_id, type, level, message, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		event.ID, event.RunID, event.TaskID, event.Type, event.Level, event.Message,
		string(data), event.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// EventSubscriber returns a subscriber that persists every event it sees.
// Write failures are passed to onError, which may be nil.
func (s *SQLiteStore) EventSubscriber(ctx context.Context, onError func(error)) telemetry.EventSubscriber {
	return func(event telemetry.Event) {
		if err := s.AppendEvent(ctx, event); err != nil && onError != nil {
			onError(err)
		}
	}
}

// ListEvents returns the events of a run in the order they were recorded.
// An empty runID lists events of every run; a limit of zero lists all.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, limit int) ([]*EventRecord, error) {
	query := `SELECT id, run_id, task_id, type, level, message, data, created_at FROM events`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY created_at, rowid LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		e := &EventRecord{}
		var data string
		if err := rows.Scan(&e.ID, &e.RunID, &e.TaskID, &e.Type, &e.Level, &e.Message,
			&data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("failed to decode event data: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
