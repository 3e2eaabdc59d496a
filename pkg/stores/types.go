package stores

import (
	"time"

	"github.com/assemble/assemble/pkg/engine"
)

// Run is one recorded invocation of the executor.
type Run struct {
	ID         string           `json:"id"`
	Requested  []string         `json:"requested"`
	Status     engine.RunStatus `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Duration   time.Duration    `json:"duration"`
	Total      int              `json:"total"`
	Failed     int              `json:"failed"`
}

// TaskRecord is the stored result of one task in a run.
type TaskRecord struct {
	RunID   string         `json:"run_id"`
	TaskID  string         `json:"task_id"`
	Outcome engine.Outcome `json:"outcome"`
	Reason  string         `json:"reason,omitempty"`
	Error   string         `json:"error,omitempty"`
	Start   *time.Time     `json:"start,omitempty"`
	End     *time.Time     `json:"end,omitempty"`
	Stdout  string         `json:"stdout,omitempty"`
	Stderr  string         `json:"stderr,omitempty"`
}

// Duration is zero for tasks that never started.
func (r *TaskRecord) Duration() time.Duration {
	if r.Start == nil || r.End == nil {
		return 0
	}
	return r.End.Sub(*r.Start)
}

// EventRecord is a persisted lifecycle event.
type EventRecord struct {
	ID        string                 `json:"id"`
	RunID     string                 `json:"run_id,omitempty"`
	TaskID    string                 `json:"task_id,omitempty"`
	Type      string                 `json:"type"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// HistoryEntry describes one cached task history without its payload.
type HistoryEntry struct {
	TaskID    string    `json:"task_id"`
	UpdatedAt time.Time `json:"updated_at"`
}
