package engine

import (
	"time"

	"github.com/assemble/assemble/pkg/identifier"
)

// TaskResult is the immutable record of one task in one run.
type TaskResult struct {
	ID      identifier.TaskID `json:"id"`
	Outcome Outcome           `json:"outcome"`

	// Err is set for failed tasks.
	Err error `json:"-"`

	// Reason explains skipped and up-to-date outcomes.
	Reason string `json:"reason,omitempty"`

	// LoadTime is when the executor accepted the task into the plan.
	LoadTime time.Time `json:"load_time"`
	Start    time.Time `json:"start,omitempty"`
	End      time.Time `json:"end,omitempty"`

	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// Duration is the wall-clock time between Start and End. Tasks that never
// started report zero.
func (r *TaskResult) Duration() time.Duration {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// ErrorMessage returns the failure message or an empty string.
func (r *TaskResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RunSummary aggregates outcomes of a run.
type RunSummary struct {
	Total    int                 `json:"total"`
	Outcomes map[Outcome]int     `json:"outcomes"`
	Status   RunStatus           `json:"status"`
	Duration time.Duration       `json:"duration"`
	Failed   []identifier.TaskID `json:"failed,omitempty"`
}

// Summarize builds a summary from results.
func Summarize(results []*TaskResult, cancelled bool, elapsed time.Duration) RunSummary {
	s := RunSummary{
		Total:    len(results),
		Outcomes: make(map[Outcome]int),
		Status:   RunStatusSucceeded,
		Duration: elapsed,
	}
	for _, r := range results {
		s.Outcomes[r.Outcome]++
		if r.Outcome == OutcomeFailed {
			s.Failed = append(s.Failed, r.ID)
			s.Status = RunStatusFailed
		}
	}
	if cancelled && s.Status == RunStatusSucceeded {
		s.Status = RunStatusCancelled
	}
	return s
}
