package engine

import (
	"encoding/json"
	"fmt"
)

// Outcome is the final state of a single task in a run.
type Outcome string

const (
	// OutcomeExecuted indicates the task actions ran and succeeded.
	OutcomeExecuted Outcome = "EXECUTED"

	// OutcomeUpToDate indicates nothing changed since the last successful run.
	OutcomeUpToDate Outcome = "UP-TO-DATE"

	// OutcomeNoSource indicates the task declared source files and none exist.
	OutcomeNoSource Outcome = "NO-SOURCE"

	// OutcomeStopped indicates an action stopped the task early. It counts as success.
	OutcomeStopped Outcome = "STOPPED"

	// OutcomeSkipped indicates the task never started because of an upstream
	// failure, an aborted build or cancellation.
	OutcomeSkipped Outcome = "SKIPPED"

	// OutcomeFailed indicates the task, one of its listeners or its inputs failed.
	OutcomeFailed Outcome = "FAILED"
)

// Successful reports whether dependents of a task with this outcome may run.
func (o Outcome) Successful() bool {
	switch o {
	case OutcomeExecuted, OutcomeUpToDate, OutcomeNoSource, OutcomeStopped:
		return true
	default:
		return false
	}
}

// DidWork reports whether the task's actions were invoked.
func (o Outcome) DidWork() bool {
	return o == OutcomeExecuted || o == OutcomeStopped || o == OutcomeFailed
}

// Validate checks if the outcome is valid.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeExecuted, OutcomeUpToDate, OutcomeNoSource,
		OutcomeStopped, OutcomeSkipped, OutcomeFailed:
		return nil
	default:
		return fmt.Errorf("invalid task outcome: %s", o)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(o))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*o = Outcome(str)
	return o.Validate()
}

// RunStatus represents the overall status of a build run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every task finished successfully.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates at least one task failed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run context was cancelled.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// FailureMode selects how the executor reacts to the first failed task.
type FailureMode string

const (
	// FailFast stops scheduling new work after a failure. Finalizers of tasks
	// that already ran still execute.
	FailFast FailureMode = "fail-fast"

	// ContinueOnFailure keeps running everything that does not depend on a
	// failed task.
	ContinueOnFailure FailureMode = "continue"
)

// Validate checks if the failure mode is valid.
func (m FailureMode) Validate() error {
	switch m {
	case FailFast, ContinueOnFailure:
		return nil
	default:
		return fmt.Errorf("invalid failure mode: %s", m)
	}
}
