package executor

import (
	"context"
	"time"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/task"
)

// Listener observes task execution. Both hooks run on the worker that owns
// the task, in registration order. An error fails the task.
type Listener interface {
	BeforeExecute(ctx context.Context, exec *task.Executable) error
	AfterExecute(ctx context.Context, exec *task.Executable, result *engine.TaskResult) error
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Before func(ctx context.Context, exec *task.Executable) error
	After  func(ctx context.Context, exec *task.Executable, result *engine.TaskResult) error
}

func (l ListenerFuncs) BeforeExecute(ctx context.Context, exec *task.Executable) error {
	if l.Before == nil {
		return nil
	}
	return l.Before(ctx, exec)
}

func (l ListenerFuncs) AfterExecute(ctx context.Context, exec *task.Executable, result *engine.TaskResult) error {
	if l.After == nil {
		return nil
	}
	return l.After(ctx, exec, result)
}

// SkipObserver is implemented by listeners that also want results for tasks
// that never reached a worker.
type SkipObserver interface {
	TaskSkipped(ctx context.Context, result *engine.TaskResult)
}

// Recorder persists run history. stores.SQLiteStore implements it.
type Recorder interface {
	RecordRunStart(ctx context.Context, runID string, requested []string, started time.Time) error
	RecordTaskResult(ctx context.Context, runID string, result *engine.TaskResult) error
	RecordRunEnd(ctx context.Context, runID string, summary engine.RunSummary) error
}
