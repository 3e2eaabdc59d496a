package task

import (
	"context"
	"errors"

	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/lazy"
	"github.com/assemble/assemble/pkg/work"
)

var (
	// ErrStopAction ends the current action. The remaining actions still run.
	ErrStopAction = errors.New("stop action")

	// ErrStopTask ends the task successfully without running the remaining
	// actions.
	ErrStopTask = errors.New("stop task")
)

// Task is user-defined build behaviour.
type Task interface {
	Action(ctx context.Context, exec *Executable, project Project) error
}

// Initializer is implemented by tasks that configure their executable when
// it is first created, before declaring inputs and outputs.
type Initializer interface {
	Initialize(exec *Executable, project Project) error
}

// IODeclarer is implemented by tasks that register their inputs and outputs.
type IODeclarer interface {
	DeclareIO(exec *Executable, project Project) error
}

// UpToDateChecker adds a task-specific up-to-date condition.
type UpToDateChecker interface {
	UpToDate(exec *Executable) bool
}

// OutputRecoverer restores task state from a previous output when the task
// is skipped as up to date.
type OutputRecoverer interface {
	RecoverOutputs(exec *Executable, out work.Output) error
}

// Describer supplies a default description.
type Describer interface {
	Description() string
}

// Factory creates the Task registered under id.
type Factory func(id identifier.TaskID, project Project) (Task, error)

// FromTask returns a factory that always yields t.
func FromTask(t Task) Factory {
	return func(identifier.TaskID, Project) (Task, error) { return t, nil }
}

// ActionFunc adapts a function to Task. It is also the type of DoFirst and
// DoLast actions.
type ActionFunc func(ctx context.Context, exec *Executable, project Project) error

// Action implements Task.
func (f ActionFunc) Action(ctx context.Context, exec *Executable, project Project) error {
	return f(ctx, exec, project)
}

// ConfigureFunc mutates an executable during configuration.
type ConfigureFunc func(exec *Executable, project Project) error

// Info is the presentation view of a task.
type Info struct {
	ID          identifier.TaskID
	Description string
	Group       string
}

// Lookup resolves task references.
type Lookup interface {
	// FindTaskID resolves an absolute id or a shorthand.
	FindTaskID(repr string) (identifier.TaskID, error)
	HasTask(id identifier.TaskID) bool
}

// Project is the view of a project available to tasks.
type Project interface {
	Lookup

	ID() identifier.ProjectID
	// Dir is the absolute project directory.
	Dir() string
	// BuildDir is the absolute build output directory.
	BuildDir() lazy.Provider[string]
	// TaskIDs lists the project's own tasks in registration order.
	TaskIDs() []identifier.TaskID
	// AllTaskIDs lists tasks of the project and every subproject.
	AllTaskIDs() []identifier.TaskID
	// Describe resolves a task and returns its presentation view.
	Describe(id identifier.TaskID) (Info, error)
}
