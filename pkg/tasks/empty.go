package tasks

import (
	"context"

	"github.com/assemble/assemble/pkg/task"
)

// Empty does nothing. Lifecycle tasks such as "build" use it to group other
// tasks through their dependencies.
type Empty struct{}

// Action implements task.Task.
func (Empty) Action(context.Context, *task.Executable, task.Project) error { return nil }
