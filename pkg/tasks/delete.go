package tasks

import (
	"context"
	"fmt"
	"os"

	"github.com/assemble/assemble/pkg/lazy"
	"github.com/assemble/assemble/pkg/task"
)

// Delete removes files and directories. It declares no inputs, so it runs
// every time.
type Delete struct {
	Targets *task.FileCollection
}

// NewDelete creates a Delete for the given paths.
func NewDelete(paths ...string) *Delete {
	return &Delete{Targets: task.NewFileCollection(paths...)}
}

// NewClean deletes the project's build directory.
func NewClean(buildDir lazy.Provider[string]) *Delete {
	return &Delete{Targets: new(task.FileCollection).AddProvider(buildDir)}
}

// Description implements task.Describer.
func (d *Delete) Description() string { return "Deletes files and directories" }

// Action implements task.Task.
func (d *Delete) Action(_ context.Context, e *task.Executable, p task.Project) error {
	base := ""
	if p != nil {
		base = p.Dir()
	}
	paths, err := d.Targets.Paths(base)
	if err != nil {
		return err
	}
	removed := 0
	for _, path := range paths {
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
		removed++
	}
	fmt.Fprintf(e.Stdout(), "deleted %d path(s)\n", removed)
	return nil
}
