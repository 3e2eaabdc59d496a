package tasks

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"

	"github.com/assemble/assemble/pkg/lazy"
	"github.com/assemble/assemble/pkg/task"
)

// Exec runs an external program. Its command line, working directory and
// environment are task inputs; output goes to the task's captured streams.
type Exec struct {
	Command    *lazy.Prop[string]
	Args       *lazy.Prop[[]string]
	WorkingDir *lazy.Prop[string]
	Env        map[string]string
	// IgnoreExitCode treats a non-zero exit as success.
	IgnoreExitCode bool
}

// NewExec creates an Exec with empty args.
func NewExec() *Exec {
	return &Exec{
		Command:    lazy.NewProp[string]("command"),
		Args:       lazy.PropOf("args", []string{}),
		WorkingDir: lazy.NewProp[string]("workingDir"),
		Env:        map[string]string{},
	}
}

// ExitError reports a non-zero exit code.
type ExitError struct {
	Command  string
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

// DeclareIO implements task.IODeclarer.
func (t *Exec) DeclareIO(e *task.Executable, p task.Project) error {
	task.Input[string](e, "command", t.Command)
	task.Input[[]string](e, "args", t.Args)
	task.Input[string](e, "workingDir", lazy.FromFunc(func() string { return t.dir(p) }))
	task.Input[map[string]string](e, "env", lazy.FromFunc(func() map[string]string { return maps.Clone(t.Env) }))
	return nil
}

// dir is the configured working directory, defaulting to the project directory.
func (t *Exec) dir(p task.Project) string {
	if dir, ok := t.WorkingDir.TryGet(); ok {
		return dir
	}
	if p != nil {
		return p.Dir()
	}
	return ""
}

// Description implements task.Describer.
func (t *Exec) Description() string { return "Runs an external command" }

// Action implements task.Task.
func (t *Exec) Action(ctx context.Context, e *task.Executable, p task.Project) error {
	command, err := t.Command.FallibleGet()
	if err != nil {
		return err
	}
	args, _ := t.Args.TryGet()
	dir := t.dir(p)

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir
	cmd.Stdout = e.Stdout()
	cmd.Stderr = e.Stderr()
	cmd.Env = os.Environ()
	for _, k := range slices.Sorted(maps.Keys(t.Env)) {
		cmd.Env = append(cmd.Env, k+"="+t.Env[k])
	}

	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if t.IgnoreExitCode {
			return nil
		}
		return &ExitError{Command: command, ExitCode: exitErr.ExitCode()}
	}
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", command, err)
	}
	return nil
}
