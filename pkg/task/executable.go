package task

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/lazy"
	"github.com/assemble/assemble/pkg/work"
)

type namedInput struct {
	name     string
	provider lazy.Provider[any]
}

type namedOutput struct {
	name     string
	provider lazy.Provider[string]
}

// Executable is a task plus everything the engine tracks about it. It is
// owned by its project's container and used by one worker at a time.
type Executable struct {
	id      identifier.TaskID
	task    Task
	project Project

	description string
	group       string

	first []ActionFunc
	last  []ActionFunc

	orderings  []Ordering
	upToDateIf []func(*Executable) bool

	inputs      []namedInput
	inputFiles  []*FileCollection
	sourceFiles []*FileCollection
	outputFiles []*FileCollection
	outputData  []namedOutput

	propsMu sync.RWMutex
	props   map[string]any

	stdout bytes.Buffer
	stderr bytes.Buffer

	finished  atomic.Bool
	recovered *work.Output
}

// NewExecutable wraps t. Projects call this from their container.
func NewExecutable(id identifier.TaskID, t Task, project Project) *Executable {
	e := &Executable{id: id, task: t, project: project, props: make(map[string]any)}
	if d, ok := t.(Describer); ok {
		e.description = d.Description()
	}
	return e
}

// ID returns the task id.
func (e *Executable) ID() identifier.TaskID { return e.id }

// Task returns the wrapped task.
func (e *Executable) Task() Task { return e.task }

// Project returns the owning project.
func (e *Executable) Project() Project { return e.project }

// Description returns the task description.
func (e *Executable) Description() string { return e.description }

// SetDescription replaces the description.
func (e *Executable) SetDescription(d string) { e.description = d }

// Group returns the task group used by the task report.
func (e *Executable) Group() string { return e.group }

// SetGroup replaces the group.
func (e *Executable) SetGroup(g string) { e.group = g }

// Info returns the presentation view.
func (e *Executable) Info() Info {
	return Info{ID: e.id, Description: e.description, Group: e.group}
}

// DoFirst prepends an action. Actions added later run earlier.
func (e *Executable) DoFirst(a ActionFunc) {
	e.first = append(e.first, a)
}

// DoLast appends an action.
func (e *Executable) DoLast(a ActionFunc) {
	e.last = append(e.last, a)
}

// DependsOn adds dependencies that must succeed before this task.
func (e *Executable) DependsOn(b ...Buildable) { e.order(DependsOn, b) }

// FinalizedBy adds finalizers that run after this task.
func (e *Executable) FinalizedBy(b ...Buildable) { e.order(FinalizedBy, b) }

// RunsBefore orders this task before b when both run.
func (e *Executable) RunsBefore(b ...Buildable) { e.order(RunsBefore, b) }

// RunsAfter orders this task after b when both run.
func (e *Executable) RunsAfter(b ...Buildable) { e.order(RunsAfter, b) }

func (e *Executable) order(kind OrderingKind, targets []Buildable) {
	for _, b := range targets {
		e.orderings = append(e.orderings, Ordering{Buildable: b, Kind: kind})
	}
}

// Orderings returns the declared orderings in declaration order.
func (e *Executable) Orderings() []Ordering {
	return slices.Clone(e.orderings)
}

// UpToDateIf adds a predicate that must hold for the task to be skipped.
func (e *Executable) UpToDateIf(pred func(*Executable) bool) {
	e.upToDateIf = append(e.upToDateIf, pred)
}

// InputProperty declares a named input value.
func (e *Executable) InputProperty(name string, p lazy.Provider[any]) {
	e.inputs = append(e.inputs, namedInput{name: name, provider: p})
}

// InputFiles declares input files. Producers of fc become dependencies.
func (e *Executable) InputFiles(fc *FileCollection) {
	e.inputFiles = append(e.inputFiles, fc)
	if fc.HasProducers() {
		e.DependsOn(fc)
	}
}

// SourceFiles declares input files whose absence makes the task NO-SOURCE.
func (e *Executable) SourceFiles(fc *FileCollection) {
	e.sourceFiles = append(e.sourceFiles, fc)
	if fc.HasProducers() {
		e.DependsOn(fc)
	}
}

// OutputFiles declares files or directories the task produces.
func (e *Executable) OutputFiles(fc *FileCollection) {
	e.outputFiles = append(e.outputFiles, fc)
}

// OutputData declares a named value stored with the task output.
func (e *Executable) OutputData(name string, p lazy.Provider[string]) {
	e.outputData = append(e.outputData, namedOutput{name: name, provider: p})
}

// Input declares a typed input value.
func Input[T any](e *Executable, name string, p lazy.Provider[T]) {
	e.InputProperty(name, lazy.Erase(p))
}

// SetProperty stores a value in the executable's property bag.
func (e *Executable) SetProperty(name string, v any) {
	e.propsMu.Lock()
	e.props[name] = v
	e.propsMu.Unlock()
}

// Property reads from the property bag.
func (e *Executable) Property(name string) (any, bool) {
	e.propsMu.RLock()
	defer e.propsMu.RUnlock()
	v, ok := e.props[name]
	return v, ok
}

// Properties returns a copy of the property bag.
func (e *Executable) Properties() map[string]any {
	e.propsMu.RLock()
	defer e.propsMu.RUnlock()
	return maps.Clone(e.props)
}

// Stdout is where actions write output to be captured in the task result.
func (e *Executable) Stdout() *bytes.Buffer { return &e.stdout }

// Stderr is the captured error stream.
func (e *Executable) Stderr() *bytes.Buffer { return &e.stderr }

// HasSourceDeclaration reports whether SourceFiles was called.
func (e *Executable) HasSourceDeclaration() bool {
	return len(e.sourceFiles) > 0
}

// SourceEmpty reports whether every declared source collection is empty.
func (e *Executable) SourceEmpty() (bool, error) {
	for _, fc := range e.sourceFiles {
		files, err := fc.Files(e.dir())
		if err != nil {
			return false, err
		}
		if len(files) > 0 {
			return false, nil
		}
	}
	return true, nil
}

// SnapshotInputs evaluates every declared input. A provider without a value
// fails the snapshot.
func (e *Executable) SnapshotInputs() (work.Input, error) {
	var b work.InputBuilder
	for _, in := range e.inputs {
		v, err := in.provider.FallibleGet()
		if err != nil {
			return work.Input{}, fmt.Errorf("input %q of %s: %w", in.name, e.id, err)
		}
		if err := b.AddProperty(in.name, v); err != nil {
			return work.Input{}, err
		}
	}
	for _, fc := range slices.Concat(e.inputFiles, e.sourceFiles) {
		paths, err := fc.Paths(e.dir())
		if err != nil {
			return work.Input{}, fmt.Errorf("input files of %s: %w", e.id, err)
		}
		if err := b.AddFiles(paths...); err != nil {
			return work.Input{}, err
		}
	}
	return b.Build(e.id), nil
}

// SnapshotOutputs records the declared outputs after a successful run.
func (e *Executable) SnapshotOutputs() (work.Output, error) {
	var roots []string
	for _, fc := range e.outputFiles {
		paths, err := fc.Paths(e.dir())
		if err != nil {
			return work.Output{}, fmt.Errorf("output files of %s: %w", e.id, err)
		}
		roots = append(roots, paths...)
	}
	var data map[string]string
	for _, o := range e.outputData {
		v, ok := o.provider.TryGet()
		if !ok {
			continue
		}
		if data == nil {
			data = make(map[string]string)
		}
		data[o.name] = v
	}
	return work.NewOutput(roots, data)
}

// HasOutputs reports whether any output files or output data were declared.
func (e *Executable) HasOutputs() bool {
	return len(e.outputFiles) > 0 || len(e.outputData) > 0
}

// OutputRoots evaluates the declared output paths.
func (e *Executable) OutputRoots() ([]string, error) {
	var roots []string
	for _, fc := range e.outputFiles {
		paths, err := fc.Paths(e.dir())
		if err != nil {
			return nil, err
		}
		roots = append(roots, paths...)
	}
	return roots, nil
}

// UpToDateChecks returns the custom predicates, including the task's own
// UpToDateChecker, bound to this executable.
func (e *Executable) UpToDateChecks() []func() bool {
	var checks []func() bool
	if c, ok := e.task.(UpToDateChecker); ok {
		checks = append(checks, func() bool { return c.UpToDate(e) })
	}
	for _, pred := range e.upToDateIf {
		checks = append(checks, func() bool { return pred(e) })
	}
	return checks
}

// Recover hands a previous output to the task when it is skipped.
func (e *Executable) Recover(out work.Output) error {
	e.recovered = &out
	if r, ok := e.task.(OutputRecoverer); ok {
		return r.RecoverOutputs(e, out)
	}
	return nil
}

// RecoveredOutput returns the output restored by Recover, if any.
func (e *Executable) RecoveredOutput() (work.Output, bool) {
	if e.recovered == nil {
		return work.Output{}, false
	}
	return *e.recovered, true
}

// Execute runs the first actions, the task action and the last actions in
// order. It reports whether the task was stopped early.
func (e *Executable) Execute(ctx context.Context) (stopped bool, err error) {
	actions := make([]ActionFunc, 0, len(e.first)+1+len(e.last))
	for i := len(e.first) - 1; i >= 0; i-- {
		actions = append(actions, e.first[i])
	}
	actions = append(actions, e.task.Action)
	actions = append(actions, e.last...)

	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		err := action(ctx, e, e.project)
		switch {
		case err == nil, errors.Is(err, ErrStopAction):
			continue
		case errors.Is(err, ErrStopTask):
			return true, nil
		default:
			return false, err
		}
	}
	return false, nil
}

// MarkFinished records that the task reached a terminal outcome.
func (e *Executable) MarkFinished() { e.finished.Store(true) }

// Finished reports whether MarkFinished was called.
func (e *Executable) Finished() bool { return e.finished.Load() }

func (e *Executable) dir() string {
	if e.project == nil {
		return ""
	}
	return e.project.Dir()
}
