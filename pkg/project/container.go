package project

import (
	"fmt"
	"slices"
	"sync"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/task"
)

type entry struct {
	id        identifier.TaskID
	factory   task.Factory
	configure []task.ConfigureFunc
	exec      *task.Executable
	resolving bool
}

// Container holds the tasks of one project. Tasks are created on first
// resolution; until then only their factory and queued configuration exist.
type Container struct {
	mu      sync.Mutex
	project *Project
	entries map[identifier.TaskID]*entry
	order   []identifier.TaskID
	sealed  bool
}

func newContainer(p *Project) *Container {
	return &Container{project: p, entries: make(map[identifier.TaskID]*entry)}
}

// Register records a factory under name and returns a handle to the task.
func (c *Container) Register(name string, factory task.Factory) (*task.Handle, error) {
	return c.RegisterWith(name, factory, nil)
}

// RegisterWith registers a task and queues configure, if non-nil.
func (c *Container) RegisterWith(name string, factory task.Factory, configure task.ConfigureFunc) (*task.Handle, error) {
	id, err := c.project.id.Task(name)
	if err != nil {
		return nil, engine.NewConfigurationError(engine.ErrCodeInvalidID, "invalid task name", err).
			WithOperation("register")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return nil, engine.NewConfigurationError(engine.ErrCodeContainerSealed,
			"cannot register tasks after the task graph was built", nil).WithTask(id)
	}
	if _, exists := c.entries[id]; exists {
		return nil, engine.NewConfigurationError(engine.ErrCodeDuplicateTask,
			"task already registered", nil).WithTask(id)
	}

	e := &entry{id: id, factory: factory}
	if configure != nil {
		e.configure = append(e.configure, configure)
	}
	c.entries[id] = e
	c.order = append(c.order, id)
	return task.NewHandle(id, c), nil
}

// Configure queues fn for a registered task. A task that already exists is
// configured immediately.
func (c *Container) Configure(id identifier.TaskID, fn task.ConfigureFunc) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return engine.NewConfigurationError(engine.ErrCodeTaskNotFound, "task not found", nil).WithTask(id)
	}
	if e.exec == nil {
		if c.sealed {
			c.mu.Unlock()
			return engine.NewConfigurationError(engine.ErrCodeContainerSealed,
				"cannot configure tasks after the task graph was built", nil).WithTask(id)
		}
		e.configure = append(e.configure, fn)
		c.mu.Unlock()
		return nil
	}
	exec := e.exec
	c.mu.Unlock()

	if err := fn(exec, c.project); err != nil {
		return engine.NewConfigurationError(engine.ErrCodeConfigureFailed,
			"configuration failed", err).WithTask(id)
	}
	return nil
}

// Resolve creates the executable on first call: the factory runs, then every
// queued configuration in order, then the task's Initialize and DeclareIO.
// Later calls return the same executable.
func (c *Container) Resolve(id identifier.TaskID) (*task.Executable, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return nil, engine.NewConfigurationError(engine.ErrCodeTaskNotFound, "task not found", nil).WithTask(id)
	}
	if e.exec != nil {
		c.mu.Unlock()
		return e.exec, nil
	}
	if e.resolving {
		c.mu.Unlock()
		return nil, engine.NewConfigurationError(engine.ErrCodeConfigureFailed,
			"task is already being configured", nil).WithTask(id).WithOperation("resolve")
	}
	e.resolving = true
	configure := slices.Clone(e.configure)
	c.mu.Unlock()

	exec, err := c.build(e, configure)

	c.mu.Lock()
	defer c.mu.Unlock()
	e.resolving = false
	if err != nil {
		return nil, err
	}
	e.exec = exec
	e.configure = nil
	return exec, nil
}

func (c *Container) build(e *entry, configure []task.ConfigureFunc) (*task.Executable, error) {
	t, err := e.factory(e.id, c.project)
	if err != nil {
		return nil, engine.NewConfigurationError(engine.ErrCodeConfigureFailed,
			"task factory failed", err).WithTask(e.id).WithOperation("create")
	}
	exec := task.NewExecutable(e.id, t, c.project)

	for i, fn := range configure {
		if err := fn(exec, c.project); err != nil {
			return nil, engine.NewConfigurationError(engine.ErrCodeConfigureFailed,
				fmt.Sprintf("configuration closure #%d failed", i), err).
				WithTask(e.id).WithDetail("closure", i)
		}
	}
	if initializer, ok := t.(task.Initializer); ok {
		if err := initializer.Initialize(exec, c.project); err != nil {
			return nil, engine.NewConfigurationError(engine.ErrCodeConfigureFailed,
				"initialize failed", err).WithTask(e.id).WithOperation("initialize")
		}
	}
	if decl, ok := t.(task.IODeclarer); ok {
		if err := decl.DeclareIO(exec, c.project); err != nil {
			return nil, engine.NewConfigurationError(engine.ErrCodeConfigureFailed,
				"declaring inputs and outputs failed", err).WithTask(e.id).WithOperation("declare_io")
		}
	}
	return exec, nil
}

// Has reports whether id is registered.
func (c *Container) Has(id identifier.TaskID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// Handle returns a handle to a registered task.
func (c *Container) Handle(id identifier.TaskID) (*task.Handle, error) {
	if !c.Has(id) {
		return nil, engine.NewConfigurationError(engine.ErrCodeTaskNotFound, "task not found", nil).WithTask(id)
	}
	return task.NewHandle(id, c), nil
}

// TaskIDs lists tasks in registration order.
func (c *Container) TaskIDs() []identifier.TaskID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

// Seal rejects further registration.
func (c *Container) Seal() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
}
