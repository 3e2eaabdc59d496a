package task

import (
	"fmt"
	"sync"

	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/lazy"
)

// Resolver creates and configures executables on demand.
type Resolver interface {
	Resolve(id identifier.TaskID) (*Executable, error)
	Configure(id identifier.TaskID, fn ConfigureFunc) error
}

// Handle is a reference to a registered task. Reading it resolves the
// executable; depending on it only records the task id.
type Handle struct {
	id       identifier.TaskID
	resolver Resolver
}

var _ lazy.Provider[*Executable] = (*Handle)(nil)

// NewHandle creates a handle backed by resolver.
func NewHandle(id identifier.TaskID, resolver Resolver) *Handle {
	return &Handle{id: id, resolver: resolver}
}

// ID returns the referenced task id.
func (h *Handle) ID() identifier.TaskID { return h.id }

// Configure queues fn, or applies it immediately if the task already exists.
func (h *Handle) Configure(fn ConfigureFunc) error {
	return h.resolver.Configure(h.id, fn)
}

// BuiltBy implements Buildable.
func (h *Handle) BuiltBy(Lookup) (IDSet, error) {
	return NewIDSet(h.id), nil
}

// FallibleGet resolves the executable.
func (h *Handle) FallibleGet() (*Executable, error) {
	return h.resolver.Resolve(h.id)
}

// TryGet implements lazy.Provider.
func (h *Handle) TryGet() (*Executable, bool) {
	e, err := h.FallibleGet()
	return e, err == nil
}

// Get implements lazy.Provider. It panics if the task cannot be resolved.
func (h *Handle) Get() *Executable {
	e, err := h.FallibleGet()
	if err != nil {
		panic(&lazy.ProviderError{Message: fmt.Sprintf("task %s", h.id), Err: err})
	}
	return e
}

// MissingMessage implements lazy.Provider.
func (h *Handle) MissingMessage() string {
	if _, err := h.FallibleGet(); err != nil {
		return err.Error()
	}
	return ""
}

func (h *Handle) String() string { return h.id.String() }

// OutputProvider derives a value from a task. It depends on the task and
// caches its value once the task has finished.
type OutputProvider[T any] struct {
	handle *Handle
	fn     func(*Executable) (T, error)

	mu     sync.Mutex
	cached bool
	value  T
}

// Output creates a provider computing fn over the executable behind h.
func Output[T any](h *Handle, fn func(*Executable) (T, error)) *OutputProvider[T] {
	return &OutputProvider[T]{handle: h, fn: fn}
}

// PropertyOutput reads a value the task stores in its property bag.
func PropertyOutput[T any](h *Handle, name string) *OutputProvider[T] {
	return Output(h, func(e *Executable) (T, error) {
		var zero T
		raw, ok := e.Property(name)
		if !ok {
			return zero, &lazy.ProviderError{Property: name, Message: fmt.Sprintf("task %s has not set it", e.ID())}
		}
		v, ok := raw.(T)
		if !ok {
			return zero, &lazy.ProviderError{Property: name, Message: fmt.Sprintf("task %s stored %T", e.ID(), raw)}
		}
		return v, nil
	})
}

// BuiltBy implements Buildable.
func (o *OutputProvider[T]) BuiltBy(lookup Lookup) (IDSet, error) {
	return o.handle.BuiltBy(lookup)
}

// FallibleGet implements lazy.Provider.
func (o *OutputProvider[T]) FallibleGet() (T, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cached {
		return o.value, nil
	}
	exec, err := o.handle.FallibleGet()
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := o.fn(exec)
	if err != nil {
		return v, err
	}
	if exec.Finished() {
		o.value, o.cached = v, true
	}
	return v, nil
}

// TryGet implements lazy.Provider.
func (o *OutputProvider[T]) TryGet() (T, bool) {
	v, err := o.FallibleGet()
	return v, err == nil
}

// Get implements lazy.Provider.
func (o *OutputProvider[T]) Get() T {
	v, err := o.FallibleGet()
	if err != nil {
		panic(&lazy.ProviderError{Message: "task output unavailable", Err: err})
	}
	return v
}

// MissingMessage implements lazy.Provider.
func (o *OutputProvider[T]) MissingMessage() string {
	if _, err := o.FallibleGet(); err != nil {
		return err.Error()
	}
	return ""
}
