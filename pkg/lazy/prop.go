package lazy

import (
	"errors"
	"sync"
)

// ErrPropFinalized is returned when setting a finalized property.
var ErrPropFinalized = errors.New("property is finalized")

// Prop is a named, settable provider. It is safe for concurrent use.
type Prop[T any] struct {
	mu        sync.RWMutex
	name      string
	source    Provider[T]
	finalized bool
}

// NewProp creates an unset property.
func NewProp[T any](name string) *Prop[T] {
	return &Prop[T]{name: name}
}

// PropOf creates a property holding v.
func PropOf[T any](name string, v T) *Prop[T] {
	return &Prop[T]{name: name, source: Just(v)}
}

// Name returns the property name.
func (p *Prop[T]) Name() string { return p.name }

// Set stores a fixed value.
func (p *Prop[T]) Set(v T) error {
	return p.SetProvider(Just(v))
}

// SetProvider delegates the property to another provider. Providers derived
// from p observe later changes.
func (p *Prop[T]) SetProvider(src Provider[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finalized {
		return &ProviderError{Property: p.name, Message: "cannot set", Err: ErrPropFinalized}
	}
	p.source = src
	return nil
}

// Finalize prevents further changes.
func (p *Prop[T]) Finalize() {
	p.mu.Lock()
	p.finalized = true
	p.mu.Unlock()
}

// IsSet reports whether a value or provider was assigned.
func (p *Prop[T]) IsSet() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source != nil
}

// FallibleGet implements Provider.
func (p *Prop[T]) FallibleGet() (T, error) {
	p.mu.RLock()
	src := p.source
	p.mu.RUnlock()

	if src == nil {
		var zero T
		return zero, &ProviderError{Property: p.name, Message: "no value has been set"}
	}
	v, err := src.FallibleGet()
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) && perr.Property == "" {
			return v, &ProviderError{Property: p.name, Message: perr.Message, Err: perr.Err}
		}
		return v, err
	}
	return v, nil
}

// TryGet implements Provider.
func (p *Prop[T]) TryGet() (T, bool) { return tryGet[T](p) }

// Get implements Provider.
func (p *Prop[T]) Get() T { return mustGet[T](p) }

// MissingMessage implements Provider.
func (p *Prop[T]) MissingMessage() string { return missingMessage[T](p) }
