package lazy

import (
	"errors"
	"fmt"
)

// ProviderError reports a provider that could not produce a value.
type ProviderError struct {
	// Property is the name of the property, when known.
	Property string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Property != "" {
		return fmt.Sprintf("property %q: %s", e.Property, msg)
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider is a lazily evaluated value.
type Provider[T any] interface {
	// FallibleGet evaluates the provider.
	FallibleGet() (T, error)
	// TryGet evaluates the provider and reports whether a value was present.
	TryGet() (T, bool)
	// Get evaluates the provider and panics with a *ProviderError when no
	// value is present.
	Get() T
	// MissingMessage describes why the provider has no value, or returns an
	// empty string when it has one.
	MissingMessage() string
}

// Func is a provider backed by a closure. The closure runs on every read.
type Func[T any] struct {
	fn func() (T, error)
}

// FromFunc wraps an infallible closure.
func FromFunc[T any](fn func() T) Func[T] {
	return Func[T]{fn: func() (T, error) { return fn(), nil }}
}

// FromFallible wraps a closure that may fail.
func FromFallible[T any](fn func() (T, error)) Func[T] {
	return Func[T]{fn: fn}
}

// Just returns a provider with a fixed value.
func Just[T any](v T) Func[T] {
	return Func[T]{fn: func() (T, error) { return v, nil }}
}

// Missing returns a provider that never has a value.
func Missing[T any](message string) Func[T] {
	return Func[T]{fn: func() (T, error) {
		var zero T
		return zero, &ProviderError{Message: message}
	}}
}

// FallibleGet implements Provider.
func (f Func[T]) FallibleGet() (T, error) {
	if f.fn == nil {
		var zero T
		return zero, &ProviderError{Message: "provider has no source"}
	}
	return f.fn()
}

// TryGet implements Provider.
func (f Func[T]) TryGet() (T, bool) {
	return tryGet[T](f)
}

// Get implements Provider.
func (f Func[T]) Get() T {
	return mustGet[T](f)
}

// MissingMessage implements Provider.
func (f Func[T]) MissingMessage() string {
	return missingMessage[T](f)
}

// Map returns a provider applying fn to the value of p.
func Map[T, U any](p Provider[T], fn func(T) U) Provider[U] {
	return FromFallible(func() (U, error) {
		v, err := p.FallibleGet()
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v), nil
	})
}

// FlatMap returns a provider that evaluates the provider returned by fn.
func FlatMap[T, U any](p Provider[T], fn func(T) Provider[U]) Provider[U] {
	return FromFallible(func() (U, error) {
		v, err := p.FallibleGet()
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v).FallibleGet()
	})
}

// Flatten collapses a provider of providers.
func Flatten[T any](p Provider[Provider[T]]) Provider[T] {
	return FlatMap(p, func(inner Provider[T]) Provider[T] { return inner })
}

// Zip combines two providers. The result is missing if either input is.
func Zip[A, B, R any](a Provider[A], b Provider[B], fn func(A, B) R) Provider[R] {
	return FromFallible(func() (R, error) {
		var zero R
		av, err := a.FallibleGet()
		if err != nil {
			return zero, err
		}
		bv, err := b.FallibleGet()
		if err != nil {
			return zero, err
		}
		return fn(av, bv), nil
	})
}

// Erase converts a typed provider into a Provider[any], for code that only
// needs to serialize values.
func Erase[T any](p Provider[T]) Provider[any] {
	return Map(p, func(v T) any { return v })
}

func tryGet[T any](p interface{ FallibleGet() (T, error) }) (T, bool) {
	v, err := p.FallibleGet()
	return v, err == nil
}

func mustGet[T any](p interface{ FallibleGet() (T, error) }) T {
	v, err := p.FallibleGet()
	if err != nil {
		var perr *ProviderError
		if !errors.As(err, &perr) {
			perr = &ProviderError{Message: "provider failed", Err: err}
		}
		panic(perr)
	}
	return v
}

func missingMessage[T any](p interface{ FallibleGet() (T, error) }) string {
	if _, err := p.FallibleGet(); err != nil {
		return err.Error()
	}
	return ""
}
