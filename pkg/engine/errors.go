package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/assemble/assemble/pkg/identifier"
)

// ErrorClass groups errors by the phase that produced them.
type ErrorClass string

const (
	// ErrorClassConfiguration covers registration, lookup and graph construction
	// failures. They abort the build before any task runs.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassProvider indicates a lazy value could not be produced.
	ErrorClassProvider ErrorClass = "provider"

	// ErrorClassTask indicates a task action, listener or dependency failed.
	ErrorClassTask ErrorClass = "task"

	// ErrorClassInternal indicates a broken invariant or an I/O failure in the
	// engine itself.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	Class ErrorClass `json:"class"`

	Message string `json:"message"`

	// Code is a stable identifier for programmatic handling.
	Code string `json:"code,omitempty"`

	// Task is the task the error is attributed to, if any.
	Task string `json:"task,omitempty"`

	Operation string `json:"operation,omitempty"`

	Err error `json:"-"`

	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	switch {
	case e.Task != "" && e.Operation != "":
		fmt.Fprintf(&b, " (task=%s, operation=%s)", e.Task, e.Operation)
	case e.Task != "":
		fmt.Fprintf(&b, " (task=%s)", e.Task)
	case e.Operation != "":
		fmt.Fprintf(&b, " (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches on class and code so callers can compare against sentinels
// such as &EngineError{Class: ErrorClassConfiguration, Code: ErrCodeTaskNotFound}.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(code, message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConfiguration, Code: code, Message: message, Err: err}
}

// NewProviderError creates a new provider error.
func NewProviderError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassProvider, Code: ErrCodeProviderMissing, Message: message, Err: err}
}

// NewTaskError creates a new task failure.
func NewTaskError(code, message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTask, Code: code, Message: message, Err: err}
}

// NewInternalError creates a new internal error.
func NewInternalError(code, message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassInternal, Code: code, Message: message, Err: err}
}

// WithTask attributes the error to a task.
func (e *EngineError) WithTask(id identifier.TaskID) *EngineError {
	e.Task = id.String()
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsConfiguration returns true if the error aborted configuration.
func IsConfiguration(err error) bool {
	return hasClass(err, ErrorClassConfiguration)
}

// IsTaskFailure returns true if the error came from a task.
func IsTaskFailure(err error) bool {
	return hasClass(err, ErrorClassTask)
}

// IsProvider returns true if the error came from a missing lazy value.
func IsProvider(err error) bool {
	return hasClass(err, ErrorClassProvider)
}

// HasCode reports whether any EngineError in the chain carries code.
func HasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// CycleError lists the tasks forming a dependency cycle. The first id is
// repeated at the end.
type CycleError struct {
	Cycle []identifier.TaskID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, id := range e.Cycle {
		parts[i] = id.String()
	}
	return "cycle detected: " + strings.Join(parts, " -> ")
}

// Error codes.
const (
	ErrCodeInvalidID        = "INVALID_ID"
	ErrCodeDuplicateTask    = "DUPLICATE_TASK_ID"
	ErrCodeDuplicateProject = "DUPLICATE_PROJECT_ID"
	ErrCodeTaskNotFound     = "TASK_NOT_FOUND"
	ErrCodeAmbiguousTask    = "AMBIGUOUS_TASK"
	ErrCodeConfigureFailed  = "CONFIGURE_FAILED"
	ErrCodeContainerSealed  = "CONTAINER_SEALED"
	ErrCodeCyclicDependency = "CYCLIC_DEPENDENCY"
	ErrCodeProjectNotFound  = "PROJECT_NOT_FOUND"
	ErrCodeProviderMissing  = "PROVIDER_MISSING"
	ErrCodeDependencyFailed = "DEPENDENCY_FAILED"
	ErrCodeListenerFailed   = "LISTENER_FAILED"
	ErrCodeActionFailed     = "ACTION_FAILED"
	ErrCodeCacheIO          = "CACHE_IO"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
