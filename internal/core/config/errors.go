// Package config contains the resolution core for deployment documents:
// variable resolution, template rendering, conditional restrictions and the
// module registry. This is part of the Functional Core - all functions are
// pure, file access happens behind the Helper interface.
package config

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Document structure errors
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrNotMapping       = errors.New("config root must be a mapping")
	ErrEntityNotMapping = errors.New("entity must be a mapping")
	ErrMissingType      = errors.New("entity has no type")
	ErrUnknownType      = errors.New("unknown entity type")
	ErrInvalidConfig    = errors.New("invalid entity configuration")

	// Variable errors
	ErrMissingVariable    = errors.New("missing required variable")
	ErrValueNotAllowed    = errors.New("variable value not allowed")
	ErrUnresolvedVariable = errors.New("unresolved variable in template")

	// Include errors
	ErrIncludeCollision = errors.New("include key collision")

	// Module errors
	ErrUnknownModule = errors.New("unknown module")

	// Dependency errors
	ErrUnknownDependency = errors.New("unknown dependency")
)

// Error marks a failure caused by the deployment configuration itself, as
// opposed to a programming fault or an unreachable platform. Callers can
// test for it with IsConfigurationError and match the underlying cause with
// errors.Is.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "configuration error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with a formatted message wrapping cause.
// cause may be nil when no sentinel applies.
func NewError(cause error, format string, args ...any) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

// IsConfigurationError reports whether err originates from the deployment
// configuration rather than from the tool or the platform.
func IsConfigurationError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
