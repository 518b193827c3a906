// ABOUTME: Errors raised by tool handlers before any upstream call
// ABOUTME: WriteDisabledError gates mutating tools; ValidationError names the bad argument

package tools

import (
	"errors"
	"fmt"
)

var (
	// ErrWriteDisabled matches any *WriteDisabledError via errors.Is.
	ErrWriteDisabled = errors.New("writes disabled")

	// ErrValidation matches any *ValidationError via errors.Is.
	ErrValidation = errors.New("validation error")
)

// WriteDisabledError is returned when a mutating tool runs with writes disabled.
type WriteDisabledError struct {
	Tool string
}

func (e *WriteDisabledError) Error() string {
	return fmt.Sprintf("%s modifies upstream data and writes are disabled; set IDGOV_ENABLE_WRITES=true to allow it", e.Tool)
}

// Is reports whether target is ErrWriteDisabled.
func (e *WriteDisabledError) Is(target error) bool {
	return target == ErrWriteDisabled
}

// ValidationError is a malformed or missing argument.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid arguments: " + e.Reason
	}
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
