// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidAmount is returned for non-positive or inconsistent currency amounts.
	ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrValidation)

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = fmt.Errorf("%w: invalid ID", ErrValidation)

	// ErrInvalidState is returned when an operation is not allowed in the
	// entity's current lifecycle state.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrInvalidTransition is returned when a requested status change does not
	// match the lifecycle guards, including stale expected versions.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrDuplicateMember is returned when a user joins a circle twice.
	ErrDuplicateMember = errors.New("user is already a member")

	// ErrDuplicateContribution is returned when a member contributes twice in one period.
	ErrDuplicateContribution = errors.New("contribution already recorded for this period")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDivisionUndefined is returned when a ratio is requested against a zero denominator.
	ErrDivisionUndefined = errors.New("division undefined")
)

// ValidationError describes which field failed validation and why.
// It always matches ErrValidation with errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError for field. err may be nil or a
// more specific sentinel such as ErrInvalidAmount.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped sentinel.
func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrValidation
	}
	return e.Err
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
