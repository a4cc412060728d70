package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/store"
)

// Service-level sentinel errors. Callers check them with errors.Is; the API
// layer maps each to an HTTP status.
var (
	// ErrEmailTaken indicates registration with an email that already has an account.
	ErrEmailTaken = errors.New("email is already registered")

	// ErrInvalidCredentials indicates a login with an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrBusy indicates a per-entity lock could not be acquired in time.
	// Database timeouts are not ErrBusy.
	ErrBusy = errors.New("resource is busy, retry later")
)

// ServiceError wraps errors from a service operation with context.
type ServiceError struct {
	// Service names the component, e.g. "circle_registry".
	Service string
	// Operation is the operation that failed, e.g. "activate".
	Operation string
	// Message is a human-readable description of the failure.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Service, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Service, e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// newServiceError wraps err after translating store errors into the domain
// taxonomy. It returns nil for a nil err.
func newServiceError(service, operation, message string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{
		Service:   service,
		Operation: operation,
		Message:   message,
		Err:       translateStoreError(err),
	}
}

// translateStoreError maps persistence errors onto domain sentinels while
// keeping the original in the chain.
func translateStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: circle was modified concurrently: %w", domain.ErrInvalidTransition, err)
	case errors.Is(err, store.ErrContributionExists):
		return fmt.Errorf("%w: %w", domain.ErrDuplicateContribution, err)
	case errors.Is(err, store.ErrEmailExists):
		return fmt.Errorf("%w: %w", ErrEmailTaken, err)
	}
	return err
}
