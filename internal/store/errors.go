package store

import (
	"errors"
	"fmt"

	"github.com/phrazzld/dispatch/internal/domain"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a transition is attempted from a status
	// other than its only legal predecessor. Check for it with errors.Is; the
	// concrete error is a *ConflictError.
	ErrConflict = errors.New("status conflict")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrCommandNotFound indicates that the requested command does not exist.
	ErrCommandNotFound = fmt.Errorf("%w: command", ErrNotFound)
)

// ConflictError reports a status precondition failure.
type ConflictError struct {
	Action   domain.Transition
	Current  domain.CommandStatus
	Expected domain.CommandStatus
}

// NewConflictError builds the conflict reported when t finds a record in current.
func NewConflictError(t domain.Transition, current domain.CommandStatus) *ConflictError {
	return &ConflictError{Action: t, Current: current, Expected: t.From()}
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot %s: current status is '%s', expected '%s'", e.Action, e.Current, e.Expected)
}

// Is makes errors.Is(err, ErrConflict) true for any ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsNotFoundError reports whether err is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRaceLoss reports whether err means another caller moved or removed the
// record first. Workers treat it as an expected skip.
func IsRaceLoss(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "command")
	Operation string // The operation that failed (e.g., "create", "start")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
