package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/phrazzld/dispatch/internal/store"
)

// ErrContextUnavailable is returned when a context refresh could not reach
// MemOS. The concrete error is a *ContextUnavailableError.
var ErrContextUnavailable = errors.New("memos context unavailable")

// ContextUnavailableError carries the reason a MemOS search failed.
type ContextUnavailableError struct {
	Reason string
}

func (e *ContextUnavailableError) Error() string {
	return "memos context unavailable: " + e.Reason
}

// Is makes errors.Is(err, ErrContextUnavailable) true.
func (e *ContextUnavailableError) Is(target error) bool {
	return target == ErrContextUnavailable
}

// CommandServiceError wraps unexpected failures with the operation that hit them.
type CommandServiceError struct {
	// Operation is the operation that failed (e.g. "create", "confirm").
	Operation string
	// Message is a human-readable description of the error.
	Message string
	// Err is the underlying error.
	Err error
}

func (e *CommandServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("command service %s failed: %s", e.Operation, e.Message)
}

func (e *CommandServiceError) Unwrap() error {
	return e.Err
}

// NewCommandServiceError wraps err unless it is an expected condition, which
// is returned as is.
func NewCommandServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrConflict) ||
		errors.Is(err, ErrContextUnavailable) {
		return err
	}
	return &CommandServiceError{Operation: operation, Message: message, Err: err}
}
