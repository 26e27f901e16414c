package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("some error"), false},
		{"ErrNotFound", ErrNotFound, true},
		{"ErrCommandNotFound", ErrCommandNotFound, true},
		{"wrapped ErrCommandNotFound", fmt.Errorf("failed to start: %w", ErrCommandNotFound), true},
		{"conflict", NewConflictError(domain.TransitionStart, domain.CommandStatusCompleted), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, IsNotFoundError(tc.err))
		})
	}
}

func TestConflictError(t *testing.T) {
	t.Parallel()

	err := NewConflictError(domain.TransitionComplete, domain.CommandStatusConfirmed)

	assert.Equal(t, "cannot complete: current status is 'confirmed', expected 'in_progress'", err.Error())
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)

	var target *ConflictError
	assert.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &target)
	assert.Equal(t, domain.CommandStatusInProgress, target.Expected)
}

func TestIsRaceLoss(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRaceLoss(ErrCommandNotFound))
	assert.True(t, IsRaceLoss(NewConflictError(domain.TransitionStart, domain.CommandStatusInProgress)))
	assert.False(t, IsRaceLoss(errors.New("connection reset")))
	assert.False(t, IsRaceLoss(NewStoreError("command", "start", "failed to update command", errors.New("boom"))))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")

	t.Run("with wrapped error", func(t *testing.T) {
		t.Parallel()
		err := NewStoreError("command", "start", "failed to update command", cause)
		assert.Equal(t, "start operation on command failed: failed to update command: connection reset", err.Error())
		assert.ErrorIs(t, err, cause)
	})

	t.Run("without wrapped error", func(t *testing.T) {
		t.Parallel()
		err := NewStoreError("command", "list", "invalid cursor", nil)
		assert.Equal(t, "list operation on command failed: invalid cursor", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("errors.As", func(t *testing.T) {
		t.Parallel()
		var target *StoreError
		err := fmt.Errorf("outer: %w", NewStoreError("command", "create", "failed to insert command", ErrNotFound))
		assert.ErrorAs(t, err, &target)
		assert.Equal(t, "create", target.Operation)
		assert.True(t, IsNotFoundError(err))
	})
}
