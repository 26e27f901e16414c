package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/dispatch/internal/domain"
)

// List limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListOptions filters and orders CommandStore.List.
type ListOptions struct {
	// Status restricts the result to one status. Empty means all.
	Status domain.CommandStatus
	// Limit caps the result. Zero selects DefaultListLimit.
	Limit int
	// Oldest orders by creation time ascending instead of descending.
	Oldest bool
}

// Normalize applies defaults and returns a validation error for a limit
// outside 1..MaxListLimit or an unknown status.
func (o ListOptions) Normalize() (ListOptions, error) {
	if o.Limit == 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit < 1 || o.Limit > MaxListLimit {
		return o, domain.NewValidationError("limit", "must be between 1 and 200", nil)
	}
	if o.Status != "" && !o.Status.Valid() {
		return o, domain.NewValidationError("status", "is not a known command status", nil)
	}
	return o, nil
}

// CommandStore defines the interface for command persistence. Every
// transition is a compare-and-transition on the current status: of two
// callers racing to leave the same record from the same status exactly one
// succeeds and the other gets a *ConflictError.
type CommandStore interface {
	// List returns command snapshots sorted by creation time, newest first
	// unless opts.Oldest is set.
	List(ctx context.Context, opts ListOptions) ([]domain.Command, error)

	// Create validates input and stores a new command.
	// Returns a *domain.ValidationError for out-of-bounds input.
	Create(ctx context.Context, input domain.CreateCommandInput) (domain.Command, error)

	// Confirm moves a pending command to confirmed.
	Confirm(ctx context.Context, id uuid.UUID, actor string) (domain.Command, error)

	// Reject moves a pending command to rejected, storing reason as its error.
	Reject(ctx context.Context, id uuid.UUID, actor, reason string) (domain.Command, error)

	// Start moves a confirmed command to in_progress.
	Start(ctx context.Context, id uuid.UUID, actor string) (domain.Command, error)

	// Complete moves an in-progress command to completed with result.
	Complete(ctx context.Context, id uuid.UUID, actor, result string) (domain.Command, error)

	// Fail moves an in-progress command to failed, storing text as its error.
	Fail(ctx context.Context, id uuid.UUID, actor, text string) (domain.Command, error)

	// UpdateContext merges patch into the enrichment fields regardless of status.
	UpdateContext(ctx context.Context, id uuid.UUID, patch domain.ContextPatch) (domain.Command, error)
}
