package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/phrazzld/dispatch/internal/memos"
	"github.com/phrazzld/dispatch/internal/store"
)

const maxQueryChars = 500

// Enricher supplies MemOS context for commands.
type Enricher interface {
	Enrich(ctx context.Context, in domain.CreateCommandInput) (domain.CreateCommandInput, memos.Meta)
	Search(ctx context.Context, query string) memos.SearchResult
}

// CommandService provides command operations
type CommandService interface {
	// List returns commands matching opts.
	List(ctx context.Context, opts store.ListOptions) ([]domain.Command, error)

	// Create validates input, enriches it with MemOS context and stores it.
	// The returned Meta describes the enrichment, which never fails Create.
	Create(ctx context.Context, input domain.CreateCommandInput) (domain.Command, memos.Meta, error)

	Confirm(ctx context.Context, id uuid.UUID, actor string) (domain.Command, error)
	Reject(ctx context.Context, id uuid.UUID, actor, reason string) (domain.Command, error)
	Start(ctx context.Context, id uuid.UUID, actor string) (domain.Command, error)
	Complete(ctx context.Context, id uuid.UUID, actor, result string) (domain.Command, error)
	Fail(ctx context.Context, id uuid.UUID, actor, text string) (domain.Command, error)

	// UpdateContext patches the MemOS fields of a command.
	UpdateContext(ctx context.Context, id uuid.UUID, patch domain.ContextPatch) (domain.Command, error)

	// RefreshContext searches MemOS with query and stores the query and the
	// rendered context on the command.
	RefreshContext(ctx context.Context, id uuid.UUID, query string) (domain.Command, memos.SearchResult, error)
}

type commandServiceImpl struct {
	store    store.CommandStore
	enricher Enricher
	logger   *slog.Logger
}

// NewCommandService creates a CommandService.
// It returns an error if any of the required dependencies are nil.
func NewCommandService(s store.CommandStore, enricher Enricher, logger *slog.Logger) (CommandService, error) {
	if s == nil {
		return nil, &CommandServiceError{Operation: "create_service", Message: "store cannot be nil"}
	}
	if enricher == nil {
		return nil, &CommandServiceError{Operation: "create_service", Message: "enricher cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &commandServiceImpl{
		store:    s,
		enricher: enricher,
		logger:   logger.With("component", "command_service"),
	}, nil
}

func (s *commandServiceImpl) List(ctx context.Context, opts store.ListOptions) ([]domain.Command, error) {
	cmds, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, NewCommandServiceError("list", "failed to list commands", err)
	}
	return cmds, nil
}

func (s *commandServiceImpl) Create(
	ctx context.Context,
	input domain.CreateCommandInput,
) (domain.Command, memos.Meta, error) {
	input = input.Normalize()
	if err := input.Validate(); err != nil {
		return domain.Command{}, memos.Meta{}, err
	}

	enriched, meta := s.enricher.Enrich(ctx, input)
	if meta.Error != "" {
		s.logger.WarnContext(ctx, "memos enrichment skipped", "error", meta.Error)
	}

	cmd, err := s.store.Create(ctx, enriched)
	if err != nil {
		return domain.Command{}, meta, NewCommandServiceError("create", "failed to store command", err)
	}

	s.logger.InfoContext(ctx, "command created",
		"command_id", cmd.ID,
		"status", cmd.Status,
		"source", cmd.Source,
		"memos_used", meta.Used)
	return cmd, meta, nil
}

func (s *commandServiceImpl) Confirm(ctx context.Context, id uuid.UUID, actor string) (domain.Command, error) {
	cmd, err := s.store.Confirm(ctx, id, actor)
	return s.transitioned(ctx, domain.TransitionConfirm, cmd, err)
}

func (s *commandServiceImpl) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (domain.Command, error) {
	cmd, err := s.store.Reject(ctx, id, actor, reason)
	return s.transitioned(ctx, domain.TransitionReject, cmd, err)
}

func (s *commandServiceImpl) Start(ctx context.Context, id uuid.UUID, actor string) (domain.Command, error) {
	cmd, err := s.store.Start(ctx, id, actor)
	return s.transitioned(ctx, domain.TransitionStart, cmd, err)
}

func (s *commandServiceImpl) Complete(ctx context.Context, id uuid.UUID, actor, result string) (domain.Command, error) {
	cmd, err := s.store.Complete(ctx, id, actor, result)
	return s.transitioned(ctx, domain.TransitionComplete, cmd, err)
}

func (s *commandServiceImpl) Fail(ctx context.Context, id uuid.UUID, actor, text string) (domain.Command, error) {
	cmd, err := s.store.Fail(ctx, id, actor, text)
	return s.transitioned(ctx, domain.TransitionFail, cmd, err)
}

func (s *commandServiceImpl) transitioned(
	ctx context.Context,
	t domain.Transition,
	cmd domain.Command,
	err error,
) (domain.Command, error) {
	if err != nil {
		return domain.Command{}, NewCommandServiceError(string(t), "failed to update command status", err)
	}
	s.logger.InfoContext(ctx, "command status changed",
		"command_id", cmd.ID,
		"transition", t,
		"status", cmd.Status)
	return cmd, nil
}

func (s *commandServiceImpl) UpdateContext(
	ctx context.Context,
	id uuid.UUID,
	patch domain.ContextPatch,
) (domain.Command, error) {
	cmd, err := s.store.UpdateContext(ctx, id, patch)
	if err != nil {
		return domain.Command{}, NewCommandServiceError("update_context", "failed to update command context", err)
	}
	return cmd, nil
}

func (s *commandServiceImpl) RefreshContext(
	ctx context.Context,
	id uuid.UUID,
	query string,
) (domain.Command, memos.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Command{}, memos.SearchResult{}, domain.NewValidationError("query", "is required", nil)
	}
	if utf8.RuneCountInString(query) > maxQueryChars {
		return domain.Command{}, memos.SearchResult{}, domain.NewValidationError("query", "must be at most 500 characters", nil)
	}

	res := s.enricher.Search(ctx, query)
	if res.Error != "" {
		return domain.Command{}, res, &ContextUnavailableError{Reason: res.Error}
	}

	cmd, err := s.store.UpdateContext(ctx, id, domain.ContextPatch{
		MemosQuery:   &res.Query,
		MemosContext: &res.Context,
	})
	if err != nil {
		return domain.Command{}, res, NewCommandServiceError("refresh_context", "failed to store refreshed context", err)
	}
	return cmd, res, nil
}
