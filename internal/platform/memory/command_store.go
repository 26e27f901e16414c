package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/phrazzld/dispatch/internal/store"
)

type entry struct {
	seq     uint64
	command domain.Command
}

// CommandStore implements store.CommandStore on a mutex-guarded map.
type CommandStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]entry
	seq     uint64
	now     func() time.Time
	logger  *slog.Logger
}

var _ store.CommandStore = (*CommandStore)(nil)

// NewCommandStore creates an empty CommandStore.
func NewCommandStore(logger *slog.Logger) *CommandStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandStore{
		entries: make(map[uuid.UUID]entry),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "memory_command_store")),
	}
}

// List implements store.CommandStore.
func (s *CommandStore) List(ctx context.Context, opts store.ListOptions) ([]domain.Command, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		if opts.Status == "" || e.command.Status == opts.Status {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.command.CreatedAt.Equal(b.command.CreatedAt) {
			if opts.Oldest {
				return a.command.CreatedAt.Before(b.command.CreatedAt)
			}
			return a.command.CreatedAt.After(b.command.CreatedAt)
		}
		if opts.Oldest {
			return a.seq < b.seq
		}
		return a.seq > b.seq
	})

	if len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	cmds := make([]domain.Command, len(matched))
	for i, e := range matched {
		cmds[i] = e.command
	}
	return cmds, nil
}

// Create implements store.CommandStore.
func (s *CommandStore) Create(ctx context.Context, input domain.CreateCommandInput) (domain.Command, error) {
	cmd, err := domain.NewCommand(input, s.now())
	if err != nil {
		return domain.Command{}, err
	}

	s.mu.Lock()
	s.seq++
	s.entries[cmd.ID] = entry{seq: s.seq, command: cmd}
	s.mu.Unlock()

	s.logger.Debug("command created",
		slog.String("command_id", cmd.ID.String()),
		slog.String("status", string(cmd.Status)))
	return cmd, nil
}

// Confirm implements store.CommandStore.
func (s *CommandStore) Confirm(ctx context.Context, id uuid.UUID, actor string) (domain.Command, error) {
	return s.transition(domain.TransitionConfirm, id, actor, "")
}

// Reject implements store.CommandStore.
func (s *CommandStore) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (domain.Command, error) {
	return s.transition(domain.TransitionReject, id, actor, reason)
}

// Start implements store.CommandStore.
func (s *CommandStore) Start(ctx context.Context, id uuid.UUID, actor string) (domain.Command, error) {
	return s.transition(domain.TransitionStart, id, actor, "")
}

// Complete implements store.CommandStore.
func (s *CommandStore) Complete(ctx context.Context, id uuid.UUID, actor, result string) (domain.Command, error) {
	return s.transition(domain.TransitionComplete, id, actor, result)
}

// Fail implements store.CommandStore.
func (s *CommandStore) Fail(ctx context.Context, id uuid.UUID, actor, text string) (domain.Command, error) {
	return s.transition(domain.TransitionFail, id, actor, text)
}

// transition checks and applies t under the write lock.
func (s *CommandStore) transition(t domain.Transition, id uuid.UUID, actor, text string) (domain.Command, error) {
	actor, text, err := domain.NormalizeTransition(t, actor, text)
	if err != nil {
		return domain.Command{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return domain.Command{}, store.ErrCommandNotFound
	}
	if e.command.Status != t.From() {
		return domain.Command{}, store.NewConflictError(t, e.command.Status)
	}

	e.command = e.command.Apply(t, actor, text, s.now())
	s.entries[id] = e

	s.logger.Debug("command transitioned",
		slog.String("command_id", id.String()),
		slog.String("transition", string(t)),
		slog.String("actor", actor))
	return e.command, nil
}

// UpdateContext implements store.CommandStore.
func (s *CommandStore) UpdateContext(ctx context.Context, id uuid.UUID, patch domain.ContextPatch) (domain.Command, error) {
	patch = patch.Normalize()
	if err := patch.Validate(); err != nil {
		return domain.Command{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return domain.Command{}, store.ErrCommandNotFound
	}
	e.command = e.command.WithContext(patch, s.now())
	s.entries[id] = e
	return e.command, nil
}
