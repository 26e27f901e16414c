package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/phrazzld/dispatch/internal/platform/logger"
	"github.com/phrazzld/dispatch/internal/store"
)

const commandColumns = `id, created_at, updated_at, source, title, details, status,
	requires_confirmation, confirmation_prompt, memos_query, memos_context, created_by,
	confirmed_by, confirmed_at, started_by, started_at, finished_by, finished_at,
	result, error`

// transitionSets holds the SET fragment of each transition. $3 is the
// transition time, $4 the actor and $5 the text. The stamped column never
// precedes the stamp of the previous step.
var transitionSets = map[domain.Transition]string{
	domain.TransitionConfirm: `confirmed_by = $4,
		confirmed_at = CASE WHEN $3 < created_at THEN created_at ELSE $3 END,
		error = $5`,
	domain.TransitionReject: `confirmed_by = $4,
		confirmed_at = CASE WHEN $3 < created_at THEN created_at ELSE $3 END,
		error = $5`,
	domain.TransitionStart: `started_by = $4,
		started_at = CASE WHEN $3 < COALESCE(confirmed_at, created_at)
			THEN COALESCE(confirmed_at, created_at) ELSE $3 END,
		error = $5`,
	domain.TransitionComplete: `finished_by = $4,
		finished_at = CASE WHEN $3 < COALESCE(started_at, created_at)
			THEN COALESCE(started_at, created_at) ELSE $3 END,
		result = $5,
		error = ''`,
	domain.TransitionFail: `finished_by = $4,
		finished_at = CASE WHEN $3 < COALESCE(started_at, created_at)
			THEN COALESCE(started_at, created_at) ELSE $3 END,
		error = $5`,
}

// CommandStore implements store.CommandStore on a SQL database.
type CommandStore struct {
	db      store.DBTX
	dialect Dialect
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	lastCreated time.Time
}

var _ store.CommandStore = (*CommandStore)(nil)

// NewCommandStore creates a CommandStore. The schema must already exist;
// see Migrate.
func NewCommandStore(db store.DBTX, dialect Dialect, logger *slog.Logger) *CommandStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandStore{
		db:      db,
		dialect: dialect,
		logger:  logger.With(slog.String("component", "command_store"), slog.String("dialect", string(dialect))),
		now:     time.Now,
	}
}

// stamp returns the current time at column precision.
func (s *CommandStore) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// createdStamp returns a creation time strictly after the previous one
// issued by this store, keeping newest-first listing stable for commands
// created within the same microsecond.
func (s *CommandStore) createdStamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	if !now.After(s.lastCreated) {
		now = s.lastCreated.Add(time.Microsecond)
	}
	s.lastCreated = now
	return now
}

// List implements store.CommandStore.
func (s *CommandStore) List(ctx context.Context, opts store.ListOptions) ([]domain.Command, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + commandColumns + ` FROM agent_commands`
	var args []any
	if opts.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(opts.Status))
	}
	order := "DESC"
	if opts.Oldest {
		order = "ASC"
	}
	query += fmt.Sprintf(` ORDER BY created_at %s LIMIT $%d`, order, len(args)+1)
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		log.Error("failed to list commands", slog.String("error", err.Error()))
		return nil, store.NewStoreError("command", "list", "failed to query commands", MapError(err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn("failed to close rows", slog.String("error", closeErr.Error()))
		}
	}()

	cmds := make([]domain.Command, 0, opts.Limit)
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, store.NewStoreError("command", "list", "failed to scan command", err)
		}
		cmds = append(cmds, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("command", "list", "failed to iterate commands", MapError(err))
	}
	return cmds, nil
}

// Create implements store.CommandStore.
func (s *CommandStore) Create(ctx context.Context, input domain.CreateCommandInput) (domain.Command, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	cmd, err := domain.NewCommand(input, s.createdStamp())
	if err != nil {
		log.Warn("command validation failed during create", slog.String("error", err.Error()))
		return domain.Command{}, err
	}

	query := `INSERT INTO agent_commands (
		id, created_at, updated_at, source, title, details, status, requires_confirmation,
		confirmation_prompt, memos_query, memos_context, created_by
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING ` + commandColumns

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(query),
		cmd.ID,
		s.dialect.timeArg(cmd.CreatedAt),
		s.dialect.timeArg(cmd.UpdatedAt),
		cmd.Source,
		cmd.Title,
		cmd.Details,
		string(cmd.Status),
		cmd.RequiresConfirmation,
		cmd.ConfirmationPrompt,
		cmd.MemosQuery,
		cmd.MemosContext,
		cmd.CreatedBy,
	)
	created, err := scanCommand(row)
	if err != nil {
		log.Error("failed to insert command",
			slog.String("error", err.Error()),
			slog.String("command_id", cmd.ID.String()))
		return domain.Command{}, store.NewStoreError("command", "create", "failed to insert command", MapError(err))
	}

	log.Debug("command created",
		slog.String("command_id", created.ID.String()),
		slog.String("status", string(created.Status)))
	return created, nil
}

// Confirm implements store.CommandStore.
func (s *CommandStore) Confirm(ctx context.Context, id uuid.UUID, actor string) (domain.Command, error) {
	return s.transition(ctx, domain.TransitionConfirm, id, actor, "")
}

// Reject implements store.CommandStore.
func (s *CommandStore) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (domain.Command, error) {
	return s.transition(ctx, domain.TransitionReject, id, actor, reason)
}

// Start implements store.CommandStore.
func (s *CommandStore) Start(ctx context.Context, id uuid.UUID, actor string) (domain.Command, error) {
	return s.transition(ctx, domain.TransitionStart, id, actor, "")
}

// Complete implements store.CommandStore.
func (s *CommandStore) Complete(ctx context.Context, id uuid.UUID, actor, result string) (domain.Command, error) {
	return s.transition(ctx, domain.TransitionComplete, id, actor, result)
}

// Fail implements store.CommandStore.
func (s *CommandStore) Fail(ctx context.Context, id uuid.UUID, actor, text string) (domain.Command, error) {
	return s.transition(ctx, domain.TransitionFail, id, actor, text)
}

// transition runs a single conditional UPDATE restricted to t.From(). When
// no row matches, the record is re-read to tell a missing id from a status
// conflict.
func (s *CommandStore) transition(
	ctx context.Context,
	t domain.Transition,
	id uuid.UUID,
	actor, text string,
) (domain.Command, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	actor, text, err := domain.NormalizeTransition(t, actor, text)
	if err != nil {
		return domain.Command{}, err
	}

	query := `UPDATE agent_commands SET status = $2, updated_at = $3, ` + transitionSets[t] + `
		WHERE id = $1 AND status = $6
		RETURNING ` + commandColumns

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(query),
		id,
		string(t.To()),
		s.dialect.timeArg(s.stamp()),
		actor,
		text,
		string(t.From()),
	)
	cmd, err := scanCommand(row)
	if err == nil {
		log.Debug("command transitioned",
			slog.String("command_id", id.String()),
			slog.String("transition", string(t)),
			slog.String("actor", actor))
		return cmd, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to transition command",
			slog.String("error", err.Error()),
			slog.String("command_id", id.String()),
			slog.String("transition", string(t)))
		return domain.Command{}, store.NewStoreError("command", string(t), "failed to update command", MapError(err))
	}

	current, err := s.get(ctx, id)
	if err != nil {
		return domain.Command{}, err
	}
	return domain.Command{}, store.NewConflictError(t, current.Status)
}

// UpdateContext implements store.CommandStore.
func (s *CommandStore) UpdateContext(ctx context.Context, id uuid.UUID, patch domain.ContextPatch) (domain.Command, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	patch = patch.Normalize()
	if err := patch.Validate(); err != nil {
		return domain.Command{}, err
	}

	query := `UPDATE agent_commands SET
		memos_query = COALESCE($2, memos_query),
		memos_context = COALESCE($3, memos_context),
		updated_at = $4
		WHERE id = $1
		RETURNING ` + commandColumns

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(query),
		id,
		optionalText(patch.MemosQuery),
		optionalText(patch.MemosContext),
		s.dialect.timeArg(s.stamp()),
	)
	cmd, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Command{}, store.ErrCommandNotFound
	}
	if err != nil {
		log.Error("failed to update command context",
			slog.String("error", err.Error()),
			slog.String("command_id", id.String()))
		return domain.Command{}, store.NewStoreError("command", "update_context", "failed to update command", MapError(err))
	}
	return cmd, nil
}

func (s *CommandStore) get(ctx context.Context, id uuid.UUID) (domain.Command, error) {
	query := `SELECT ` + commandColumns + ` FROM agent_commands WHERE id = $1`
	cmd, err := scanCommand(s.db.QueryRowContext(ctx, s.dialect.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Command{}, store.ErrCommandNotFound
	}
	if err != nil {
		return domain.Command{}, store.NewStoreError("command", "get", "failed to read command", MapError(err))
	}
	return cmd, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (domain.Command, error) {
	var (
		cmd                                                      domain.Command
		status                                                   string
		createdAt, updatedAt, confirmedAt, startedAt, finishedAt dbTime
	)
	err := row.Scan(
		&cmd.ID,
		&createdAt,
		&updatedAt,
		&cmd.Source,
		&cmd.Title,
		&cmd.Details,
		&status,
		&cmd.RequiresConfirmation,
		&cmd.ConfirmationPrompt,
		&cmd.MemosQuery,
		&cmd.MemosContext,
		&cmd.CreatedBy,
		&cmd.ConfirmedBy,
		&confirmedAt,
		&cmd.StartedBy,
		&startedAt,
		&cmd.FinishedBy,
		&finishedAt,
		&cmd.Result,
		&cmd.Error,
	)
	if err != nil {
		return domain.Command{}, err
	}

	cmd.Status = domain.CommandStatus(status)
	cmd.CreatedAt = createdAt.Time
	cmd.UpdatedAt = updatedAt.Time
	cmd.ConfirmedAt = confirmedAt.Time
	cmd.StartedAt = startedAt.Time
	cmd.FinishedAt = finishedAt.Time
	return cmd, nil
}

func optionalText(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
