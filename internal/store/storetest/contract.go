// Package storetest holds the behavioral contract every store.CommandStore
// backend must satisfy. Backend packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/phrazzld/dispatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.CommandStore

// RunCommandStoreTests runs the full contract against stores built by newStore.
func RunCommandStoreTests(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("create sets initial status", func(t *testing.T) { testCreateStatus(t, newStore(t)) })
	t.Run("create rejects invalid input", func(t *testing.T) { testCreateValidation(t, newStore(t)) })
	t.Run("list orders and limits", func(t *testing.T) { testListOrdering(t, newStore(t)) })
	t.Run("list returns snapshots", func(t *testing.T) { testListSnapshots(t, newStore(t)) })
	t.Run("full lifecycle", func(t *testing.T) { testLifecycle(t, newStore(t)) })
	t.Run("reject stores reason", func(t *testing.T) { testReject(t, newStore(t)) })
	t.Run("fail keeps result", func(t *testing.T) { testFail(t, newStore(t)) })
	t.Run("illegal transitions conflict", func(t *testing.T) { testIllegalTransitions(t, newStore(t)) })
	t.Run("unknown id is not found", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("concurrent transitions have one winner", func(t *testing.T) { testConcurrentTransitions(t, newStore(t)) })
	t.Run("update context merges", func(t *testing.T) { testUpdateContext(t, newStore(t)) })
}

func create(t *testing.T, s store.CommandStore, title string, confirm bool) domain.Command {
	t.Helper()
	cmd, err := s.Create(context.Background(), domain.CreateCommandInput{
		Title:                title,
		Details:              "details for " + title,
		RequiresConfirmation: confirm,
		CreatedBy:            "tester",
	})
	require.NoError(t, err)
	return cmd
}

// Find returns the stored snapshot of id.
func Find(t *testing.T, s store.CommandStore, id uuid.UUID) domain.Command {
	t.Helper()
	cmds, err := s.List(context.Background(), store.ListOptions{Limit: store.MaxListLimit})
	require.NoError(t, err)
	for _, cmd := range cmds {
		if cmd.ID == id {
			return cmd
		}
	}
	t.Fatalf("command %s not found", id)
	return domain.Command{}
}

func testCreateStatus(t *testing.T, s store.CommandStore) {
	pending := create(t, s, "Recalculate payroll", true)
	assert.Equal(t, domain.CommandStatusPendingConfirmation, pending.Status)
	assert.Equal(t, domain.DefaultConfirmationPrompt, pending.ConfirmationPrompt)
	assert.True(t, pending.RequiresConfirmation)
	assert.Equal(t, domain.DefaultSource, pending.Source)
	assert.Equal(t, "tester", pending.CreatedBy)
	assert.False(t, pending.CreatedAt.IsZero())

	direct := create(t, s, "Check fridge", false)
	assert.Equal(t, domain.CommandStatusConfirmed, direct.Status)
	assert.Empty(t, direct.ConfirmationPrompt)
	assert.NotEqual(t, pending.ID, direct.ID)

	stored := Find(t, s, pending.ID)
	assert.Equal(t, pending.Title, stored.Title)
	assert.Equal(t, pending.Status, stored.Status)
}

func testCreateValidation(t *testing.T, s store.CommandStore) {
	_, err := s.Create(context.Background(), domain.CreateCommandInput{Title: "no"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	cmds, err := s.List(context.Background(), store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func testListOrdering(t *testing.T, s store.CommandStore) {
	ctx := context.Background()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		ids = append(ids, create(t, s, fmt.Sprintf("command %d", i), i%2 == 0).ID)
	}

	newest, err := s.List(ctx, store.ListOptions{Limit: 3})
	require.NoError(t, err)
	require.Len(t, newest, 3)
	assert.Equal(t, []uuid.UUID{ids[4], ids[3], ids[2]}, idsOf(newest))
	for i := 1; i < len(newest); i++ {
		assert.False(t, newest[i].CreatedAt.After(newest[i-1].CreatedAt))
	}

	oldest, err := s.List(ctx, store.ListOptions{Limit: 2, Oldest: true})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ids[0], ids[1]}, idsOf(oldest))

	confirmed, err := s.List(ctx, store.ListOptions{Status: domain.CommandStatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ids[3], ids[1]}, idsOf(confirmed))

	_, err = s.List(ctx, store.ListOptions{Limit: store.MaxListLimit + 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func testListSnapshots(t *testing.T, s store.CommandStore) {
	cmd := create(t, s, "Snapshot me", true)

	cmds, err := s.List(context.Background(), store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	cmds[0].Title = "mutated"
	cmds[0].Status = domain.CommandStatusCompleted

	stored := Find(t, s, cmd.ID)
	assert.Equal(t, "Snapshot me", stored.Title)
	assert.Equal(t, domain.CommandStatusPendingConfirmation, stored.Status)
}

func testLifecycle(t *testing.T, s store.CommandStore) {
	ctx := context.Background()
	cmd := create(t, s, "Recalculate payroll", true)

	confirmed, err := s.Confirm(ctx, cmd.ID, "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.CommandStatusConfirmed, confirmed.Status)
	assert.Equal(t, "operator", confirmed.ConfirmedBy)
	assert.False(t, confirmed.ConfirmedAt.Before(confirmed.CreatedAt))

	started, err := s.Start(ctx, cmd.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.CommandStatusInProgress, started.Status)
	assert.Equal(t, "agent", started.StartedBy)
	assert.False(t, started.StartedAt.Before(confirmed.ConfirmedAt))

	completed, err := s.Complete(ctx, cmd.ID, "worker", "done")
	require.NoError(t, err)
	assert.Equal(t, domain.CommandStatusCompleted, completed.Status)
	assert.Equal(t, "done", completed.Result)
	assert.Empty(t, completed.Error)
	assert.Equal(t, "worker", completed.FinishedBy)
	assert.False(t, completed.FinishedAt.Before(started.StartedAt))

	assert.Equal(t, completed.Status, Find(t, s, cmd.ID).Status)
}

func testReject(t *testing.T, s store.CommandStore) {
	ctx := context.Background()
	cmd := create(t, s, "Delete backups", true)

	rejected, err := s.Reject(ctx, cmd.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.CommandStatusRejected, rejected.Status)
	assert.Equal(t, domain.DefaultRejectReason, rejected.Error)
	assert.Equal(t, "unknown", rejected.ConfirmedBy)
	assert.False(t, rejected.ConfirmedAt.IsZero())

	_, err = s.Confirm(ctx, cmd.ID, "operator")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func testFail(t *testing.T, s store.CommandStore) {
	ctx := context.Background()
	cmd := create(t, s, "Send report", false)

	_, err := s.Start(ctx, cmd.ID, "worker")
	require.NoError(t, err)

	failed, err := s.Fail(ctx, cmd.ID, "worker", "boom")
	require.NoError(t, err)
	assert.Equal(t, domain.CommandStatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
	assert.Empty(t, failed.Result)
}

func testIllegalTransitions(t *testing.T, s store.CommandStore) {
	ctx := context.Background()
	cmd := create(t, s, "Recalculate payroll", true)
	before := Find(t, s, cmd.ID)

	calls := map[domain.Transition]func() error{
		domain.TransitionStart: func() error {
			_, err := s.Start(ctx, cmd.ID, "worker")
			return err
		},
		domain.TransitionComplete: func() error {
			_, err := s.Complete(ctx, cmd.ID, "worker", "done")
			return err
		},
		domain.TransitionFail: func() error {
			_, err := s.Fail(ctx, cmd.ID, "worker", "boom")
			return err
		},
	}

	for transition, call := range calls {
		err := call()
		require.Error(t, err, string(transition))
		assert.ErrorIs(t, err, store.ErrConflict)

		var conflict *store.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, transition, conflict.Action)
		assert.Equal(t, domain.CommandStatusPendingConfirmation, conflict.Current)
		assert.Equal(t, transition.From(), conflict.Expected)
		assert.Equal(t,
			fmt.Sprintf("cannot %s: current status is 'pending_confirmation', expected '%s'", transition, transition.From()),
			err.Error())
	}

	assert.Equal(t, before, Find(t, s, cmd.ID))
}

func testNotFound(t *testing.T, s store.CommandStore) {
	ctx := context.Background()
	id := uuid.New()
	query := "q"

	errs := []error{}
	_, err := s.Confirm(ctx, id, "a")
	errs = append(errs, err)
	_, err = s.Reject(ctx, id, "a", "r")
	errs = append(errs, err)
	_, err = s.Start(ctx, id, "a")
	errs = append(errs, err)
	_, err = s.Complete(ctx, id, "a", "r")
	errs = append(errs, err)
	_, err = s.Fail(ctx, id, "a", "r")
	errs = append(errs, err)
	_, err = s.UpdateContext(ctx, id, domain.ContextPatch{MemosQuery: &query})
	errs = append(errs, err)

	for i, err := range errs {
		assert.ErrorIs(t, err, store.ErrNotFound, "call %d", i)
		assert.ErrorIs(t, err, store.ErrCommandNotFound, "call %d", i)
	}
}

func testConcurrentTransitions(t *testing.T, s store.CommandStore) {
	ctx := context.Background()

	prepare := func(t *testing.T, status domain.CommandStatus) uuid.UUID {
		cmd := create(t, s, "race "+string(status), true)
		if status == domain.CommandStatusPendingConfirmation {
			return cmd.ID
		}
		_, err := s.Confirm(ctx, cmd.ID, "operator")
		require.NoError(t, err)
		if status == domain.CommandStatusConfirmed {
			return cmd.ID
		}
		_, err = s.Start(ctx, cmd.ID, "worker")
		require.NoError(t, err)
		return cmd.ID
	}

	calls := map[domain.Transition]func(id uuid.UUID, actor string) (domain.Command, error){
		domain.TransitionConfirm: func(id uuid.UUID, actor string) (domain.Command, error) {
			return s.Confirm(ctx, id, actor)
		},
		domain.TransitionReject: func(id uuid.UUID, actor string) (domain.Command, error) {
			return s.Reject(ctx, id, actor, "no")
		},
		domain.TransitionStart: func(id uuid.UUID, actor string) (domain.Command, error) {
			return s.Start(ctx, id, actor)
		},
		domain.TransitionComplete: func(id uuid.UUID, actor string) (domain.Command, error) {
			return s.Complete(ctx, id, actor, "done by "+actor)
		},
		domain.TransitionFail: func(id uuid.UUID, actor string) (domain.Command, error) {
			return s.Fail(ctx, id, actor, "failed by "+actor)
		},
	}

	const racers = 8
	for transition, call := range calls {
		t.Run(string(transition), func(t *testing.T) {
			id := prepare(t, transition.From())

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				winners []string
				losers  int
			)
			for i := 0; i < racers; i++ {
				actor := fmt.Sprintf("actor-%d", i)
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := call(id, actor)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						winners = append(winners, actor)
						return
					}
					if assert.True(t, store.IsRaceLoss(err), "unexpected error: %v", err) {
						losers++
					}
				}()
			}
			wg.Wait()

			require.Len(t, winners, 1)
			assert.Equal(t, racers-1, losers)

			final := Find(t, s, id)
			assert.Equal(t, transition.To(), final.Status)
			switch transition {
			case domain.TransitionConfirm, domain.TransitionReject:
				assert.Equal(t, winners[0], final.ConfirmedBy)
			case domain.TransitionStart:
				assert.Equal(t, winners[0], final.StartedBy)
			case domain.TransitionComplete:
				assert.Equal(t, winners[0], final.FinishedBy)
				assert.Equal(t, "done by "+winners[0], final.Result)
			case domain.TransitionFail:
				assert.Equal(t, winners[0], final.FinishedBy)
				assert.Equal(t, "failed by "+winners[0], final.Error)
			}
		})
	}
}

func testUpdateContext(t *testing.T, s store.CommandStore) {
	ctx := context.Background()
	cmd := create(t, s, "Plan shifts", true)

	query := "  shifts  "
	updated, err := s.UpdateContext(ctx, cmd.ID, domain.ContextPatch{MemosQuery: &query})
	require.NoError(t, err)
	assert.Equal(t, "shifts", updated.MemosQuery)
	assert.Empty(t, updated.MemosContext)
	assert.Equal(t, domain.CommandStatusPendingConfirmation, updated.Status)

	contextText := "MemOS auto-context"
	updated, err = s.UpdateContext(ctx, cmd.ID, domain.ContextPatch{MemosContext: &contextText})
	require.NoError(t, err)
	assert.Equal(t, "shifts", updated.MemosQuery)
	assert.Equal(t, contextText, updated.MemosContext)

	_, err = s.Reject(ctx, cmd.ID, "operator", "")
	require.NoError(t, err)
	cleared := ""
	updated, err = s.UpdateContext(ctx, cmd.ID, domain.ContextPatch{MemosQuery: &cleared})
	require.NoError(t, err, "terminal records still accept context patches")
	assert.Empty(t, updated.MemosQuery)

	long := fmt.Sprintf("%0501d", 0)
	_, err = s.UpdateContext(ctx, cmd.ID, domain.ContextPatch{MemosQuery: &long})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func idsOf(cmds []domain.Command) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(cmds))
	for _, cmd := range cmds {
		ids = append(ids, cmd.ID)
	}
	return ids
}
