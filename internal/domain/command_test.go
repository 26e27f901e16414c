package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommand(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("requires confirmation starts pending with default prompt", func(t *testing.T) {
		t.Parallel()

		cmd, err := NewCommand(CreateCommandInput{
			Title:                "  Recalculate payroll  ",
			RequiresConfirmation: true,
		}, now)

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, cmd.ID)
		assert.Equal(t, CommandStatusPendingConfirmation, cmd.Status)
		assert.Equal(t, "Recalculate payroll", cmd.Title)
		assert.Equal(t, DefaultSource, cmd.Source)
		assert.Equal(t, DefaultConfirmationPrompt, cmd.ConfirmationPrompt)
		assert.Equal(t, now, cmd.CreatedAt)
		assert.Equal(t, now, cmd.UpdatedAt)
		assert.True(t, cmd.ConfirmedAt.IsZero())
	})

	t.Run("no confirmation starts confirmed without prompt", func(t *testing.T) {
		t.Parallel()

		cmd, err := NewCommand(CreateCommandInput{
			Title:              "Check fridge",
			ConfirmationPrompt: "ignored",
		}, now)

		require.NoError(t, err)
		assert.Equal(t, CommandStatusConfirmed, cmd.Status)
		assert.Empty(t, cmd.ConfirmationPrompt)
	})

	t.Run("keeps caller prompt", func(t *testing.T) {
		t.Parallel()

		cmd, err := NewCommand(CreateCommandInput{
			Title:                "Restart service",
			RequiresConfirmation: true,
			ConfirmationPrompt:   "Really restart?",
		}, now)

		require.NoError(t, err)
		assert.Equal(t, "Really restart?", cmd.ConfirmationPrompt)
	})

	t.Run("ids are unique", func(t *testing.T) {
		t.Parallel()

		a, err := NewCommand(CreateCommandInput{Title: "first"}, now)
		require.NoError(t, err)
		b, err := NewCommand(CreateCommandInput{Title: "second"}, now)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestNewCommandValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input CreateCommandInput
		field string
	}{
		{name: "title too short", input: CreateCommandInput{Title: "ab"}, field: "title"},
		{name: "title blank after trim", input: CreateCommandInput{Title: "    "}, field: "title"},
		{name: "title too long", input: CreateCommandInput{Title: strings.Repeat("x", 241)}, field: "title"},
		{name: "source too long", input: CreateCommandInput{Title: "ok title", Source: strings.Repeat("s", 65)}, field: "source"},
		{name: "details too long", input: CreateCommandInput{Title: "ok title", Details: strings.Repeat("d", 4001)}, field: "details"},
		{name: "prompt too long", input: CreateCommandInput{Title: "ok title", ConfirmationPrompt: strings.Repeat("p", 501)}, field: "confirmationPrompt"},
		{name: "memos query too long", input: CreateCommandInput{Title: "ok title", MemosQuery: strings.Repeat("q", 501)}, field: "memosQuery"},
		{name: "memos context too long", input: CreateCommandInput{Title: "ok title", MemosContext: strings.Repeat("c", 8001)}, field: "memosContext"},
		{name: "created by too long", input: CreateCommandInput{Title: "ok title", CreatedBy: strings.Repeat("u", 121)}, field: "createdBy"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewCommand(tc.input, time.Now())

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	t.Run("length counts characters not bytes", func(t *testing.T) {
		t.Parallel()

		_, err := NewCommand(CreateCommandInput{Title: strings.Repeat("ж", 240)}, time.Now())
		assert.NoError(t, err)
	})
}

func TestTransitionRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transition Transition
		from       CommandStatus
		to         CommandStatus
	}{
		{TransitionConfirm, CommandStatusPendingConfirmation, CommandStatusConfirmed},
		{TransitionReject, CommandStatusPendingConfirmation, CommandStatusRejected},
		{TransitionStart, CommandStatusConfirmed, CommandStatusInProgress},
		{TransitionComplete, CommandStatusInProgress, CommandStatusCompleted},
		{TransitionFail, CommandStatusInProgress, CommandStatusFailed},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.from, tc.transition.From(), string(tc.transition))
		assert.Equal(t, tc.to, tc.transition.To(), string(tc.transition))
		assert.True(t, tc.transition.Valid())
	}
	assert.False(t, Transition("resume").Valid())

	assert.True(t, CommandStatusRejected.Terminal())
	assert.True(t, CommandStatusCompleted.Terminal())
	assert.True(t, CommandStatusFailed.Terminal())
	assert.False(t, CommandStatusConfirmed.Terminal())
}

func TestNormalizeTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		transition Transition
		actor      string
		text       string
		wantActor  string
		wantText   string
	}{
		{"confirm defaults actor", TransitionConfirm, "", "ignored", "unknown", ""},
		{"reject defaults reason", TransitionReject, " operator ", "", "operator", DefaultRejectReason},
		{"start defaults actor", TransitionStart, "", "", "agent", ""},
		{"complete keeps empty result", TransitionComplete, "worker", "", "worker", ""},
		{"fail defaults error", TransitionFail, "", "  ", "agent", DefaultFailureText},
		{"fail keeps text", TransitionFail, "w", " boom ", "w", "boom"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			actor, text, err := NormalizeTransition(tc.transition, tc.actor, tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.wantActor, actor)
			assert.Equal(t, tc.wantText, text)
		})
	}

	t.Run("rejects long actor", func(t *testing.T) {
		t.Parallel()

		_, _, err := NormalizeTransition(TransitionConfirm, strings.Repeat("a", 121), "")
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "actor", verr.Field)
	})

	t.Run("rejects long reason", func(t *testing.T) {
		t.Parallel()

		_, _, err := NormalizeTransition(TransitionReject, "", strings.Repeat("r", 2001))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "reason", verr.Field)
	})

	t.Run("rejects unknown transition", func(t *testing.T) {
		t.Parallel()

		_, _, err := NormalizeTransition("resume", "", "")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestCommandApply(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cmd, err := NewCommand(CreateCommandInput{Title: "Recalculate payroll", RequiresConfirmation: true}, created)
	require.NoError(t, err)
	cmd.Error = "stale"

	confirmed := cmd.Apply(TransitionConfirm, "operator", "", created.Add(time.Minute))
	assert.Equal(t, CommandStatusConfirmed, confirmed.Status)
	assert.Equal(t, "operator", confirmed.ConfirmedBy)
	assert.Empty(t, confirmed.Error)
	assert.Equal(t, CommandStatusPendingConfirmation, cmd.Status, "receiver must not change")

	started := confirmed.Apply(TransitionStart, "worker", "", created.Add(2*time.Minute))
	assert.Equal(t, CommandStatusInProgress, started.Status)
	assert.Equal(t, "worker", started.StartedBy)

	failed := started.Apply(TransitionFail, "worker", "boom", created.Add(3*time.Minute))
	assert.Equal(t, CommandStatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
	assert.Empty(t, failed.Result)

	completed := started.Apply(TransitionComplete, "worker", "done", created.Add(3*time.Minute))
	assert.Equal(t, "done", completed.Result)
	assert.Empty(t, completed.Error)

	rejected := cmd.Apply(TransitionReject, "operator", "no", created.Add(time.Minute))
	assert.Equal(t, CommandStatusRejected, rejected.Status)
	assert.Equal(t, "operator", rejected.ConfirmedBy)
	assert.Equal(t, "no", rejected.Error)

	t.Run("timestamps never go backwards", func(t *testing.T) {
		t.Parallel()

		late := confirmed.Apply(TransitionStart, "worker", "", created.Add(-time.Hour))
		assert.False(t, late.StartedAt.Before(confirmed.ConfirmedAt))
		assert.False(t, late.StartedAt.Before(late.CreatedAt))
	})
}

func TestContextPatch(t *testing.T) {
	t.Parallel()

	query := "  payroll  "
	patch := ContextPatch{MemosQuery: &query}.Normalize()
	require.NoError(t, patch.Validate())
	assert.Equal(t, "payroll", *patch.MemosQuery)
	assert.Nil(t, patch.MemosContext)

	cmd := Command{MemosQuery: "old", MemosContext: "kept"}
	next := cmd.WithContext(patch, time.Now())
	assert.Equal(t, "payroll", next.MemosQuery)
	assert.Equal(t, "kept", next.MemosContext)

	long := strings.Repeat("c", 8001)
	err := ContextPatch{MemosContext: &long}.Validate()
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseCommandStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseCommandStatus(" confirmed ")
	require.NoError(t, err)
	assert.Equal(t, CommandStatusConfirmed, status)

	_, err = ParseCommandStatus("paused")
	assert.ErrorIs(t, err, ErrInvalidCommandStatus)
}
