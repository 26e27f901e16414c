package runner

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/dispatch/internal/config"
	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCommand() domain.Command {
	return domain.Command{
		ID:        uuid.MustParse("3f2504e0-4f89-41d3-9a0c-0305e82c3301"),
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Title:     "Recalculate payroll",
		Status:    domain.CommandStatusInProgress,
	}
}

func TestNoopExecute(t *testing.T) {
	t.Parallel()

	r := NewNoop()
	res := r.Execute(context.Background(), testCommand())

	assert.Equal(t, "noop", r.Name())
	assert.True(t, res.OK)
	assert.Equal(t,
		"NOOP worker processed command 3f2504e0-4f89-41d3-9a0c-0305e82c3301 (Recalculate payroll). "+
			"Set the worker runner to openclaw for live execution.",
		res.Text)
}

func TestNoopExecuteCapsText(t *testing.T) {
	t.Parallel()

	cmd := testCommand()
	cmd.Title = strings.Repeat("x", 5000)

	res := NewNoop().Execute(context.Background(), cmd)

	assert.Len(t, []rune(res.Text), MaxResultChars)
}

func TestNew(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Worker:   config.WorkerConfig{Runner: config.RunnerNoop, PromptContextChars: 3200},
		OpenClaw: config.OpenClawConfig{Binary: "openclaw", Agent: "main", Thinking: "low", TimeoutSec: 240},
	}

	r, err := New(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, config.RunnerNoop, r.Name())

	cfg.Worker.Runner = config.RunnerOpenClaw
	r, err = New(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, config.RunnerOpenClaw, r.Name())
	_, ok := r.(SettingsReporter)
	assert.True(t, ok, "openclaw runner should report settings")

	cfg.Worker.Runner = config.RunnerGemini
	_, err = New(context.Background(), cfg, discardLogger())
	assert.Error(t, err, "gemini without an API key should fail")

	cfg.Worker.Runner = "shell"
	_, err = New(context.Background(), cfg, discardLogger())
	assert.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	t.Run("minimal command", func(t *testing.T) {
		t.Parallel()

		prompt := BuildPrompt(testCommand(), 3200)

		sections := strings.Split(prompt, "\n\n")
		require.Len(t, sections, 4)
		assert.Equal(t, promptIntro, sections[0])
		assert.Equal(t, "Command ID: 3f2504e0-4f89-41d3-9a0c-0305e82c3301", sections[1])
		assert.Equal(t, "Title: Recalculate payroll", sections[2])
		assert.Equal(t, promptResponseFormat, sections[3])
	})

	t.Run("optional sections are clipped independently", func(t *testing.T) {
		t.Parallel()

		cmd := testCommand()
		cmd.Details = strings.Repeat("d", 2500)
		cmd.MemosQuery = strings.Repeat("q", 600)
		cmd.MemosContext = strings.Repeat("c", 1000)

		prompt := BuildPrompt(cmd, 400)

		assert.Contains(t, prompt, "Details:\n"+strings.Repeat("d", 1999)+"…")
		assert.Contains(t, prompt, "MemOS query:\n"+strings.Repeat("q", 499)+"…")
		assert.Contains(t, prompt, "MemOS context:\n"+strings.Repeat("c", 399)+"…")
		assert.True(t, strings.HasSuffix(prompt, promptResponseFormat))
	})
}
