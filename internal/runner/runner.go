package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/dispatch/internal/config"
	"github.com/phrazzld/dispatch/internal/domain"
)

// MaxResultChars caps every result or diagnostic text.
const MaxResultChars = 3800

// Result is the outcome of one execution. Text is the result on success and
// the diagnostic on failure.
type Result struct {
	OK   bool
	Text string
}

// Runner executes a single started command. Implementations must honor ctx
// cancellation and always return.
type Runner interface {
	Name() string
	Execute(ctx context.Context, cmd domain.Command) Result
}

// SettingsReporter is implemented by runners that expose their effective
// configuration for status reporting.
type SettingsReporter interface {
	Settings() any
}

// New builds the runner selected by cfg.Worker.Runner.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Runner, error) {
	switch cfg.Worker.Runner {
	case config.RunnerNoop:
		return NewNoop(), nil
	case config.RunnerOpenClaw, "":
		return NewOpenClaw(cfg.OpenClaw, cfg.Worker.PromptContextChars, logger), nil
	case config.RunnerGemini:
		return NewGemini(ctx, cfg.LLM, cfg.Worker.PromptContextChars, logger)
	default:
		return nil, fmt.Errorf("unknown runner %q", cfg.Worker.Runner)
	}
}

func failed(text string) Result {
	if text == "" {
		text = domain.DefaultFailureText
	}
	return Result{OK: false, Text: text}
}
