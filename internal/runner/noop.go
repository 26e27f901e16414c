package runner

import (
	"context"
	"fmt"

	"github.com/phrazzld/dispatch/internal/clip"
	"github.com/phrazzld/dispatch/internal/config"
	"github.com/phrazzld/dispatch/internal/domain"
)

// Noop acknowledges commands without executing them.
type Noop struct{}

// NewNoop returns a Noop runner.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Name() string { return config.RunnerNoop }

func (*Noop) Execute(_ context.Context, cmd domain.Command) Result {
	text := fmt.Sprintf(
		"NOOP worker processed command %s (%s). Set the worker runner to openclaw for live execution.",
		cmd.ID, cmd.Title,
	)
	return Result{OK: true, Text: clip.Text(text, MaxResultChars)}
}
