package runner

import (
	"errors"
	"strconv"
	"strings"

	"github.com/phrazzld/dispatch/internal/clip"
)

const diagnosticStreamChars = 1400

// ErrEmptyOutput is reported when the process exits cleanly without
// printing anything.
var ErrEmptyOutput = errors.New("empty output")

// ExecutionError describes a failed external process run.
type ExecutionError struct {
	// ExitCode is the process exit status, or -1 when it did not exit normally.
	ExitCode int
	// Signal names the signal that terminated the process, if any.
	Signal   string
	TimedOut bool
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	return "openclaw execution failed: " + e.cause()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) cause() string {
	switch {
	case e.Signal != "":
		return e.Signal
	case e.ExitCode > 0:
		return strconv.Itoa(e.ExitCode)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "unknown"
	}
}

// Diagnostic renders the failure text stored on the command: the cause,
// clipped stdout and stderr, and a timeout marker, separated by blank lines.
func (e *ExecutionError) Diagnostic() string {
	parts := []string{"OpenClaw execution failed: " + e.cause()}
	if out := strings.TrimSpace(e.Stdout); out != "" {
		parts = append(parts, "stdout:\n"+clip.Text(out, diagnosticStreamChars))
	}
	if errOut := strings.TrimSpace(e.Stderr); errOut != "" {
		parts = append(parts, "stderr:\n"+clip.Text(errOut, diagnosticStreamChars))
	}
	if e.TimedOut {
		parts = append(parts, "process killed by timeout")
	}
	return clip.Text(strings.Join(parts, "\n\n"), MaxResultChars)
}
