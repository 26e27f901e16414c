package runner

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/dispatch/internal/clip"
	"github.com/phrazzld/dispatch/internal/config"
	"github.com/phrazzld/dispatch/internal/domain"
)

const (
	successStderrChars = 1200
	// waitDelay bounds how long Wait blocks on inherited pipes after the
	// process group was killed.
	waitDelay = 5 * time.Second
)

// OpenClaw runs commands through the openclaw agent CLI.
type OpenClaw struct {
	cfg          config.OpenClawConfig
	contextChars int
	logger       *slog.Logger
}

// OpenClawSettings is the effective CLI configuration reported in the worker
// status.
type OpenClawSettings struct {
	Binary     string `json:"binary"`
	Agent      string `json:"agent"`
	Thinking   string `json:"thinking"`
	Local      bool   `json:"local"`
	Deliver    bool   `json:"deliver"`
	To         string `json:"to"`
	SessionID  string `json:"sessionId"`
	TimeoutSec int    `json:"timeoutSec"`
}

// NewOpenClaw returns a runner invoking cfg.Binary. contextChars bounds the
// MemOS context embedded in the prompt.
func NewOpenClaw(cfg config.OpenClawConfig, contextChars int, logger *slog.Logger) *OpenClaw {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenClaw{
		cfg:          cfg,
		contextChars: contextChars,
		logger:       logger.With(slog.String("component", "openclaw_runner")),
	}
}

func (r *OpenClaw) Name() string { return config.RunnerOpenClaw }

func (r *OpenClaw) Settings() any {
	return OpenClawSettings{
		Binary:     r.cfg.Binary,
		Agent:      r.cfg.Agent,
		Thinking:   r.cfg.Thinking,
		Local:      r.cfg.Local,
		Deliver:    r.cfg.Deliver,
		To:         r.cfg.To,
		SessionID:  r.cfg.SessionID,
		TimeoutSec: r.cfg.TimeoutSec,
	}
}

// Args builds the CLI arguments for one prompt.
func (r *OpenClaw) Args(prompt string) []string {
	args := []string{
		"agent", "--json",
		"--agent", r.cfg.Agent,
		"--message", prompt,
		"--thinking", r.cfg.Thinking,
		"--timeout", strconv.Itoa(r.cfg.TimeoutSec),
	}
	if r.cfg.SessionID != "" {
		args = append(args, "--session-id", r.cfg.SessionID)
	}
	if r.cfg.Local {
		args = append(args, "--local")
	}
	if r.cfg.Deliver {
		args = append(args, "--deliver")
	}
	if r.cfg.To != "" {
		args = append(args, "--to", r.cfg.To)
	}
	return args
}

// Execute runs the CLI until it exits or ctx is done. On cancellation the
// whole process group is killed.
func (r *OpenClaw) Execute(ctx context.Context, cmd domain.Command) Result {
	log := r.logger.With(slog.String("command_id", cmd.ID.String()))
	started := time.Now()

	stdout, stderr, err := r.run(ctx, r.Args(BuildPrompt(cmd, r.contextChars)))
	if err != nil {
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			return failed(err.Error())
		}
		log.WarnContext(ctx, "openclaw execution failed",
			slog.Int("exit_code", execErr.ExitCode),
			slog.String("signal", execErr.Signal),
			slog.Bool("timed_out", execErr.TimedOut),
			slog.Duration("elapsed", time.Since(started)))
		return failed(execErr.Diagnostic())
	}

	log.InfoContext(ctx, "openclaw execution finished",
		slog.Int("stdout_bytes", len(stdout)),
		slog.Duration("elapsed", time.Since(started)))

	text := Digest(stdout)
	if errOut := strings.TrimSpace(stderr); errOut != "" {
		text = clip.Text(text+"\n\nstderr:\n"+clip.Text(errOut, successStderrChars), MaxResultChars)
	}
	return Result{OK: true, Text: text}
}

// run executes the binary and returns its captured output. A clean exit
// with blank stdout counts as a failure.
func (r *OpenClaw) run(ctx context.Context, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, r.cfg.Binary, args...)
	stdout := newCappedBuffer(maxStreamBytes)
	stderr := newCappedBuffer(maxStreamBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	runErr := cmd.Run()
	if stdout.truncated || stderr.truncated {
		r.logger.WarnContext(ctx, "openclaw output truncated",
			slog.Int("limit_bytes", maxStreamBytes))
	}

	if runErr == nil {
		if strings.TrimSpace(stdout.String()) == "" {
			return "", "", &ExecutionError{Stderr: stderr.String(), Err: ErrEmptyOutput}
		}
		return stdout.String(), stderr.String(), nil
	}

	execErr := &ExecutionError{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Err:      runErr,
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
		execErr.Signal = exitSignal(exitErr.ProcessState)
	}
	return "", "", execErr
}
