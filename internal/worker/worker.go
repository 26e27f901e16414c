package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/dispatch/internal/config"
	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/phrazzld/dispatch/internal/runner"
	"github.com/phrazzld/dispatch/internal/store"
)

// Config controls a Worker.
type Config struct {
	Enabled            bool
	Actor              string
	Interval           time.Duration
	BatchSize          int
	ExecTimeout        time.Duration
	PromptContextChars int
	// StoreMode is echoed in Status.
	StoreMode string
}

// ConfigFrom maps the loaded worker settings onto a Config.
func ConfigFrom(cfg config.WorkerConfig, storeMode string) Config {
	return Config{
		Enabled:            cfg.Enabled,
		Actor:              cfg.Actor,
		Interval:           cfg.Interval,
		BatchSize:          cfg.BatchSize,
		ExecTimeout:        cfg.ExecTimeout,
		PromptContextChars: cfg.PromptContextChars,
		StoreMode:          storeMode,
	}
}

// Status is a snapshot of the worker's configuration and progress.
type Status struct {
	StoreMode          string     `json:"storeMode"`
	Enabled            bool       `json:"enabled"`
	Running            bool       `json:"running"`
	Runner             string     `json:"runner"`
	Actor              string     `json:"actor"`
	IntervalMs         int64      `json:"intervalMs"`
	BatchSize          int        `json:"batchSize"`
	ExecTimeoutMs      int64      `json:"execTimeoutMs"`
	PromptContextChars int        `json:"promptContextChars"`
	LastRunAt          *time.Time `json:"lastRunAt"`
	LastFinishedAt     *time.Time `json:"lastFinishedAt"`
	LastSeen           int        `json:"lastSeen"`
	LastProcessed      int        `json:"lastProcessed"`
	ProcessedTotal     int        `json:"processedTotal"`
	LastError          string     `json:"lastError"`
	RunnerSettings     any        `json:"runnerSettings,omitempty"`
}

type state struct {
	lastRunAt      time.Time
	lastFinishedAt time.Time
	lastSeen       int
	lastProcessed  int
	processedTotal int
	lastError      string
}

// Worker polls for confirmed commands and executes them.
type Worker struct {
	store  store.CommandStore
	runner runner.Runner
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	// active counts ticks currently running.
	active atomic.Int32

	mu       sync.Mutex
	state    state
	inFlight map[uuid.UUID]struct{}

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a Worker. It does nothing until Start or RunOnce is called.
func New(s store.CommandStore, r runner.Runner, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Worker{
		store:    s,
		runner:   r,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "worker")),
		now:      time.Now,
		inFlight: make(map[uuid.UUID]struct{}),
	}
}

// Start runs one tick immediately and then one per interval until ctx is
// done or Stop is called. It is a no-op when the worker is disabled or
// already started.
func (w *Worker) Start(ctx context.Context) {
	if !w.cfg.Enabled {
		w.logger.InfoContext(ctx, "worker disabled")
		return
	}

	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.InfoContext(ctx, "worker started",
		slog.String("runner", w.runner.Name()),
		slog.Duration("interval", w.cfg.Interval),
		slog.Int("batch_size", w.cfg.BatchSize))
}

// Stop cancels the polling loop and waits for the current tick to finish.
// Commands being executed are failed rather than left in progress.
func (w *Worker) Stop() {
	w.lifecycle.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// RunOnce runs a single tick on the caller's goroutine and returns the
// resulting status. It does nothing when the worker is disabled.
func (w *Worker) RunOnce(ctx context.Context) Status {
	if w.cfg.Enabled {
		w.tick(ctx)
	}
	return w.Status()
}

// Status returns a snapshot of the worker state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	st := w.state
	w.mu.Unlock()

	status := Status{
		StoreMode:          w.cfg.StoreMode,
		Enabled:            w.cfg.Enabled,
		Running:            w.active.Load() > 0,
		Runner:             w.runner.Name(),
		Actor:              w.cfg.Actor,
		IntervalMs:         w.cfg.Interval.Milliseconds(),
		BatchSize:          w.cfg.BatchSize,
		ExecTimeoutMs:      w.cfg.ExecTimeout.Milliseconds(),
		PromptContextChars: w.cfg.PromptContextChars,
		LastRunAt:          timePtr(st.lastRunAt),
		LastFinishedAt:     timePtr(st.lastFinishedAt),
		LastSeen:           st.lastSeen,
		LastProcessed:      st.lastProcessed,
		ProcessedTotal:     st.processedTotal,
		LastError:          st.lastError,
	}
	if reporter, ok := w.runner.(runner.SettingsReporter); ok {
		status.RunnerSettings = reporter.Settings()
	}
	return status
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.scheduledTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scheduledTick(ctx)
		}
	}
}

// scheduledTick skips outright while any tick, scheduled or manual, runs.
func (w *Worker) scheduledTick(ctx context.Context) {
	if w.active.Load() > 0 {
		w.logger.DebugContext(ctx, "previous tick still running, skipping")
		return
	}
	w.tick(ctx)
}

func (w *Worker) tick(ctx context.Context) {
	w.active.Add(1)
	defer w.active.Add(-1)

	w.mu.Lock()
	w.state.lastRunAt = w.now()
	w.state.lastError = ""
	w.mu.Unlock()

	seen, processed := 0, 0
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "worker tick panicked", slog.Any("panic", r))
			w.recordError(fmt.Errorf("worker tick panicked: %v", r))
		}
		w.mu.Lock()
		w.state.lastSeen = seen
		w.state.lastProcessed = processed
		w.state.lastFinishedAt = w.now()
		w.mu.Unlock()
	}()

	queue, err := w.store.List(ctx, store.ListOptions{
		Status: domain.CommandStatusConfirmed,
		Limit:  w.cfg.BatchSize,
		Oldest: true,
	})
	if err != nil {
		w.recordError(fmt.Errorf("failed to list confirmed commands: %w", err))
		return
	}
	seen = len(queue)

	for _, cmd := range queue {
		if ctx.Err() != nil {
			return
		}
		if !w.claim(cmd.ID) {
			continue
		}
		if w.process(ctx, cmd.ID) {
			processed++
		}
	}
}

// claim adds id to the in-flight set, reporting false if already present.
func (w *Worker) claim(id uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[id]; busy {
		return false
	}
	w.inFlight[id] = struct{}{}
	return true
}

func (w *Worker) release(id uuid.UUID) {
	w.mu.Lock()
	delete(w.inFlight, id)
	w.mu.Unlock()
}

// process starts, executes and finishes one claimed command. It reports
// whether this worker started it.
func (w *Worker) process(ctx context.Context, id uuid.UUID) bool {
	defer w.release(id)
	log := w.logger.With(slog.String("command_id", id.String()))

	started, err := w.store.Start(ctx, id, w.cfg.Actor)
	if err != nil {
		if store.IsRaceLoss(err) {
			log.DebugContext(ctx, "command taken by another caller", slog.String("reason", err.Error()))
			return false
		}
		log.ErrorContext(ctx, "failed to start command", slog.String("error", err.Error()))
		w.recordError(fmt.Errorf("failed to start command %s: %w", id, err))
		return false
	}

	w.mu.Lock()
	w.state.processedTotal++
	w.mu.Unlock()

	res := w.execute(ctx, started)

	// The outcome must be recorded even when ctx was cancelled mid-run.
	finishCtx := context.WithoutCancel(ctx)
	if res.OK {
		_, err = w.store.Complete(finishCtx, id, w.cfg.Actor, res.Text)
	} else {
		_, err = w.store.Fail(finishCtx, id, w.cfg.Actor, res.Text)
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to record command outcome",
			slog.Bool("ok", res.OK), slog.String("error", err.Error()))
		w.recordError(fmt.Errorf("failed to record outcome of command %s: %w", id, err))
		return true
	}

	log.InfoContext(ctx, "command processed", slog.Bool("ok", res.OK))
	return true
}

// execute calls the runner under the execution timeout, turning a panic
// into a failed result.
func (w *Worker) execute(ctx context.Context, cmd domain.Command) (res runner.Result) {
	execCtx := ctx
	if w.cfg.ExecTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, w.cfg.ExecTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "runner panicked",
				slog.String("command_id", cmd.ID.String()), slog.Any("panic", r))
			res = runner.Result{OK: false, Text: fmt.Sprintf("runner panicked: %v", r)}
		}
	}()

	res = w.runner.Execute(execCtx, cmd)
	if !res.OK && res.Text == "" {
		res.Text = domain.DefaultFailureText
	}
	return res
}

func (w *Worker) recordError(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	w.state.lastError = err.Error()
	w.mu.Unlock()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
