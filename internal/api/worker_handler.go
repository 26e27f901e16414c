package api

import (
	"context"
	"net/http"

	"github.com/phrazzld/dispatch/internal/api/shared"
	"github.com/phrazzld/dispatch/internal/worker"
)

// WorkerController is the part of the worker exposed over HTTP.
type WorkerController interface {
	Status() worker.Status
	RunOnce(ctx context.Context) worker.Status
}

// WorkerHandler reports on and triggers the background worker.
type WorkerHandler struct {
	worker WorkerController
}

// NewWorkerHandler creates a new WorkerHandler.
func NewWorkerHandler(w WorkerController) *WorkerHandler {
	if w == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("worker cannot be nil for WorkerHandler")
	}
	return &WorkerHandler{worker: w}
}

// Status handles GET /api/agent/worker.
func (h *WorkerHandler) Status(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithData(w, r, http.StatusOK, h.worker.Status())
}

// RunOnce handles POST /api/agent/worker/run-once. The tick outlives a
// client disconnect so a started command is always finished.
func (h *WorkerHandler) RunOnce(w http.ResponseWriter, r *http.Request) {
	status := h.worker.RunOnce(context.WithoutCancel(r.Context()))
	shared.RespondWithData(w, r, http.StatusOK, status)
}
