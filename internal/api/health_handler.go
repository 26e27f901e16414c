package api

import (
	"context"
	"net/http"
	"time"

	"github.com/phrazzld/dispatch/internal/api/shared"
	"github.com/phrazzld/dispatch/internal/platform/storage"
)

const healthPingTimeout = 2 * time.Second

// HealthHandler reports liveness and the active command store.
type HealthHandler struct {
	store *storage.Setup
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(setup *storage.Setup) *HealthHandler {
	if setup == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("storage setup cannot be nil for HealthHandler")
	}
	return &HealthHandler{store: setup}
}

// Health handles GET /health. A durable store that stops answering is
// reported as degraded with 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		StoreMode:   string(h.store.Mode),
		StoreReason: h.store.Reason,
		Durable:     h.store.Durable(),
	}
	status := http.StatusOK

	if h.store.Durable() {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		resp.Database = "ok"
		if err := h.store.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	shared.RespondWithData(w, r, status, resp)
}
