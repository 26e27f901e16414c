package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/phrazzld/dispatch/internal/api/shared"
	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/phrazzld/dispatch/internal/memos"
	"github.com/phrazzld/dispatch/internal/service"
)

// ContextSearcher is the MemOS surface exposed over HTTP.
type ContextSearcher interface {
	Status() memos.Status
	Search(ctx context.Context, query string) memos.SearchResult
}

// MemosHandler serves MemOS status and ad hoc searches.
type MemosHandler struct {
	memos ContextSearcher
}

// NewMemosHandler creates a new MemosHandler.
func NewMemosHandler(m ContextSearcher) *MemosHandler {
	if m == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("memos provider cannot be nil for MemosHandler")
	}
	return &MemosHandler{memos: m}
}

// Status handles GET /api/memos/status.
func (h *MemosHandler) Status(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithData(w, r, http.StatusOK, h.memos.Status())
}

// Search handles POST /api/memos/search.
func (h *MemosHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		invalidBody(w, r, err)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
			domain.NewValidationError("query", "is required and must be at most 500 characters", nil).Error(), err)
		return
	}

	res := h.memos.Search(r.Context(), req.Query)
	if res.Error != "" {
		HandleAPIError(w, r, &service.ContextUnavailableError{Reason: res.Error}, "")
		return
	}
	shared.RespondWithData(w, r, http.StatusOK, res)
}
