package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/dispatch/internal/api/shared"
	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/phrazzld/dispatch/internal/platform/logger"
	"github.com/phrazzld/dispatch/internal/service"
)

// CommandHandler handles command queue requests.
type CommandHandler struct {
	service service.CommandService
	logger  *slog.Logger
}

// NewCommandHandler creates a new CommandHandler.
func NewCommandHandler(svc service.CommandService, logger *slog.Logger) *CommandHandler {
	if svc == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("command service cannot be nil for CommandHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandHandler{
		service: svc,
		logger:  logger.With(slog.String("component", "command_handler")),
	}
}

func (h *CommandHandler) log(r *http.Request) *slog.Logger {
	return logger.FromContextOrDefault(r.Context(), h.logger)
}

// List handles GET /api/agent/commands.
func (h *CommandHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	cmds, err := h.service.List(r.Context(), opts)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list commands")
		return
	}
	shared.RespondWithData(w, r, http.StatusOK, toCommandResponses(cmds))
}

// Create handles POST /api/agent/commands.
func (h *CommandHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCommandRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		invalidBody(w, r, err)
		return
	}

	cmd, meta, err := h.service.Create(r.Context(), req.Input())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	h.log(r).Debug("command created via API",
		slog.String("command_id", cmd.ID.String()),
		slog.String("status", string(cmd.Status)))
	shared.RespondWithData(w, r, http.StatusCreated, CreateCommandResponse{
		Command: toCommandResponse(cmd),
		Memos:   meta,
	})
}

type transitionFunc func(ctx context.Context, id uuid.UUID, req TransitionRequest) (domain.Command, error)

// transition decodes the optional body, runs fn against the path command and
// writes the updated command.
func (h *CommandHandler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := getPathUUID(r, "id")
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}

		var req TransitionRequest
		if err := shared.DecodeOptionalJSON(w, r, &req); err != nil {
			invalidBody(w, r, err)
			return
		}

		cmd, err := fn(r.Context(), id, req)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithData(w, r, http.StatusOK, toCommandResponse(cmd))
	}
}

// Confirm handles POST /api/agent/commands/{id}/confirm.
func (h *CommandHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(func(ctx context.Context, id uuid.UUID, req TransitionRequest) (domain.Command, error) {
		return h.service.Confirm(ctx, id, req.Actor)
	})(w, r)
}

// Reject handles POST /api/agent/commands/{id}/reject.
func (h *CommandHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(func(ctx context.Context, id uuid.UUID, req TransitionRequest) (domain.Command, error) {
		return h.service.Reject(ctx, id, req.Actor, req.Reason)
	})(w, r)
}

// Start handles POST /api/agent/commands/{id}/start.
func (h *CommandHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(func(ctx context.Context, id uuid.UUID, req TransitionRequest) (domain.Command, error) {
		return h.service.Start(ctx, id, req.Actor)
	})(w, r)
}

// Complete handles POST /api/agent/commands/{id}/complete.
func (h *CommandHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(func(ctx context.Context, id uuid.UUID, req TransitionRequest) (domain.Command, error) {
		return h.service.Complete(ctx, id, req.Actor, req.Result)
	})(w, r)
}

// Fail handles POST /api/agent/commands/{id}/fail.
func (h *CommandHandler) Fail(w http.ResponseWriter, r *http.Request) {
	h.transition(func(ctx context.Context, id uuid.UUID, req TransitionRequest) (domain.Command, error) {
		return h.service.Fail(ctx, id, req.Actor, req.failureText())
	})(w, r)
}

// failureText is the text stored as a failed command's error. A blank result
// falls back to the error field.
func (req TransitionRequest) failureText() string {
	if strings.TrimSpace(req.Result) != "" {
		return req.Result
	}
	return req.Error
}

// UpdateContext handles PATCH /api/agent/commands/{id}/context.
func (h *CommandHandler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var patch domain.ContextPatch
	if err := shared.DecodeJSON(w, r, &patch); err != nil {
		invalidBody(w, r, err)
		return
	}

	cmd, err := h.service.UpdateContext(r.Context(), id, patch)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithData(w, r, http.StatusOK, toCommandResponse(cmd))
}

// RefreshContext handles POST /api/agent/commands/{id}/context/refresh.
func (h *CommandHandler) RefreshContext(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req RefreshContextRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		invalidBody(w, r, err)
		return
	}

	cmd, res, err := h.service.RefreshContext(r.Context(), id, req.Query)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithData(w, r, http.StatusOK, RefreshContextResponse{
		Command: toCommandResponse(cmd),
		Memos:   res,
	})
}
