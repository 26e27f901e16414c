package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/dispatch/internal/api/shared"
	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/phrazzld/dispatch/internal/service"
	"github.com/phrazzld/dispatch/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking their types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidCommandStatus),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict

	case errors.Is(err, service.ErrContextUnavailable):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err. Validation
// and conflict messages are built from our own types and carry no internals.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErr *domain.ValidationError
	var conflictErr *store.ConflictError
	var contextErr *service.ContextUnavailableError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Error()
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.Is(err, store.ErrCommandNotFound):
		return "Command not found"
	case errors.Is(err, store.ErrNotFound):
		return "Not found"
	case errors.As(err, &conflictErr):
		return conflictErr.Error()
	case errors.As(err, &contextErr):
		return contextErr.Error()
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error envelope for err. A non-empty
// customMessage replaces the derived message for 4xx responses; 5xx
// responses always use the generic message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, customMessage string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if customMessage != "" && status < http.StatusInternalServerError {
		message = customMessage
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// invalidBody reports a body that could not be decoded as JSON.
func invalidBody(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrEmptyBody) {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
}
