package api

import (
	"time"

	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/phrazzld/dispatch/internal/memos"
)

// CreateCommandRequest is the payload for creating a command. A missing
// requiresConfirmation defaults to true.
type CreateCommandRequest struct {
	Source               string `json:"source"`
	Title                string `json:"title"`
	Details              string `json:"details"`
	RequiresConfirmation *bool  `json:"requiresConfirmation"`
	ConfirmationPrompt   string `json:"confirmationPrompt"`
	MemosQuery           string `json:"memosQuery"`
	MemosContext         string `json:"memosContext"`
	CreatedBy            string `json:"createdBy"`
}

// Input converts the request into a domain input.
func (req CreateCommandRequest) Input() domain.CreateCommandInput {
	requires := true
	if req.RequiresConfirmation != nil {
		requires = *req.RequiresConfirmation
	}
	return domain.CreateCommandInput{
		Source:               req.Source,
		Title:                req.Title,
		Details:              req.Details,
		RequiresConfirmation: requires,
		ConfirmationPrompt:   req.ConfirmationPrompt,
		MemosQuery:           req.MemosQuery,
		MemosContext:         req.MemosContext,
		CreatedBy:            req.CreatedBy,
	}
}

// TransitionRequest is the body of the status transition endpoints. Only the
// field matching the transition is read: reason for reject, result for
// complete and fail. Fail also accepts error as an alias for result.
type TransitionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
	Result string `json:"result"`
	Error  string `json:"error"`
}

// RefreshContextRequest is the body of the context refresh endpoint.
type RefreshContextRequest struct {
	Query string `json:"query"`
}

// SearchRequest is the body of the MemOS search endpoint.
type SearchRequest struct {
	Query string `json:"query" validate:"required,max=500"`
}

// CommandResponse is the wire form of a command. Unset timestamps are null.
type CommandResponse struct {
	ID                   string     `json:"id"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	Source               string     `json:"source"`
	Title                string     `json:"title"`
	Details              string     `json:"details"`
	Status               string     `json:"status"`
	RequiresConfirmation bool       `json:"requiresConfirmation"`
	ConfirmationPrompt   string     `json:"confirmationPrompt"`
	MemosQuery           string     `json:"memosQuery"`
	MemosContext         string     `json:"memosContext"`
	CreatedBy            string     `json:"createdBy"`
	ConfirmedBy          string     `json:"confirmedBy"`
	ConfirmedAt          *time.Time `json:"confirmedAt"`
	StartedBy            string     `json:"startedBy"`
	StartedAt            *time.Time `json:"startedAt"`
	FinishedBy           string     `json:"finishedBy"`
	FinishedAt           *time.Time `json:"finishedAt"`
	Result               string     `json:"result"`
	Error                string     `json:"error"`
}

// CreateCommandResponse carries the new command and what enrichment did.
type CreateCommandResponse struct {
	Command CommandResponse `json:"command"`
	Memos   memos.Meta      `json:"memos"`
}

// RefreshContextResponse carries the updated command and the search outcome.
type RefreshContextResponse struct {
	Command CommandResponse    `json:"command"`
	Memos   memos.SearchResult `json:"memos"`
}

// HealthResponse reports liveness and the active store.
type HealthResponse struct {
	Status      string `json:"status"`
	StoreMode   string `json:"storeMode"`
	StoreReason string `json:"storeReason,omitempty"`
	Durable     bool   `json:"durable"`
	Database    string `json:"database,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toCommandResponse(c domain.Command) CommandResponse {
	return CommandResponse{
		ID:                   c.ID.String(),
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
		Source:               c.Source,
		Title:                c.Title,
		Details:              c.Details,
		Status:               string(c.Status),
		RequiresConfirmation: c.RequiresConfirmation,
		ConfirmationPrompt:   c.ConfirmationPrompt,
		MemosQuery:           c.MemosQuery,
		MemosContext:         c.MemosContext,
		CreatedBy:            c.CreatedBy,
		ConfirmedBy:          c.ConfirmedBy,
		ConfirmedAt:          optionalTime(c.ConfirmedAt),
		StartedBy:            c.StartedBy,
		StartedAt:            optionalTime(c.StartedAt),
		FinishedBy:           c.FinishedBy,
		FinishedAt:           optionalTime(c.FinishedAt),
		Result:               c.Result,
		Error:                c.Error,
	}
}

func toCommandResponses(cmds []domain.Command) []CommandResponse {
	out := make([]CommandResponse, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, toCommandResponse(c))
	}
	return out
}
