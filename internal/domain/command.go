package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CommandStatus represents the lifecycle state of a command.
type CommandStatus string

// Possible command status values.
const (
	CommandStatusPendingConfirmation CommandStatus = "pending_confirmation"
	CommandStatusConfirmed           CommandStatus = "confirmed"
	CommandStatusRejected            CommandStatus = "rejected"
	CommandStatusInProgress          CommandStatus = "in_progress"
	CommandStatusCompleted           CommandStatus = "completed"
	CommandStatusFailed              CommandStatus = "failed"
)

// CommandStatuses lists every status in lifecycle order.
var CommandStatuses = []CommandStatus{
	CommandStatusPendingConfirmation,
	CommandStatusConfirmed,
	CommandStatusRejected,
	CommandStatusInProgress,
	CommandStatusCompleted,
	CommandStatusFailed,
}

// Valid reports whether s is a known status.
func (s CommandStatus) Valid() bool {
	switch s {
	case CommandStatusPendingConfirmation, CommandStatusConfirmed, CommandStatusRejected,
		CommandStatusInProgress, CommandStatusCompleted, CommandStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves s.
func (s CommandStatus) Terminal() bool {
	return s == CommandStatusRejected || s == CommandStatusCompleted || s == CommandStatusFailed
}

// ParseCommandStatus converts a raw string into a CommandStatus.
func ParseCommandStatus(raw string) (CommandStatus, error) {
	status := CommandStatus(strings.TrimSpace(raw))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommandStatus, raw)
	}
	return status, nil
}

// Transition names one edge of the command state machine.
type Transition string

// The five legal transitions.
const (
	TransitionConfirm  Transition = "confirm"
	TransitionReject   Transition = "reject"
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionFail     Transition = "fail"
)

type transitionRule struct {
	from         CommandStatus
	to           CommandStatus
	defaultActor string
	defaultText  string
	textField    string
	textMax      int
}

var transitionRules = map[Transition]transitionRule{
	TransitionConfirm: {
		from:         CommandStatusPendingConfirmation,
		to:           CommandStatusConfirmed,
		defaultActor: "unknown",
	},
	TransitionReject: {
		from:         CommandStatusPendingConfirmation,
		to:           CommandStatusRejected,
		defaultActor: "unknown",
		defaultText:  DefaultRejectReason,
		textField:    "reason",
		textMax:      2000,
	},
	TransitionStart: {
		from:         CommandStatusConfirmed,
		to:           CommandStatusInProgress,
		defaultActor: "agent",
	},
	TransitionComplete: {
		from:         CommandStatusInProgress,
		to:           CommandStatusCompleted,
		defaultActor: "agent",
		textField:    "result",
		textMax:      4000,
	},
	TransitionFail: {
		from:         CommandStatusInProgress,
		to:           CommandStatusFailed,
		defaultActor: "agent",
		defaultText:  DefaultFailureText,
		textField:    "error",
		textMax:      4000,
	},
}

// Defaults applied when callers leave optional fields empty.
const (
	DefaultSource             = "manual"
	DefaultConfirmationPrompt = "Please confirm this action."
	DefaultRejectReason       = "Rejected by operator."
	DefaultFailureText        = "Execution failed."
)

// From returns the only status the transition may leave.
func (t Transition) From() CommandStatus {
	return transitionRules[t].from
}

// To returns the status the transition produces.
func (t Transition) To() CommandStatus {
	return transitionRules[t].to
}

// Valid reports whether t is one of the five legal transitions.
func (t Transition) Valid() bool {
	_, ok := transitionRules[t]
	return ok
}

// NormalizeTransition trims actor and text, applies the defaults of t and
// checks their bounds.
func NormalizeTransition(t Transition, actor, text string) (string, string, error) {
	rule, ok := transitionRules[t]
	if !ok {
		return "", "", NewValidationError("transition", fmt.Sprintf("%q is not supported", t), nil)
	}

	actor = strings.TrimSpace(actor)
	if err := validate.Var(actor, "max=120"); err != nil {
		return "", "", validationErrorFrom("actor", err)
	}
	if actor == "" {
		actor = rule.defaultActor
	}

	if rule.textField == "" {
		return actor, "", nil
	}
	text = strings.TrimSpace(text)
	if err := validate.Var(text, fmt.Sprintf("max=%d", rule.textMax)); err != nil {
		return "", "", validationErrorFrom(rule.textField, err)
	}
	if text == "" {
		text = rule.defaultText
	}
	return actor, text, nil
}

// Command is a unit of work requested of the agent. It holds only value
// fields, so a copy is an independent snapshot. Unset timestamps are zero.
type Command struct {
	ID                   uuid.UUID
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Source               string
	Title                string
	Details              string
	Status               CommandStatus
	RequiresConfirmation bool
	ConfirmationPrompt   string
	MemosQuery           string
	MemosContext         string
	CreatedBy            string
	ConfirmedBy          string
	ConfirmedAt          time.Time
	StartedBy            string
	StartedAt            time.Time
	FinishedBy           string
	FinishedAt           time.Time
	Result               string
	Error                string
}

// CreateCommandInput carries the caller-supplied fields of a new command.
type CreateCommandInput struct {
	Source               string `json:"source" validate:"min=1,max=64"`
	Title                string `json:"title" validate:"min=3,max=240"`
	Details              string `json:"details" validate:"max=4000"`
	RequiresConfirmation bool   `json:"requiresConfirmation"`
	ConfirmationPrompt   string `json:"confirmationPrompt" validate:"max=500"`
	MemosQuery           string `json:"memosQuery" validate:"max=500"`
	MemosContext         string `json:"memosContext" validate:"max=8000"`
	CreatedBy            string `json:"createdBy" validate:"max=120"`
}

// Normalize returns a copy with every text field trimmed and an empty source
// replaced by DefaultSource.
func (in CreateCommandInput) Normalize() CreateCommandInput {
	in.Source = strings.TrimSpace(in.Source)
	if in.Source == "" {
		in.Source = DefaultSource
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Details = strings.TrimSpace(in.Details)
	in.ConfirmationPrompt = strings.TrimSpace(in.ConfirmationPrompt)
	in.MemosQuery = strings.TrimSpace(in.MemosQuery)
	in.MemosContext = strings.TrimSpace(in.MemosContext)
	in.CreatedBy = strings.TrimSpace(in.CreatedBy)
	return in
}

// Validate checks the input bounds. Call Normalize first.
func (in CreateCommandInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return validationErrorFrom("", err)
	}
	return nil
}

// NewCommand validates in and builds a new Command stamped with now. Commands
// that require confirmation start pending; the rest start confirmed.
func NewCommand(in CreateCommandInput, now time.Time) (Command, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return Command{}, err
	}

	status := CommandStatusConfirmed
	prompt := ""
	if in.RequiresConfirmation {
		status = CommandStatusPendingConfirmation
		prompt = in.ConfirmationPrompt
		if prompt == "" {
			prompt = DefaultConfirmationPrompt
		}
	}

	now = now.UTC()
	return Command{
		ID:                   uuid.New(),
		CreatedAt:            now,
		UpdatedAt:            now,
		Source:               in.Source,
		Title:                in.Title,
		Details:              in.Details,
		Status:               status,
		RequiresConfirmation: in.RequiresConfirmation,
		ConfirmationPrompt:   prompt,
		MemosQuery:           in.MemosQuery,
		MemosContext:         in.MemosContext,
		CreatedBy:            in.CreatedBy,
	}, nil
}

// Apply returns the command after transition t performed by actor at now.
// It does not check the current status; stores compare c.Status with
// t.From() under their own guard before calling it. actor and text must
// already be normalized with NormalizeTransition.
func (c Command) Apply(t Transition, actor, text string, now time.Time) Command {
	at := now.UTC()
	if latest := c.latestStamp(); at.Before(latest) {
		at = latest
	}

	next := c
	next.Status = t.To()
	next.UpdatedAt = at
	switch t {
	case TransitionConfirm:
		next.ConfirmedBy, next.ConfirmedAt = actor, at
		next.Error = ""
	case TransitionReject:
		next.ConfirmedBy, next.ConfirmedAt = actor, at
		next.Error = text
	case TransitionStart:
		next.StartedBy, next.StartedAt = actor, at
		next.Error = ""
	case TransitionComplete:
		next.FinishedBy, next.FinishedAt = actor, at
		next.Result = text
		next.Error = ""
	case TransitionFail:
		next.FinishedBy, next.FinishedAt = actor, at
		next.Error = text
	}
	return next
}

func (c Command) latestStamp() time.Time {
	latest := c.CreatedAt
	for _, ts := range []time.Time{c.ConfirmedAt, c.StartedAt, c.FinishedAt} {
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest
}

// ContextPatch is a merge patch for the enrichment fields. Nil fields are
// left untouched.
type ContextPatch struct {
	MemosQuery   *string `json:"memosQuery" validate:"omitempty,max=500"`
	MemosContext *string `json:"memosContext" validate:"omitempty,max=8000"`
}

// Normalize returns a copy with the present fields trimmed.
func (p ContextPatch) Normalize() ContextPatch {
	if p.MemosQuery != nil {
		q := strings.TrimSpace(*p.MemosQuery)
		p.MemosQuery = &q
	}
	if p.MemosContext != nil {
		c := strings.TrimSpace(*p.MemosContext)
		p.MemosContext = &c
	}
	return p
}

// Validate checks the patch bounds.
func (p ContextPatch) Validate() error {
	if err := validate.Struct(p); err != nil {
		return validationErrorFrom("", err)
	}
	return nil
}

// WithContext applies p to c.
func (c Command) WithContext(p ContextPatch, now time.Time) Command {
	if p.MemosQuery != nil {
		c.MemosQuery = *p.MemosQuery
	}
	if p.MemosContext != nil {
		c.MemosContext = *p.MemosContext
	}
	c.UpdatedAt = now.UTC()
	return c
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationErrorFrom converts the first validator failure into a
// ValidationError. field is used for validate.Var checks, which carry no
// field name of their own.
func validationErrorFrom(field string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return NewValidationError(field, err.Error(), nil)
	}

	fe := fieldErrs[0]
	if name := fe.Field(); name != "" {
		field = name
	}
	switch fe.Tag() {
	case "required":
		return NewValidationError(field, "is required", nil)
	case "min":
		return NewValidationError(field, fmt.Sprintf("must be at least %s characters", fe.Param()), nil)
	case "max":
		return NewValidationError(field, fmt.Sprintf("must be at most %s characters", fe.Param()), nil)
	default:
		return NewValidationError(field, "is invalid", nil)
	}
}
