package apperror

import (
	"fmt"
	"strings"
)

// PermissionDeniedError is returned when the caller lacks the checked permission.
// It only names the permission that was checked.
type PermissionDeniedError struct {
	UserID     string `json:"user_id,omitempty"`
	Permission string `json:"permission"`
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Permission)
}

// InvalidTransitionError reports a state change that is not legal from the current state.
type InvalidTransitionError struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition for %s: %s -> %s", e.Entity, e.ID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// TerminalStateError reports a mutation attempted on an entity that already reached a
// terminal state. It unwraps to an InvalidTransitionError so callers matching on the
// broader class still see it.
type TerminalStateError struct {
	Entity    string `json:"entity"`
	ID        string `json:"id"`
	State     string `json:"state"`
	Attempted string `json:"attempted"`
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("%s %s is in terminal state %s, cannot move to %s", e.Entity, e.ID, e.State, e.Attempted)
}

func (e *TerminalStateError) Unwrap() error {
	return &InvalidTransitionError{
		Entity: e.Entity,
		ID:     e.ID,
		From:   e.State,
		To:     e.Attempted,
		Reason: "terminal state",
	}
}

// QualityGateError blocks distribution of a batch without an acceptable quality outcome.
type QualityGateError struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("batch %s did not pass the quality gate (status %s)", e.BatchID, e.Status)
}

// OverAllocationError reports portions exceeding their planned ceiling.
type OverAllocationError struct {
	Entity    string `json:"entity"`
	ID        string `json:"id"`
	Requested int    `json:"requested"`
	Limit     int    `json:"limit"`
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("%s %s: %d portions exceed the limit of %d", e.Entity, e.ID, e.Requested, e.Limit)
}

// UnknownPermissionError lists permission names absent from the active catalog.
type UnknownPermissionError struct {
	Names []string `json:"names"`
}

func (e *UnknownPermissionError) Error() string {
	return "unknown permissions: " + strings.Join(e.Names, ", ")
}

type NotFoundError struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// SystemRoleError protects built-in roles from being deleted or emptied.
type SystemRoleError struct {
	Role   string `json:"role"`
	Reason string `json:"reason"`
}

func (e *SystemRoleError) Error() string {
	return fmt.Sprintf("system role %s: %s", e.Role, e.Reason)
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
