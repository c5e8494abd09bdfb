// Package errs defines the typed errors every voucher and assignment operation
// returns. Callers inspect them with errors.As or KindOf and surface the kind
// and its context rather than the raw message.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that only need the category.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindInvalidTransition Kind = "invalid_transition"
	KindAuthorization     Kind = "authorization"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal"
)

// ValidationError reports a missing relation or field, or a bad input value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// InvalidTransitionError reports an action that is illegal for the current status.
type InvalidTransitionError struct {
	Action string
	Status string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s while status is %s", e.Action, e.Status)
}

// AuthorizationError reports an actor who may not perform the action.
type AuthorizationError struct {
	ActorID int64
	Action  string
	Reason  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %d may not %s: %s", e.ActorID, e.Action, e.Reason)
}

// NotFoundError reports a missing voucher, request or person.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Validation builds a ValidationError.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition builds an InvalidTransitionError.
func InvalidTransition(action, status string) error {
	return &InvalidTransitionError{Action: action, Status: status}
}

// Unauthorized builds an AuthorizationError.
func Unauthorized(actorID int64, action, reason string) error {
	return &AuthorizationError{ActorID: actorID, Action: action, Reason: reason}
}

// NotFound builds a NotFoundError.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// KindOf returns the category of err, or KindInternal for anything untyped.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		te *InvalidTransitionError
		ae *AuthorizationError
		ne *NotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &te):
		return KindInvalidTransition
	case errors.As(err, &ae):
		return KindAuthorization
	case errors.As(err, &ne):
		return KindNotFound
	default:
		return KindInternal
	}
}

// Details returns the structured context embedded in a typed error so the
// caller can explain the exact correction needed.
func Details(err error) map[string]interface{} {
	var (
		ve *ValidationError
		te *InvalidTransitionError
		ae *AuthorizationError
		ne *NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		return map[string]interface{}{"field": ve.Field}
	case errors.As(err, &te):
		return map[string]interface{}{"action": te.Action, "status": te.Status}
	case errors.As(err, &ae):
		return map[string]interface{}{"actor_id": ae.ActorID, "action": ae.Action}
	case errors.As(err, &ne):
		return map[string]interface{}{"entity": ne.Entity, "id": ne.ID}
	default:
		return nil
	}
}
