package services

import (
	"errors"
	"fmt"

	"irb-review-api/models"
)

// AuthorizationError is returned when the acting user holds none of the
// roles a workflow operation requires. Controllers map it to 403.
type AuthorizationError struct {
	Action string
	UserID int
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("user %d is not allowed to %s: %s", e.UserID, e.Action, e.Reason)
	}
	return fmt.Sprintf("user %d is not allowed to %s", e.UserID, e.Action)
}

// InvalidStateTransitionError is returned when a requested event has no
// row in the transition table for the submission's current status, or a
// transition guard fails. Controllers map it to 409.
type InvalidStateTransitionError struct {
	SubmissionID int
	From         models.SubmissionStatus
	Event        string
	Reason       string
}

func (e *InvalidStateTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("submission %d: cannot %s from status %q: %s", e.SubmissionID, e.Event, e.From, e.Reason)
	}
	return fmt.Sprintf("submission %d: cannot %s from status %q", e.SubmissionID, e.Event, e.From)
}

// ValidationError reports invalid input. When the problem is tied to a
// questionnaire answer, QuestionID identifies the offending question so
// the client can focus the field. Controllers map it to 400.
type ValidationError struct {
	Field      string
	QuestionID int
	Message    string
}

func (e *ValidationError) Error() string {
	switch {
	case e.QuestionID != 0:
		return fmt.Sprintf("question %d: %s", e.QuestionID, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	default:
		return e.Message
	}
}

// StaleStateConflictError is returned when an optimistic lock-version
// check fails, i.e. another request mutated the submission between our
// read and our write. The caller may re-read and retry. Mapped to 409.
type StaleStateConflictError struct {
	SubmissionID int
}

func (e *StaleStateConflictError) Error() string {
	return fmt.Sprintf("submission %d was modified by a concurrent request, please reload and retry", e.SubmissionID)
}

// ExternalAdapterFailure wraps errors from outbound integrations (the AI
// prefill provider). The workflow itself is never blocked by these; only
// the adapter endpoints surface them, mapped to 502.
type ExternalAdapterFailure struct {
	Provider string
	Err      error
}

func (e *ExternalAdapterFailure) Error() string {
	return fmt.Sprintf("%s adapter failure: %v", e.Provider, e.Err)
}

func (e *ExternalAdapterFailure) Unwrap() error { return e.Err }

// NotFoundError is returned when a referenced entity does not exist or is
// soft-deleted. Controllers map it to 404.
type NotFoundError struct {
	Entity string
	ID     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// IsConflict reports whether err should be answered with HTTP 409.
func IsConflict(err error) bool {
	var st *InvalidStateTransitionError
	var ss *StaleStateConflictError
	return errors.As(err, &st) || errors.As(err, &ss)
}
