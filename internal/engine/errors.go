package engine

import (
	"errors"
	"fmt"

	"talentlink/internal/repo"
)

// ValidationError reports malformed or missing input. The operation was not attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Conflict codes returned when an entity is not in the state an operation needs.
const (
	CodeAlreadyConfirmed   = "already_confirmed"
	CodeAlreadyMarked      = "already_marked"
	CodeNotPending         = "not_pending"
	CodeRequestNotApproved = "request_not_approved"
	CodeRequestLinked      = "request_linked"
)

// ConflictError reports an operation against an entity in the wrong state.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func conflict(code, format string, args ...any) error {
	return &ConflictError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing entity. It matches repo.ErrNotFound with errors.Is.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return repo.ErrNotFound }

// notFound converts repo.ErrNotFound into a NotFoundError and passes other errors through.
func notFound(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return err
}
