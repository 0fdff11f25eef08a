package utils

import (
	"errors"
	"fmt"
)

// ErrKind partitions failures into the classes the API and the schedulers
// treat differently.
type ErrKind string

const (
	ErrKindValidation  ErrKind = "VALIDATION_ERROR"  // malformed caller input, never retried
	ErrKindNotFound    ErrKind = "NOT_FOUND"         // unknown task/draft id
	ErrKindUpstream    ErrKind = "UPSTREAM_UNAVAILABLE" // mailbox/generation/chat provider unreachable
	ErrKindConflict    ErrKind = "CONFLICT"          // chat pull transport rejected a concurrent pull
	ErrKindPersistence ErrKind = "PERSISTENCE_ERROR" // store write failure, in-memory state kept
)

// AppError carries a stable code alongside the underlying error so
// controllers can emit structured payloads instead of raw exception text.
type AppError struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *AppError) Unwrap() error { return e.Err }

func NewValidationError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrKindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrKindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func NewUpstreamError(msg string, err error) *AppError {
	return &AppError{Kind: ErrKindUpstream, Msg: msg, Err: err}
}

func NewConflictError(msg string, err error) *AppError {
	return &AppError{Kind: ErrKindConflict, Msg: msg, Err: err}
}

func NewPersistenceError(msg string, err error) *AppError {
	return &AppError{Kind: ErrKindPersistence, Msg: msg, Err: err}
}

// KindOf extracts the error kind, defaulting to upstream for plain errors.
func KindOf(err error) ErrKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ErrKindUpstream
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrKind) bool {
	return err != nil && KindOf(err) == kind
}
