// Package docerr defines the error classes returned by the document control
// engine. Callers branch on the Kind rather than on message text.
package docerr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind classifies an error.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindPrecondition Kind = "precondition_failed"
	KindConflict     Kind = "conflict"
	KindDependency   Kind = "dependency"
	KindInvalid      Kind = "invalid"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Error is a classified engine error.
type Error struct {
	Kind     Kind   // Error class
	Op       string // Operation that failed (e.g., "registry.CreateDocument")
	Resource string // Resource kind (e.g., "document")
	ID       string // Resource identifier, if known
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Resource != "" {
		msg = fmt.Sprintf("%s %s", e.Resource, msg)
		if e.ID != "" {
			msg = fmt.Sprintf("%s %q %s", e.Resource, e.ID, e.Kind)
		}
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true for conflicts and dependency failures.
func (e *Error) IsRetryable() bool {
	return e.Kind == KindConflict || e.Kind == KindDependency
}

// NotFound returns a not_found error for the given resource.
func NotFound(op, resource, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Resource: resource, ID: id}
}

// Precondition returns a precondition_failed error.
func Precondition(op, resource, id, format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Op: op, Resource: resource, ID: id, Err: fmt.Errorf(format, args...)}
}

// Conflict returns a conflict error.
func Conflict(op, resource, id string, err error) *Error {
	return &Error{Kind: KindConflict, Op: op, Resource: resource, ID: id, Err: err}
}

// Dependency wraps a collaborator failure.
func Dependency(op, dependency string, err error) *Error {
	return &Error{Kind: KindDependency, Op: op, Resource: dependency, Err: err}
}

// Invalid returns an invalid-input error.
func Invalid(op string, err error) *Error {
	return &Error{Kind: KindInvalid, Op: op, Err: err}
}

// KindOf returns the kind of err, or "" if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsPrecondition(err error) bool { return KindOf(err) == KindPrecondition }
func IsConflict(err error) bool     { return KindOf(err) == KindConflict }
func IsDependency(err error) bool   { return KindOf(err) == KindDependency }
func IsInvalid(err error) bool      { return KindOf(err) == KindInvalid }

// IsRetryable reports whether err belongs to a retryable class.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return false
}

// FromDB classifies a store error. Record-not-found becomes not_found and
// unique violations become conflicts; anything else is returned wrapped with
// the operation name and left unclassified.
func FromDB(op, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Op: op, Resource: resource, ID: id, Err: err}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Conflict(op, resource, id, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return Conflict(op, resource, id, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
