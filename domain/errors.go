package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports a mutation whose input does not match the current
// board state. The state is left unchanged.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Invalidf builds a ValidationError for op.
func Invalidf(op, format string, args ...any) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError reports a failed write to the remote store. It is
// informational only: the local optimistic change is kept.
type PersistenceError struct {
	Entity string
	ID     string
	Fields []string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Entity, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ClassificationFailure reports a drag whose ids could not be resolved to a
// known project, task or column. Callers treat it as a cancelled drag.
type ClassificationFailure struct {
	ActiveID string
	OverID   string
}

func (e *ClassificationFailure) Error() string {
	return fmt.Sprintf("unclassified drag %q over %q", e.ActiveID, e.OverID)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
