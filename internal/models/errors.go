package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// ValidationError represents a validation error in models
type ValidationError struct {
	message string
}

// NewValidationError creates a new validation error
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		message: fmt.Sprintf(format, args...),
	}
}

// Error returns the error message
func (e *ValidationError) Error() string {
	return e.message
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports a step or session id that does not exist.
type NotFoundError struct {
	Kind string // "step" or "session"
	ID   string
}

// NewStepNotFound creates a NotFoundError for a diagnostic step id.
func NewStepNotFound(id string) *NotFoundError {
	return &NotFoundError{Kind: "step", ID: id}
}

// NewSessionNotFound creates a NotFoundError for a session id.
func NewSessionNotFound(id string) *NotFoundError {
	return &NotFoundError{Kind: "session", ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DimensionMismatchError is returned when an embedding vector does not have
// the configured dimension. It is fatal for the retrieval call that hit it.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// CollaboratorError wraps a failure of an external service (language model,
// embedding provider). The dialogue layer degrades on it instead of failing.
type CollaboratorError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
