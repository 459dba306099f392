package domain

import (
	"errors"
	"fmt"
)

// The engine's error taxonomy. Handlers map these onto HTTP status codes;
// the orchestrator uses them to decide whether a failure is retryable or
// should degrade gracefully.

// ValidationError indicates malformed or missing request parameters.
// Rejected synchronously, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a named field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// NewNotFoundError creates a not-found error for an entity/id pair.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError indicates a calendar insert lost the overlap race. This is an
// expected outcome under concurrent booking, not a system fault; the caller
// retries against a different slot.
type ConflictError struct {
	MusicianID string
	Window     TimeWindow
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("musician %q already booked in [%s, %s)",
		e.MusicianID, e.Window.Start.Format("2006-01-02 15:04"), e.Window.End.Format("2006-01-02 15:04"))
}

// NewConflictError creates a conflict error for a musician/window pair.
func NewConflictError(musicianID string, window TimeWindow) error {
	return &ConflictError{MusicianID: musicianID, Window: window}
}

// DependencyError wraps an underlying store read/write failure. Non-critical
// reads degrade to defaults; critical writes propagate this to the caller.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// NewDependencyError wraps err as a failure of the named dependency.
func NewDependencyError(dependency string, err error) error {
	return &DependencyError{Dependency: dependency, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsDependency reports whether err is a DependencyError.
func IsDependency(err error) bool {
	var target *DependencyError
	return errors.As(err, &target)
}

// HTTPStatus maps a taxonomy error onto its HTTP status code. Unrecognized
// errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case IsValidation(err):
		return 400
	case IsNotFound(err):
		return 404
	case IsConflict(err):
		return 409
	case IsDependency(err):
		return 502
	default:
		return 500
	}
}
