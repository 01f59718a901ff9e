package model

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is matched by every StateError via errors.Is.
var ErrIllegalTransition = errors.New("illegal state transition")

// ValidationError reports a missing or invalid caller-supplied field.
// It is always caller-correctable and never retried.
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Constraint)
}

// Invalid is shorthand for constructing a ValidationError.
func Invalid(field, constraint string) error {
	return &ValidationError{Field: field, Constraint: constraint}
}

// NotFoundError reports an unknown agent, integration, or revocation id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// StateError reports an operation that is not legal from the record's current state,
// for example approving an integration twice.
type StateError struct {
	Kind string
	ID   string
	From string
	Op   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s from status %q", e.Kind, e.ID, e.Op, e.From)
}

// Is makes errors.Is(err, ErrIllegalTransition) match any StateError.
func (e *StateError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// CollaboratorError wraps a failure of an external collaborator
// (principal catalog, classification registry, metrics sink).
// Callers log it and degrade; it is never fatal.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
