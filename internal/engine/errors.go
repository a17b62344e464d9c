package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/anchor/internal/ir"
)

// RuntimeError represents an intent that could not be applied.
//
// Runtime errors include:
//   - Entity not found: Move/ApplyForce/Despawn named a handle with no entity
//   - Invalid intent: the payload failed its verb's schema, or the verb is
//     unknown
//
// A RuntimeError discards exactly one intent; the rest of the tick proceeds.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Verb is the intent's verb.
	Verb ir.Verb

	// Entity is the handle involved, when there is one.
	Entity ir.EntityID

	// Err is the underlying cause (schema errors).
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeEntityNotFound indicates the intent targeted a missing entity.
	ErrCodeEntityNotFound RuntimeErrorCode = "ENTITY_NOT_FOUND"

	// ErrCodeInvalidIntent indicates the verb or payload was rejected.
	ErrCodeInvalidIntent RuntimeErrorCode = "INVALID_INTENT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Entity != 0 {
		return fmt.Sprintf("%s: %s (verb=%s, entity=%s)", e.Code, e.Message, e.Verb, e.Entity)
	}
	return fmt.Sprintf("%s: %s (verb=%s)", e.Code, e.Message, e.Verb)
}

// Unwrap exposes the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsEntityNotFound returns true if err reports a missing entity.
// Uses errors.As to handle wrapped errors.
func IsEntityNotFound(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeEntityNotFound
	}
	return false
}

// IsInvalidIntent returns true if err reports a rejected verb or payload.
// Uses errors.As to handle wrapped errors.
func IsInvalidIntent(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidIntent
	}
	return false
}

// NewEntityNotFoundError creates a RuntimeError for a missing entity.
func NewEntityNotFoundError(verb ir.Verb, id ir.EntityID) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeEntityNotFound,
		Message: "no live entity with this handle",
		Verb:    verb,
		Entity:  id,
	}
}

// NewInvalidIntentError wraps a schema rejection.
func NewInvalidIntentError(verb ir.Verb, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidIntent,
		Message: err.Error(),
		Verb:    verb,
		Err:     err,
	}
}
