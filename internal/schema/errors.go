package schema

import (
	"errors"
	"fmt"

	"github.com/roach88/anchor/internal/ir"
)

// IntentErrorCode categorizes intent rejections.
type IntentErrorCode string

const (
	// ErrCodeUnknownVerb indicates the verb is not part of the vocabulary.
	ErrCodeUnknownVerb IntentErrorCode = "UNKNOWN_VERB"

	// ErrCodeInvalidArguments indicates the payload failed its verb's schema.
	ErrCodeInvalidArguments IntentErrorCode = "INVALID_ARGUMENTS"
)

// IntentError is returned when an intent cannot be admitted.
type IntentError struct {
	Code    IntentErrorCode
	Verb    ir.Verb
	Message string
}

// Error implements the error interface.
func (e *IntentError) Error() string {
	if e.Verb != "" {
		return fmt.Sprintf("%s: %s (verb=%s)", e.Code, e.Message, e.Verb)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnknownVerb returns true if err is an unknown verb rejection.
// Uses errors.As to handle wrapped errors.
func IsUnknownVerb(err error) bool {
	var ie *IntentError
	if errors.As(err, &ie) {
		return ie.Code == ErrCodeUnknownVerb
	}
	return false
}

// IsInvalidArguments returns true if err is a payload schema rejection.
// Uses errors.As to handle wrapped errors.
func IsInvalidArguments(err error) bool {
	var ie *IntentError
	if errors.As(err, &ie) {
		return ie.Code == ErrCodeInvalidArguments
	}
	return false
}

func unknownVerb(verb ir.Verb) *IntentError {
	return &IntentError{
		Code:    ErrCodeUnknownVerb,
		Verb:    verb,
		Message: fmt.Sprintf("unknown verb %q", string(verb)),
	}
}

func invalidArguments(verb ir.Verb, message string) *IntentError {
	return &IntentError{
		Code:    ErrCodeInvalidArguments,
		Verb:    verb,
		Message: message,
	}
}
