package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/parallel/internal/registry"
)

// RuntimeError represents an error detected while reconciling.
//
// Runtime errors include:
//   - Unmapped event: a trigger names an event outside the known classes
//   - Invalid operation: an intent that cannot apply to the node's kind
//   - Sealed: setup registration after the first flush
//   - Host failure: the external tree rejected a mutation
//
// Identity violations are not RuntimeErrors: the registry panics with
// *registry.IdentityError and nothing recovers it.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Identity is the node's registry index, or -1.
	Identity int

	// Event is the event name, for event errors.
	Event string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeIdentityViolation mirrors registry.CodeIdentityViolation.
	ErrCodeIdentityViolation RuntimeErrorCode = registry.CodeIdentityViolation

	// ErrCodeInvalidOperation indicates an intent the node's kind cannot carry.
	ErrCodeInvalidOperation RuntimeErrorCode = "INVALID_OPERATION"

	// ErrCodeUnmappedEvent indicates an event name outside the known classes.
	ErrCodeUnmappedEvent RuntimeErrorCode = "UNMAPPED_EVENT"

	// ErrCodeHooksSealed indicates registration after setup closed.
	ErrCodeHooksSealed RuntimeErrorCode = "HOOKS_SEALED"

	// ErrCodeHostFailure indicates the host rejected a mutation.
	ErrCodeHostFailure RuntimeErrorCode = "HOST_FAILURE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Identity >= 0 && e.Event != "" {
		msg = fmt.Sprintf("%s (identity=%d, event=%s)", msg, e.Identity, e.Event)
	} else if e.Identity >= 0 {
		msg = fmt.Sprintf("%s (identity=%d)", msg, e.Identity)
	} else if e.Event != "" {
		msg = fmt.Sprintf("%s (event=%s)", msg, e.Event)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnmappedEvent returns true if err is an unmapped event error.
// Uses errors.As to handle wrapped errors.
func IsUnmappedEvent(err error) bool { return hasCode(err, ErrCodeUnmappedEvent) }

// IsSealed returns true if err reports registration after setup closed.
func IsSealed(err error) bool { return hasCode(err, ErrCodeHooksSealed) }

// IsHostFailure returns true if err wraps a host rejection.
func IsHostFailure(err error) bool { return hasCode(err, ErrCodeHostFailure) }

// IsInvalidOperation returns true if err is an invalid operation error.
func IsInvalidOperation(err error) bool { return hasCode(err, ErrCodeInvalidOperation) }

// NewUnmappedEventError creates a RuntimeError for an unknown event name.
func NewUnmappedEventError(name string, identity int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnmappedEvent,
		Message:  "event name is not in any known event class",
		Identity: identity,
		Event:    name,
	}
}

// NewSealedError creates a RuntimeError for late registration of what.
func NewSealedError(what string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeHooksSealed,
		Message:  fmt.Sprintf("cannot register %s after the first flush", what),
		Identity: -1,
	}
}

// NewHostError wraps a host rejection of op on identity.
func NewHostError(op string, identity int, err error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeHostFailure,
		Message:  fmt.Sprintf("host rejected %s", op),
		Identity: identity,
		Err:      err,
	}
}

// NewInvalidOperationError creates a RuntimeError for an intent that does
// not apply to the node.
func NewInvalidOperationError(message string, identity int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeInvalidOperation,
		Message:  message,
		Identity: identity,
	}
}
