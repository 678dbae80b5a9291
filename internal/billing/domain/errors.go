package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict matches every ConflictError.
	ErrConflict = errors.New("billing: conflict")
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("billing: not found")
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("billing: validation failed")
	// ErrRemote matches every RemoteError.
	ErrRemote = errors.New("billing: remote call failed")
	// ErrInvariant matches every InvariantViolation.
	ErrInvariant = errors.New("billing: invariant violation")
)

// DefaultRemoteMessage is used when the backend supplied no message.
const DefaultRemoteMessage = "request to lounge backend failed"

// ConflictError reports an operation that clashes with current session state.
type ConflictError struct {
	Op     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("billing: %s: conflict: %s", e.Op, e.Reason)
}

// Is makes errors.Is(err, ErrConflict) work.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError reports a missing station, line or session.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("billing: %s not found", e.Resource)
	}
	return fmt.Sprintf("billing: %s %q not found", e.Resource, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) work.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "billing: invalid input: " + e.Reason
	}
	return fmt.Sprintf("billing: invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) work.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RemoteError wraps a failed backend call. Status is zero for transport failures.
type RemoteError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

// NewRemoteError builds a RemoteError, falling back to DefaultRemoteMessage.
func NewRemoteError(op string, status int, message string, cause error) *RemoteError {
	if message == "" {
		message = DefaultRemoteMessage
	}
	return &RemoteError{Op: op, Status: status, Message: message, Err: cause}
}

func (e *RemoteError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("billing: %s: remote status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("billing: %s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RemoteError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRemote) work.
func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// InvariantViolation reports a state that well-formed input can never produce.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "billing: invariant violation: " + e.Reason
}

// Is makes errors.Is(err, ErrInvariant) work.
func (e *InvariantViolation) Is(target error) bool { return target == ErrInvariant }
