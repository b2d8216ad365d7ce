package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for state checks callers branch on with errors.Is
var (
	// ErrAlreadyCompleted is returned when retrying a request that has
	// already settled
	ErrAlreadyCompleted = errors.New("contribution request already completed")

	// ErrMaxAttemptsExceeded is returned when a request has exhausted its
	// dispatch attempts
	ErrMaxAttemptsExceeded = errors.New("maximum dispatch attempts exceeded")

	// ErrCollectionIncomplete is returned when distribution is attempted
	// before the cycle's collection target is met
	ErrCollectionIncomplete = errors.New("collection is not complete")

	// ErrInvalidConfiguration is returned when a fund's settings cannot
	// produce a valid cycle
	ErrInvalidConfiguration = errors.New("invalid fund configuration")
)

// ValidationError indicates bad input rejected before any mutation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AuthorizationError indicates a non-admin attempting an admin-only action
type AuthorizationError struct {
	Phone  string
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s is not authorized to %s", e.Phone, e.Action)
}

// NotFoundError indicates a missing fund, cycle, member, request or payout
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// StateConflictError indicates an action attempted against the wrong
// lifecycle state. Carries the current state so callers can report it.
type StateConflictError struct {
	Entity  string
	Current string
	Action  string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s %s in state %s", e.Action, e.Entity, e.Current)
}

// ExternalServiceError wraps a gateway timeout or non-2xx response. It is
// recorded on the affected request or payout and retried, never silently
// dropped.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError indicates a request that failed all allowed attempts
// and now needs explicit admin action
type RetryExhaustedError struct {
	RequestID int64
	Attempts  int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("contribution request %d exhausted %d attempts: %v", e.RequestID, e.Attempts, ErrMaxAttemptsExceeded)
}

// Unwrap lets callers branch on errors.Is(err, ErrMaxAttemptsExceeded)
// without caring which request tripped it
func (e *RetryExhaustedError) Unwrap() error {
	return ErrMaxAttemptsExceeded
}
