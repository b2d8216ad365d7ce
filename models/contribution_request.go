package models

import (
	"time"
)

// RequestStatus represents the state of a contribution request
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusSent      RequestStatus = "sent"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusFailed    RequestStatus = "failed"
	RequestStatusExpired   RequestStatus = "expired"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// requestTransitions is the authoritative transition table for request
// statuses. Completion only ever comes from the reconciliation sweep; the
// push dispatch response is never trusted as proof that funds moved.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:   {RequestStatusSent, RequestStatusCompleted, RequestStatusFailed, RequestStatusExpired, RequestStatusCancelled},
	RequestStatusSent:      {RequestStatusCompleted, RequestStatusFailed, RequestStatusExpired, RequestStatusCancelled},
	RequestStatusFailed:    {RequestStatusSent, RequestStatusCompleted, RequestStatusCancelled},
	RequestStatusCompleted: {},
	RequestStatusExpired:   {},
	RequestStatusCancelled: {},
}

// CanTransitionTo reports whether moving from s to next is a legal transition
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal checks if the status admits no further transitions
func (s RequestStatus) IsTerminal() bool {
	return len(requestTransitions[s]) == 0
}

// ContributionRequest represents one member's push-payment obligation for a
// cycle. At most one request exists per (cycle, member) pair.
type ContributionRequest struct {
	ID             int64         `db:"id"`
	CycleID        int64         `db:"cycle_id"`
	MemberID       int64         `db:"member_id"`
	FundID         int64         `db:"fund_id"`
	Phone          string        `db:"phone"`
	Amount         int64         `db:"amount"`
	CorrelationRef *string       `db:"correlation_ref"`
	AccountNumber  *string       `db:"account_number"`
	AttemptCount   int           `db:"attempt_count"`
	MaxAttempts    int           `db:"max_attempts"`
	Status         RequestStatus `db:"status"`
	ErrorDetail    *string       `db:"error_detail"`
	ReceiptRef     *string       `db:"receipt_ref"`
	SettledAt      *time.Time    `db:"settled_at"`
	CreatedAt      time.Time     `db:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"`
}

// IsCompleted checks if the request has been confirmed settled
func (r *ContributionRequest) IsCompleted() bool {
	return r.Status == RequestStatusCompleted
}

// IsOpen checks if the request can still settle or be retried
func (r *ContributionRequest) IsOpen() bool {
	return !r.Status.IsTerminal()
}

// HasAttemptsLeft checks if another dispatch attempt is allowed
func (r *ContributionRequest) HasAttemptsLeft() bool {
	return r.AttemptCount < r.MaxAttempts
}
