package models

import (
	"time"
)

// CycleStatus represents the state of a collection cycle
type CycleStatus string

const (
	CycleStatusCollecting   CycleStatus = "collecting"
	CycleStatusCollected    CycleStatus = "collected"
	CycleStatusDistributing CycleStatus = "distributing"
	CycleStatusCompleted    CycleStatus = "completed"
	CycleStatusCancelled    CycleStatus = "cancelled"
)

// cycleTransitions is the authoritative transition table for cycle statuses.
// Every status write goes through CanTransitionTo. A cycle only ever moves
// forward; a failed payout parks it in distributing for manual resolution
// rather than reopening collection.
var cycleTransitions = map[CycleStatus][]CycleStatus{
	CycleStatusCollecting:   {CycleStatusCollected, CycleStatusCancelled},
	CycleStatusCollected:    {CycleStatusDistributing, CycleStatusCancelled},
	CycleStatusDistributing: {CycleStatusCompleted},
	CycleStatusCompleted:    {},
	CycleStatusCancelled:    {},
}

// CanTransitionTo reports whether moving from s to next is a legal transition
func (s CycleStatus) CanTransitionTo(next CycleStatus) bool {
	for _, allowed := range cycleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal checks if the status admits no further transitions
func (s CycleStatus) IsTerminal() bool {
	return len(cycleTransitions[s]) == 0
}

// Cycle represents one collection-and-payout period of a fund
type Cycle struct {
	ID                int64       `db:"id"`
	FundID            int64       `db:"fund_id"`
	CycleNumber       int         `db:"cycle_number"`
	ExpectedAmount    int64       `db:"expected_amount"`
	CollectedAmount   int64       `db:"collected_amount"`
	PaidCount         int         `db:"paid_count"`
	PendingCount      int         `db:"pending_count"`
	FailedCount       int         `db:"failed_count"`
	RecipientMemberID *int64      `db:"recipient_member_id"`
	Status            CycleStatus `db:"status"`
	StartedAt         time.Time   `db:"started_at"`
	CollectedAt       *time.Time  `db:"collected_at"`
	CompletedAt       *time.Time  `db:"completed_at"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

// IsCollecting checks if the cycle is still accepting contributions
func (c *Cycle) IsCollecting() bool {
	return c.Status == CycleStatusCollecting
}

// IsCollected checks if the cycle is ready for distribution
func (c *Cycle) IsCollected() bool {
	return c.Status == CycleStatusCollected
}

// IsOpen checks if the cycle has not reached a terminal or distributing state
func (c *Cycle) IsOpen() bool {
	return c.Status == CycleStatusCollecting || c.Status == CycleStatusCollected
}

// IsCancelled checks if the cycle was aborted by an admin
func (c *Cycle) IsCancelled() bool {
	return c.Status == CycleStatusCancelled
}

// MeetsTarget reports whether the collected amount satisfies the threshold
// required before distribution. thresholdBps is in basis points of the
// expected amount; 10000 means every shilling must be in.
func (c *Cycle) MeetsTarget(thresholdBps int) bool {
	if c.ExpectedAmount <= 0 {
		return false
	}
	if thresholdBps <= 0 || thresholdBps > 10000 {
		thresholdBps = 10000
	}
	required := (c.ExpectedAmount * int64(thresholdBps)) / 10000
	return c.CollectedAmount >= required
}
