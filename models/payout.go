package models

import (
	"time"
)

// PayoutStatus represents the state of a payout
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusCompleted PayoutStatus = "completed"
	PayoutStatusFailed    PayoutStatus = "failed"
)

// Payout represents the transfer of a cycle's collected funds to its
// recipient. At most one completed payout exists per cycle; a completed
// payout is immutable.
type Payout struct {
	ID             int64        `db:"id"`
	CycleID        int64        `db:"cycle_id"`
	FundID         int64        `db:"fund_id"`
	MemberID       int64        `db:"member_id"`
	Amount         int64        `db:"amount"`
	Reference      string       `db:"reference"`
	TransactionRef *string      `db:"transaction_ref"`
	Status         PayoutStatus `db:"status"`
	ErrorDetail    *string      `db:"error_detail"`
	CreatedAt      time.Time    `db:"created_at"`
	CompletedAt    *time.Time   `db:"completed_at"`
}

// IsCompleted checks if the payout has been confirmed by the gateway
func (p *Payout) IsCompleted() bool {
	return p.Status == PayoutStatusCompleted
}
