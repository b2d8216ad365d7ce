package models

import (
	"time"
)

// MemberRole represents a member's role within a fund
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// AccountStatus represents whether a member's phone maps to a known system account
type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "active"
	AccountStatusPending AccountStatus = "pending"
)

// Member represents a participant in a fund. Rotation positions within a fund
// are a permutation of 1..N; the position determines payout order.
type Member struct {
	ID                int64         `db:"id"`
	FundID            int64         `db:"fund_id"`
	Phone             string        `db:"phone"`
	Name              string        `db:"name"`
	Role              MemberRole    `db:"role"`
	RotationPosition  int           `db:"rotation_position"`
	AccountStatus     AccountStatus `db:"account_status"`
	TotalContributed  int64         `db:"total_contributed"`
	TotalReceived     int64         `db:"total_received"`
	HasReceivedPayout bool          `db:"has_received_payout"`
	CreatedAt         time.Time     `db:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at"`
}

// IsAdmin checks if the member can perform admin-only fund operations
func (m *Member) IsAdmin() bool {
	return m.Role == MemberRoleAdmin
}

// IsLinked checks if the member has a matching system account
func (m *Member) IsLinked() bool {
	return m.AccountStatus == AccountStatusActive
}
