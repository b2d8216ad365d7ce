package models

import (
	"time"
)

// Frequency represents how often a fund collects contributions
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyCustom   Frequency = "custom"
	FrequencyOneTime  Frequency = "one_time"
	FrequencyManual   Frequency = "manual"
)

// RotationType represents how the payout recipient order is determined
type RotationType string

const (
	RotationSequential RotationType = "sequential"
	RotationRandom     RotationType = "random"
)

// FundStatus represents the lifecycle state of a fund
type FundStatus string

const (
	FundStatusActive    FundStatus = "active"
	FundStatusCompleted FundStatus = "completed"
)

// Fund represents a rotating group savings pool whose members contribute each
// cycle and take turns receiving the collected amount
type Fund struct {
	ID                     int64        `db:"id"`
	Name                   string       `db:"name"`
	CreatorPhone           string       `db:"creator_phone"`
	Currency               string       `db:"currency"`
	ContributionAmount     int64        `db:"contribution_amount"`
	Frequency              Frequency    `db:"frequency"`
	CustomDays             int          `db:"custom_days"`
	CollectionWeekday      time.Weekday `db:"collection_weekday"`
	RotationType           RotationType `db:"rotation_type"`
	RequireAllBeforePayout bool         `db:"require_all_before_payout"`
	AllowPartialPayment    bool         `db:"allow_partial_payment"`
	CollectionThresholdBps int          `db:"collection_threshold_bps"`
	CurrentCycle           int          `db:"current_cycle"`
	CurrentRotationIndex   int          `db:"current_rotation_index"`
	TotalCycles            *int         `db:"total_cycles"`
	Status                 FundStatus   `db:"status"`
	NextCollectionDate     *time.Time   `db:"next_collection_date"`
	AccountID              *string      `db:"account_id"`
	AccountName            *string      `db:"account_name"`
	SubLedgerID            *string      `db:"sub_ledger_id"`
	SubLedgerName          *string      `db:"sub_ledger_name"`
	CreatedAt              time.Time    `db:"created_at"`
	UpdatedAt              time.Time    `db:"updated_at"`
}

// IsActive checks if the fund is still collecting and distributing
func (f *Fund) IsActive() bool {
	return f.Status == FundStatusActive
}

// IsPeriodic checks if the fund auto-schedules its next collection
func (f *Fund) IsPeriodic() bool {
	switch f.Frequency {
	case FrequencyOneTime, FrequencyManual:
		return false
	}
	return true
}

// HasProvisionedAccount checks if the external collection account exists
func (f *Fund) HasProvisionedAccount() bool {
	return f.AccountID != nil && *f.AccountID != ""
}

// IsFinalCycle checks whether the current cycle is the last one the fund will run
func (f *Fund) IsFinalCycle() bool {
	if f.Frequency == FrequencyOneTime {
		return true
	}
	return f.TotalCycles != nil && f.CurrentCycle >= *f.TotalCycles
}

// NextCollectionAfter computes when the collection after t should start.
// Returns nil for one_time and manual funds, which never auto-schedule.
func (f *Fund) NextCollectionAfter(t time.Time) *time.Time {
	var next time.Time
	switch f.Frequency {
	case FrequencyDaily:
		next = t.AddDate(0, 0, 1)
	case FrequencyWeekly:
		next = nextWeekday(t, f.CollectionWeekday)
	case FrequencyBiweekly:
		next = t.AddDate(0, 0, 14)
	case FrequencyMonthly:
		next = t.AddDate(0, 1, 0)
	case FrequencyCustom:
		days := f.CustomDays
		if days <= 0 {
			days = 30
		}
		next = t.AddDate(0, 0, days)
	default:
		return nil
	}
	return &next
}

// nextWeekday returns the next occurrence of weekday strictly after t
func nextWeekday(t time.Time, weekday time.Weekday) time.Time {
	days := (int(weekday) - int(t.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return t.AddDate(0, 0, days)
}
