package models

// FundDetail combines a fund with its members and the currently open cycle
type FundDetail struct {
	Fund    *Fund
	Members []*Member
	Cycle   *Cycle
}

// DispatchSummary reports the outcome of fanning out push requests for a cycle
type DispatchSummary struct {
	CycleID int64
	Total   int
	Sent    int
	Failed  int
	Pending int
	Skipped int
}

// RetrySummary reports the outcome of a bulk retry over a cycle's open requests
type RetrySummary struct {
	CycleID   int64
	Attempted int
	Sent      int
	Failed    int
	Skipped   int
}

// SweepSummary reports the outcome of one reconciliation pass over a fund
type SweepSummary struct {
	FundID         int64
	WindowMatched  int
	Credited       int
	Expired        int
	CyclesAdvanced int
}

// DistributionResult reports a completed (or attempted) cycle distribution
type DistributionResult struct {
	Cycle         *Cycle
	Payout        *Payout
	Recipient     *Member
	FundCompleted bool
}
