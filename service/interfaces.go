package service

import (
	"context"
	"time"

	"chamapool/events"
	"chamapool/models"
	"chamapool/payments"
)

// FundRepository defines the interface for fund data access
type FundRepository interface {
	// Create creates a new fund
	Create(ctx context.Context, fund *models.Fund) error

	// GetByID retrieves a fund by its ID
	GetByID(ctx context.Context, id int64) (*models.Fund, error)

	// Update updates a fund's mutable fields
	Update(ctx context.Context, fund *models.Fund) error

	// SetCollectionAccount records the externally provisioned ledger account
	SetCollectionAccount(ctx context.Context, fundID int64, account *payments.CollectionAccount) error

	// GetActive returns all active funds
	GetActive(ctx context.Context) ([]*models.Fund, error)

	// GetDueForCollection returns active funds whose next collection date has passed
	GetDueForCollection(ctx context.Context, asOf time.Time) ([]*models.Fund, error)

	// GetUnprovisioned returns active funds with no collection account yet
	GetUnprovisioned(ctx context.Context) ([]*models.Fund, error)
}

// MemberRepository defines the interface for member data access
type MemberRepository interface {
	// Create creates a new member at the given rotation position
	Create(ctx context.Context, member *models.Member) error

	// GetByID retrieves a member by its ID
	GetByID(ctx context.Context, id int64) (*models.Member, error)

	// GetByPhone retrieves a fund's member by phone number
	GetByPhone(ctx context.Context, fundID int64, phone string) (*models.Member, error)

	// GetByFund returns a fund's members ordered by rotation position
	GetByFund(ctx context.Context, fundID int64) ([]*models.Member, error)

	// ReassignPositions replaces every member's rotation position in one pass.
	// positions maps member ID to new position; the values must form a
	// permutation of 1..N.
	ReassignPositions(ctx context.Context, fundID int64, positions map[int64]int) error

	// CreditContribution adds to a member's cumulative contributed total
	CreditContribution(ctx context.Context, memberID int64, amount int64) error

	// RecordPayout adds to a member's cumulative received total and flags them as paid
	RecordPayout(ctx context.Context, memberID int64, amount int64) error

	// UpdateAccountStatus sets a member's linked-account status
	UpdateAccountStatus(ctx context.Context, memberID int64, status models.AccountStatus) error
}

// CycleRepository defines the interface for cycle data access
type CycleRepository interface {
	// Create creates a new cycle
	Create(ctx context.Context, cycle *models.Cycle) error

	// GetByID retrieves a cycle by its ID
	GetByID(ctx context.Context, id int64) (*models.Cycle, error)

	// GetOpenByFund returns the fund's open (collecting or collected) cycle, if any
	GetOpenByFund(ctx context.Context, fundID int64) (*models.Cycle, error)

	// TransitionStatus moves the cycle from one status to another only if it
	// is still in the expected prior status. Returns whether the transition
	// happened; losing the race is not an error.
	TransitionStatus(ctx context.Context, cycleID int64, from, to models.CycleStatus) (bool, error)

	// AddCollected atomically adds a settled amount to the cycle total
	AddCollected(ctx context.Context, cycleID int64, amount int64) error

	// UpdateAggregates replaces the cycle's per-status member counts
	UpdateAggregates(ctx context.Context, cycleID int64, paid, pending, failed int) error

	// SetRecipient records the payout recipient for the cycle
	SetRecipient(ctx context.Context, cycleID int64, memberID int64) error
}

// ContributionRequestRepository defines the interface for contribution
// request data access. Status writes are conditional so concurrent sweeps,
// retries and cancellations cannot double-apply.
type ContributionRequestRepository interface {
	// Create creates a new request; at most one exists per (cycle, member)
	Create(ctx context.Context, request *models.ContributionRequest) error

	// GetByID retrieves a request by its ID
	GetByID(ctx context.Context, id int64) (*models.ContributionRequest, error)

	// GetByCycle returns every request for a cycle
	GetByCycle(ctx context.Context, cycleID int64) ([]*models.ContributionRequest, error)

	// GetOpenByCycle returns the cycle's non-terminal requests
	GetOpenByCycle(ctx context.Context, cycleID int64) ([]*models.ContributionRequest, error)

	// MarkDispatched records the outcome of a push attempt, incrementing the
	// attempt count and storing the correlation reference or error detail.
	// Returns false when the request left the open states while the push was
	// in flight; the outcome is then discarded.
	MarkDispatched(ctx context.Context, id int64, status models.RequestStatus, correlationRef, accountNumber, errorDetail *string) (bool, error)

	// MarkCompleted settles the request if and only if it has not already
	// completed, expired or been cancelled. Returns whether this call won
	// the transition; only the winner credits balances.
	MarkCompleted(ctx context.Context, id int64, receiptRef string, settledAt time.Time) (bool, error)

	// CancelOpenByCycle cancels every non-terminal request for a cycle and
	// returns how many rows transitioned
	CancelOpenByCycle(ctx context.Context, cycleID int64) (int, error)

	// ExpireOlderThan expires the cycle's unsettled requests created before
	// the cutoff and returns how many rows transitioned
	ExpireOlderThan(ctx context.Context, cycleID int64, cutoff time.Time) (int, error)

	// CountByStatus returns the cycle's request counts grouped by status
	CountByStatus(ctx context.Context, cycleID int64) (map[models.RequestStatus]int, error)
}

// PayoutRepository defines the interface for payout data access
type PayoutRepository interface {
	// Create creates a new pending payout
	Create(ctx context.Context, payout *models.Payout) error

	// GetByCycle returns the cycle's payout, if any
	GetByCycle(ctx context.Context, cycleID int64) (*models.Payout, error)

	// MarkCompleted completes the payout if it is still pending. A completed
	// payout is immutable; at most one completed payout exists per cycle.
	MarkCompleted(ctx context.Context, id int64, transactionRef string) (bool, error)

	// MarkFailed records a payout failure with its error detail
	MarkFailed(ctx context.Context, id int64, errorDetail string) error
}

// LedgerClient provisions collection accounts with the payment processor
type LedgerClient interface {
	CreateCollectionAccount(ctx context.Context, entityType string, entityID int64, name, description string) (*payments.CollectionAccount, error)
}

// PushGateway initiates push payments. An error return means the outcome is
// unknown and the request must stay pending; only an explicit unsuccessful
// response marks a request failed.
type PushGateway interface {
	InitiatePush(ctx context.Context, phone string, amount int64, currency, account, subLedger string) (*payments.PushResult, error)
}

// SettlementFeed is the polled source of confirmed settlements
type SettlementFeed interface {
	ListSettlements(ctx context.Context, from, to time.Time) ([]payments.SettlementEntry, error)
}

// PayoutGateway moves collected funds to a recipient
type PayoutGateway interface {
	Payout(ctx context.Context, account, phone string, amount int64, reference string) (*payments.PayoutResult, error)
}

// AccountLookup resolves a phone number to a system account, used for a
// member's linked-account status
type AccountLookup interface {
	FindAccountByPhone(ctx context.Context, phone string) (*payments.Account, error)
}

// FundService defines the interface for fund and roster operations
type FundService interface {
	// CreateFund validates and creates a fund, enrolling the creator as its
	// admin member and provisioning a collection account best-effort
	CreateFund(ctx context.Context, input CreateFundInput) (*models.Fund, error)

	// AddMember adds a member at the next free rotation position
	AddMember(ctx context.Context, fundID int64, actorPhone string, input MemberInput) (*models.Member, error)

	// AddMembers adds several members in one transaction
	AddMembers(ctx context.Context, fundID int64, actorPhone string, inputs []MemberInput) ([]*models.Member, error)

	// GetFundDetail returns the fund with its members and open cycle
	GetFundDetail(ctx context.Context, fundID int64) (*models.FundDetail, error)

	// ShuffleRotation reassigns rotation positions with a uniform random
	// permutation. Only random-rotation funds with at least two members.
	ShuffleRotation(ctx context.Context, fundID int64, actorPhone string) ([]*models.Member, error)

	// ProvisionAccount retries collection account provisioning for a fund
	// that was created while the ledger service was unavailable
	ProvisionAccount(ctx context.Context, fundID int64) error
}

// CreateFundInput carries the fields needed to create a fund
type CreateFundInput struct {
	Name                   string
	CreatorPhone           string
	CreatorName            string
	Currency               string
	ContributionAmount     int64
	Frequency              models.Frequency
	CustomDays             int
	CollectionWeekday      time.Weekday
	RotationType           models.RotationType
	RequireAllBeforePayout bool
	AllowPartialPayment    bool
	CollectionThresholdBps int
	TotalCycles            *int
}

// MemberInput carries the fields needed to enroll a member
type MemberInput struct {
	Phone string
	Name  string
}

// CycleService defines the interface for cycle lifecycle operations
type CycleService interface {
	// StartCycle opens a new collecting cycle and dispatches contribution
	// requests to every active member
	StartCycle(ctx context.Context, fundID int64, actorPhone string) (*models.Cycle, error)

	// StopCollection cancels the open cycle and all of its open requests
	StopCollection(ctx context.Context, fundID int64, actorPhone string) (*models.Cycle, error)

	// GetActiveCycle returns the fund's open cycle
	GetActiveCycle(ctx context.Context, fundID int64) (*models.Cycle, error)

	// OpenDueCycles starts cycles for every fund whose scheduled collection
	// date has passed, returning how many were opened
	OpenDueCycles(ctx context.Context, asOf time.Time) (int, error)
}

// DispatchService defines the interface for fanning out push requests
type DispatchService interface {
	// DispatchCycle issues one push request per active member, in parallel
	DispatchCycle(ctx context.Context, cycleID int64) (*models.DispatchSummary, error)
}

// ReconciliationService defines the interface for settlement sweeps
type ReconciliationService interface {
	// SweepFund reconciles one fund's open requests against the settlement
	// feed. Safe to re-run and to run concurrently with dispatch or retry.
	SweepFund(ctx context.Context, fundID int64) (*models.SweepSummary, error)

	// SweepAll sweeps every active fund
	SweepAll(ctx context.Context) error
}

// RetryService defines the interface for re-driving unresolved requests
type RetryService interface {
	// RetryRequest re-issues a single request's push payment
	RetryRequest(ctx context.Context, requestID int64, actorPhone string) (*models.ContributionRequest, error)

	// RetryAll re-issues every open request of the fund's active cycle
	RetryAll(ctx context.Context, fundID int64, actorPhone string) (*models.RetrySummary, error)
}

// DistributionService defines the interface for paying out a collected cycle
type DistributionService interface {
	// Distribute pays the cycle's collected funds to the rotation recipient
	// and advances the fund. Exactly-once per cycle.
	Distribute(ctx context.Context, fundID int64, actorPhone string) (*models.DistributionResult, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	FundRepository() FundRepository
	MemberRepository() MemberRepository
	CycleRepository() CycleRepository
	ContributionRequestRepository() ContributionRequestRepository
	PayoutRepository() PayoutRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	// Create creates a new UnitOfWork instance
	Create() UnitOfWork
}
