package service

import (
	"context"
	"time"

	"chamapool/events"
	"chamapool/models"
	"chamapool/payments"

	"github.com/stretchr/testify/mock"
)

// MockFundRepository is a mock implementation of FundRepository
type MockFundRepository struct {
	mock.Mock
}

func (m *MockFundRepository) Create(ctx context.Context, fund *models.Fund) error {
	args := m.Called(ctx, fund)
	return args.Error(0)
}

func (m *MockFundRepository) GetByID(ctx context.Context, id int64) (*models.Fund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Fund), args.Error(1)
}

func (m *MockFundRepository) Update(ctx context.Context, fund *models.Fund) error {
	args := m.Called(ctx, fund)
	return args.Error(0)
}

func (m *MockFundRepository) SetCollectionAccount(ctx context.Context, fundID int64, account *payments.CollectionAccount) error {
	args := m.Called(ctx, fundID, account)
	return args.Error(0)
}

func (m *MockFundRepository) GetActive(ctx context.Context) ([]*models.Fund, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Fund), args.Error(1)
}

func (m *MockFundRepository) GetDueForCollection(ctx context.Context, asOf time.Time) ([]*models.Fund, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Fund), args.Error(1)
}

func (m *MockFundRepository) GetUnprovisioned(ctx context.Context) ([]*models.Fund, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Fund), args.Error(1)
}

// MockMemberRepository is a mock implementation of MemberRepository
type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) Create(ctx context.Context, member *models.Member) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockMemberRepository) GetByID(ctx context.Context, id int64) (*models.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Member), args.Error(1)
}

func (m *MockMemberRepository) GetByPhone(ctx context.Context, fundID int64, phone string) (*models.Member, error) {
	args := m.Called(ctx, fundID, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Member), args.Error(1)
}

func (m *MockMemberRepository) GetByFund(ctx context.Context, fundID int64) ([]*models.Member, error) {
	args := m.Called(ctx, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Member), args.Error(1)
}

func (m *MockMemberRepository) ReassignPositions(ctx context.Context, fundID int64, positions map[int64]int) error {
	args := m.Called(ctx, fundID, positions)
	return args.Error(0)
}

func (m *MockMemberRepository) CreditContribution(ctx context.Context, memberID int64, amount int64) error {
	args := m.Called(ctx, memberID, amount)
	return args.Error(0)
}

func (m *MockMemberRepository) RecordPayout(ctx context.Context, memberID int64, amount int64) error {
	args := m.Called(ctx, memberID, amount)
	return args.Error(0)
}

func (m *MockMemberRepository) UpdateAccountStatus(ctx context.Context, memberID int64, status models.AccountStatus) error {
	args := m.Called(ctx, memberID, status)
	return args.Error(0)
}

// MockCycleRepository is a mock implementation of CycleRepository
type MockCycleRepository struct {
	mock.Mock
}

func (m *MockCycleRepository) Create(ctx context.Context, cycle *models.Cycle) error {
	args := m.Called(ctx, cycle)
	return args.Error(0)
}

func (m *MockCycleRepository) GetByID(ctx context.Context, id int64) (*models.Cycle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cycle), args.Error(1)
}

func (m *MockCycleRepository) GetOpenByFund(ctx context.Context, fundID int64) (*models.Cycle, error) {
	args := m.Called(ctx, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cycle), args.Error(1)
}

func (m *MockCycleRepository) TransitionStatus(ctx context.Context, cycleID int64, from, to models.CycleStatus) (bool, error) {
	args := m.Called(ctx, cycleID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockCycleRepository) AddCollected(ctx context.Context, cycleID int64, amount int64) error {
	args := m.Called(ctx, cycleID, amount)
	return args.Error(0)
}

func (m *MockCycleRepository) UpdateAggregates(ctx context.Context, cycleID int64, paid, pending, failed int) error {
	args := m.Called(ctx, cycleID, paid, pending, failed)
	return args.Error(0)
}

func (m *MockCycleRepository) SetRecipient(ctx context.Context, cycleID int64, memberID int64) error {
	args := m.Called(ctx, cycleID, memberID)
	return args.Error(0)
}

// MockContributionRequestRepository is a mock implementation of ContributionRequestRepository
type MockContributionRequestRepository struct {
	mock.Mock
}

func (m *MockContributionRequestRepository) Create(ctx context.Context, request *models.ContributionRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockContributionRequestRepository) GetByID(ctx context.Context, id int64) (*models.ContributionRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContributionRequest), args.Error(1)
}

func (m *MockContributionRequestRepository) GetByCycle(ctx context.Context, cycleID int64) ([]*models.ContributionRequest, error) {
	args := m.Called(ctx, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ContributionRequest), args.Error(1)
}

func (m *MockContributionRequestRepository) GetOpenByCycle(ctx context.Context, cycleID int64) ([]*models.ContributionRequest, error) {
	args := m.Called(ctx, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ContributionRequest), args.Error(1)
}

func (m *MockContributionRequestRepository) MarkDispatched(ctx context.Context, id int64, status models.RequestStatus, correlationRef, accountNumber, errorDetail *string) (bool, error) {
	args := m.Called(ctx, id, status, correlationRef, accountNumber, errorDetail)
	return args.Bool(0), args.Error(1)
}

func (m *MockContributionRequestRepository) MarkCompleted(ctx context.Context, id int64, receiptRef string, settledAt time.Time) (bool, error) {
	args := m.Called(ctx, id, receiptRef, settledAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockContributionRequestRepository) CancelOpenByCycle(ctx context.Context, cycleID int64) (int, error) {
	args := m.Called(ctx, cycleID)
	return args.Int(0), args.Error(1)
}

func (m *MockContributionRequestRepository) ExpireOlderThan(ctx context.Context, cycleID int64, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cycleID, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *MockContributionRequestRepository) CountByStatus(ctx context.Context, cycleID int64) (map[models.RequestStatus]int, error) {
	args := m.Called(ctx, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.RequestStatus]int), args.Error(1)
}

// MockPayoutRepository is a mock implementation of PayoutRepository
type MockPayoutRepository struct {
	mock.Mock
}

func (m *MockPayoutRepository) Create(ctx context.Context, payout *models.Payout) error {
	args := m.Called(ctx, payout)
	return args.Error(0)
}

func (m *MockPayoutRepository) GetByCycle(ctx context.Context, cycleID int64) (*models.Payout, error) {
	args := m.Called(ctx, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payout), args.Error(1)
}

func (m *MockPayoutRepository) MarkCompleted(ctx context.Context, id int64, transactionRef string) (bool, error) {
	args := m.Called(ctx, id, transactionRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayoutRepository) MarkFailed(ctx context.Context, id int64, errorDetail string) error {
	args := m.Called(ctx, id, errorDetail)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// discardPublisher swallows events when a test does not care about them
type discardPublisher struct{}

func (discardPublisher) Publish(events.Event) {}

// MockUnitOfWork is a mock implementation of UnitOfWork
type MockUnitOfWork struct {
	mock.Mock

	fundRepo    FundRepository
	memberRepo  MemberRepository
	cycleRepo   CycleRepository
	requestRepo ContributionRequestRepository
	payoutRepo  PayoutRepository
	eventBus    EventPublisher
}

// SetRepositories wires the repository mocks this unit of work hands out
func (m *MockUnitOfWork) SetRepositories(
	fundRepo FundRepository,
	memberRepo MemberRepository,
	cycleRepo CycleRepository,
	requestRepo ContributionRequestRepository,
	payoutRepo PayoutRepository,
) {
	m.fundRepo = fundRepo
	m.memberRepo = memberRepo
	m.cycleRepo = cycleRepo
	m.requestRepo = requestRepo
	m.payoutRepo = payoutRepo
}

// SetEventBus wires an event publisher mock; unset, events are discarded
func (m *MockUnitOfWork) SetEventBus(bus EventPublisher) {
	m.eventBus = bus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) FundRepository() FundRepository {
	return m.fundRepo
}

func (m *MockUnitOfWork) MemberRepository() MemberRepository {
	return m.memberRepo
}

func (m *MockUnitOfWork) CycleRepository() CycleRepository {
	return m.cycleRepo
}

func (m *MockUnitOfWork) ContributionRequestRepository() ContributionRequestRepository {
	return m.requestRepo
}

func (m *MockUnitOfWork) PayoutRepository() PayoutRepository {
	return m.payoutRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	if m.eventBus == nil {
		return discardPublisher{}
	}
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockLedgerClient is a mock implementation of LedgerClient
type MockLedgerClient struct {
	mock.Mock
}

func (m *MockLedgerClient) CreateCollectionAccount(ctx context.Context, entityType string, entityID int64, name, description string) (*payments.CollectionAccount, error) {
	args := m.Called(ctx, entityType, entityID, name, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.CollectionAccount), args.Error(1)
}

// MockPushGateway is a mock implementation of PushGateway
type MockPushGateway struct {
	mock.Mock
}

func (m *MockPushGateway) InitiatePush(ctx context.Context, phone string, amount int64, currency, account, subLedger string) (*payments.PushResult, error) {
	args := m.Called(ctx, phone, amount, currency, account, subLedger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.PushResult), args.Error(1)
}

// MockSettlementFeed is a mock implementation of SettlementFeed
type MockSettlementFeed struct {
	mock.Mock
}

func (m *MockSettlementFeed) ListSettlements(ctx context.Context, from, to time.Time) ([]payments.SettlementEntry, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payments.SettlementEntry), args.Error(1)
}

// MockPayoutGateway is a mock implementation of PayoutGateway
type MockPayoutGateway struct {
	mock.Mock
}

func (m *MockPayoutGateway) Payout(ctx context.Context, account, phone string, amount int64, reference string) (*payments.PayoutResult, error) {
	args := m.Called(ctx, account, phone, amount, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.PayoutResult), args.Error(1)
}

// MockAccountLookup is a mock implementation of AccountLookup
type MockAccountLookup struct {
	mock.Mock
}

func (m *MockAccountLookup) FindAccountByPhone(ctx context.Context, phone string) (*payments.Account, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Account), args.Error(1)
}

// MockDispatchService is a mock implementation of DispatchService
type MockDispatchService struct {
	mock.Mock
}

func (m *MockDispatchService) DispatchCycle(ctx context.Context, cycleID int64) (*models.DispatchSummary, error) {
	args := m.Called(ctx, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DispatchSummary), args.Error(1)
}
