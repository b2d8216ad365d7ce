package service

import (
	"context"
	"errors"
	"testing"

	"chamapool/models"
	"chamapool/payments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestDispatchService_DispatchCycle(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockFundRepo := new(MockFundRepository)
	mockMemberRepo := new(MockMemberRepository)
	mockCycleRepo := new(MockCycleRepository)
	mockRequestRepo := new(MockContributionRequestRepository)
	mockPush := new(MockPushGateway)

	mockUoW.SetRepositories(mockFundRepo, mockMemberRepo, mockCycleRepo,
		mockRequestRepo, new(MockPayoutRepository))
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	service := NewDispatchService(mockFactory, mockPush, testConfig())

	fund := provisionedFund(1)
	roster := testRoster(1, 3)
	cycle := &models.Cycle{ID: 10, FundID: 1, Status: models.CycleStatusCollecting}

	mockCycleRepo.On("GetByID", ctx, int64(10)).Return(cycle, nil)
	mockFundRepo.On("GetByID", ctx, int64(1)).Return(fund, nil)
	mockMemberRepo.On("GetByFund", ctx, int64(1)).Return(roster, nil)
	mockRequestRepo.On("GetByCycle", ctx, int64(10)).Return([]*models.ContributionRequest{}, nil)

	var nextID int64 = 100
	mockRequestRepo.On("Create", ctx, mock.MatchedBy(func(r *models.ContributionRequest) bool {
		return r.CycleID == 10 && r.Amount == 1000 && r.Status == models.RequestStatusPending && r.MaxAttempts == 3
	})).Return(nil).Run(func(args mock.Arguments) {
		request := args.Get(1).(*models.ContributionRequest)
		request.ID = nextID
		nextID++
	})

	// Member 1 accepts, member 2 is rejected, member 3 times out
	mockPush.On("InitiatePush", ctx, roster[0].Phone, int64(1000), "KES", "ACC-1", "SL-1").
		Return(&payments.PushResult{Success: true, CorrelationRef: "COR-1", AccountNumber: "CHM-1"}, nil)
	mockPush.On("InitiatePush", ctx, roster[1].Phone, int64(1000), "KES", "ACC-1", "SL-1").
		Return(&payments.PushResult{Success: false, Message: "subscriber unreachable"}, nil)
	mockPush.On("InitiatePush", ctx, roster[2].Phone, int64(1000), "KES", "ACC-1", "SL-1").
		Return(nil, errors.New("gateway timeout"))

	mockRequestRepo.On("MarkDispatched", ctx, mock.AnythingOfType("int64"), models.RequestStatusSent,
		mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	mockRequestRepo.On("MarkDispatched", ctx, mock.AnythingOfType("int64"), models.RequestStatusFailed,
		mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	mockRequestRepo.On("CountByStatus", ctx, int64(10)).Return(map[models.RequestStatus]int{
		models.RequestStatusSent:    1,
		models.RequestStatusFailed:  1,
		models.RequestStatusPending: 1,
	}, nil)
	mockCycleRepo.On("UpdateAggregates", ctx, int64(10), 0, 2, 1).Return(nil)

	summary, err := service.DispatchCycle(ctx, 10)

	assert.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Pending, "an unknown outcome stays pending, not failed")

	mockRequestRepo.AssertExpectations(t)
	mockCycleRepo.AssertExpectations(t)
	mockPush.AssertExpectations(t)
}

func TestDispatchService_DispatchCycle_SkipsExistingRequests(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockFundRepo := new(MockFundRepository)
	mockMemberRepo := new(MockMemberRepository)
	mockCycleRepo := new(MockCycleRepository)
	mockRequestRepo := new(MockContributionRequestRepository)
	mockPush := new(MockPushGateway)

	mockUoW.SetRepositories(mockFundRepo, mockMemberRepo, mockCycleRepo,
		mockRequestRepo, new(MockPayoutRepository))
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	service := NewDispatchService(mockFactory, mockPush, testConfig())

	fund := provisionedFund(1)
	roster := testRoster(1, 2)
	cycle := &models.Cycle{ID: 10, FundID: 1, Status: models.CycleStatusCollecting}

	// Member 1 already has a sent request; only member 2 gets a new one
	existing := []*models.ContributionRequest{
		{ID: 100, CycleID: 10, MemberID: 1, Status: models.RequestStatusSent},
	}

	mockCycleRepo.On("GetByID", ctx, int64(10)).Return(cycle, nil)
	mockFundRepo.On("GetByID", ctx, int64(1)).Return(fund, nil)
	mockMemberRepo.On("GetByFund", ctx, int64(1)).Return(roster, nil)
	mockRequestRepo.On("GetByCycle", ctx, int64(10)).Return(existing, nil)

	mockRequestRepo.On("Create", ctx, mock.MatchedBy(func(r *models.ContributionRequest) bool {
		return r.MemberID == 2
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.ContributionRequest).ID = 101
	})

	mockPush.On("InitiatePush", ctx, roster[1].Phone, int64(1000), "KES", "ACC-1", "SL-1").
		Return(&payments.PushResult{Success: true, CorrelationRef: "COR-2"}, nil)

	mockRequestRepo.On("MarkDispatched", ctx, int64(101), models.RequestStatusSent,
		mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	mockRequestRepo.On("CountByStatus", ctx, int64(10)).Return(map[models.RequestStatus]int{
		models.RequestStatusSent: 2,
	}, nil)
	mockCycleRepo.On("UpdateAggregates", ctx, int64(10), 0, 2, 0).Return(nil)

	summary, err := service.DispatchCycle(ctx, 10)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Sent)
	mockPush.AssertNumberOfCalls(t, "InitiatePush", 1)
}

func TestDispatchService_DispatchCycle_CancelledInFlightDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockFundRepo := new(MockFundRepository)
	mockMemberRepo := new(MockMemberRepository)
	mockCycleRepo := new(MockCycleRepository)
	mockRequestRepo := new(MockContributionRequestRepository)
	mockPush := new(MockPushGateway)

	mockUoW.SetRepositories(mockFundRepo, mockMemberRepo, mockCycleRepo,
		mockRequestRepo, new(MockPayoutRepository))
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	service := NewDispatchService(mockFactory, mockPush, testConfig())

	fund := provisionedFund(1)
	roster := testRoster(1, 2)
	cycle := &models.Cycle{ID: 10, FundID: 1, Status: models.CycleStatusCollecting}

	mockCycleRepo.On("GetByID", ctx, int64(10)).Return(cycle, nil)
	mockFundRepo.On("GetByID", ctx, int64(1)).Return(fund, nil)
	mockMemberRepo.On("GetByFund", ctx, int64(1)).Return(roster, nil)
	mockRequestRepo.On("GetByCycle", ctx, int64(10)).Return([]*models.ContributionRequest{}, nil)

	var nextID int64 = 100
	mockRequestRepo.On("Create", ctx, mock.AnythingOfType("*models.ContributionRequest")).
		Return(nil).Run(func(args mock.Arguments) {
			args.Get(1).(*models.ContributionRequest).ID = nextID
			nextID++
		})

	mockPush.On("InitiatePush", ctx, roster[0].Phone, int64(1000), "KES", "ACC-1", "SL-1").
		Return(&payments.PushResult{Success: true, CorrelationRef: "COR-1"}, nil)
	mockPush.On("InitiatePush", ctx, roster[1].Phone, int64(1000), "KES", "ACC-1", "SL-1").
		Return(&payments.PushResult{Success: true, CorrelationRef: "COR-2"}, nil)

	// Request 100 was settled while its push was in flight: the conditional
	// write reports no transition and the sibling outcome still lands
	mockRequestRepo.On("MarkDispatched", ctx, int64(100), models.RequestStatusSent,
		mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	mockRequestRepo.On("MarkDispatched", ctx, int64(101), models.RequestStatusSent,
		mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	mockRequestRepo.On("CountByStatus", ctx, int64(10)).Return(map[models.RequestStatus]int{
		models.RequestStatusCompleted: 1,
		models.RequestStatusSent:      1,
	}, nil)
	mockCycleRepo.On("UpdateAggregates", ctx, int64(10), 1, 1, 0).Return(nil)

	summary, err := service.DispatchCycle(ctx, 10)

	assert.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	mockUoW.AssertCalled(t, "Commit")
}

func TestDispatchService_DispatchCycle_NotCollecting(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockCycleRepo := new(MockCycleRepository)

	mockUoW.SetRepositories(new(MockFundRepository), new(MockMemberRepository), mockCycleRepo,
		new(MockContributionRequestRepository), new(MockPayoutRepository))
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	service := NewDispatchService(mockFactory, new(MockPushGateway), testConfig())

	mockCycleRepo.On("GetByID", ctx, int64(10)).
		Return(&models.Cycle{ID: 10, Status: models.CycleStatusCompleted}, nil)

	summary, err := service.DispatchCycle(ctx, 10)

	assert.Nil(t, summary)
	var conflictErr *StateConflictError
	assert.ErrorAs(t, err, &conflictErr)
}
