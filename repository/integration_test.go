package repository_test

import (
	"context"
	"testing"
	"time"

	"chamapool/events"
	"chamapool/models"
	"chamapool/repository"
	"chamapool/repository/testutil"
	"chamapool/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// beginUoW starts a unit of work against the test database and fails the
// test if it cannot
func beginUoW(t *testing.T, factory service.UnitOfWorkFactory) service.UnitOfWork {
	t.Helper()
	uow := factory.Create()
	require.NoError(t, uow.Begin(context.Background()))
	return uow
}

// seedFund persists a provisioned fund with an admin and n-1 regular members,
// returning the fund and the roster ordered by rotation position
func seedFund(t *testing.T, factory service.UnitOfWorkFactory, name string, n int) (*models.Fund, []*models.Member) {
	t.Helper()
	ctx := context.Background()

	uow := beginUoW(t, factory)
	defer uow.Rollback()

	fund := testutil.CreateTestFundWithAccount(name, "254700000001")
	require.NoError(t, uow.FundRepository().Create(ctx, fund))

	members := make([]*models.Member, 0, n)
	admin := testutil.CreateTestAdmin(fund.ID, fund.CreatorPhone)
	require.NoError(t, uow.MemberRepository().Create(ctx, admin))
	members = append(members, admin)

	for pos := 2; pos <= n; pos++ {
		member := testutil.CreateTestMember(fund.ID, pos)
		require.NoError(t, uow.MemberRepository().Create(ctx, member))
		members = append(members, member)
	}

	require.NoError(t, uow.Commit())
	return fund, members
}

func TestIntegration_FundAndRoster(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := testutil.SetupTestDatabase(t)
	factory := repository.NewUnitOfWorkFactory(testDB.DB, events.NewBus())

	fund, _ := seedFund(t, factory, "sunrise", 3)

	uow := beginUoW(t, factory)
	defer uow.Rollback()

	loaded, err := uow.FundRepository().GetByID(ctx, fund.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "sunrise", loaded.Name)
	assert.True(t, loaded.HasProvisionedAccount())
	assert.Equal(t, 0, loaded.CurrentRotationIndex)

	roster, err := uow.MemberRepository().GetByFund(ctx, fund.ID)
	require.NoError(t, err)
	require.Len(t, roster, 3)
	for i, member := range roster {
		assert.Equal(t, i+1, member.RotationPosition, "roster is ordered by position")
	}

	admin, err := uow.MemberRepository().GetByPhone(ctx, fund.ID, fund.CreatorPhone)
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, models.MemberRoleAdmin, admin.Role)

	// Unknown phone comes back nil without an error
	missing, err := uow.MemberRepository().GetByPhone(ctx, fund.ID, "254799999999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// The same member wired again must violate the per-fund phone constraint
	dup := testutil.CreateTestAdmin(fund.ID, fund.CreatorPhone)
	dup.RotationPosition = 9
	assert.Error(t, uow.MemberRepository().Create(ctx, dup))
}

func TestIntegration_OneOpenCyclePerFund(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := testutil.SetupTestDatabase(t)
	factory := repository.NewUnitOfWorkFactory(testDB.DB, events.NewBus())

	fund, _ := seedFund(t, factory, "harambee", 2)

	uow := beginUoW(t, factory)
	first := testutil.CreateTestCycle(fund.ID, 1, 2000)
	require.NoError(t, uow.CycleRepository().Create(ctx, first))
	require.NoError(t, uow.Commit())

	// A second open cycle for the same fund must be rejected by the
	// partial unique index
	uow = beginUoW(t, factory)
	second := testutil.CreateTestCycle(fund.ID, 2, 2000)
	assert.Error(t, uow.CycleRepository().Create(ctx, second))
	uow.Rollback()

	// Cancelling the open cycle frees the slot
	uow = beginUoW(t, factory)
	moved, err := uow.CycleRepository().TransitionStatus(ctx, first.ID, models.CycleStatusCollecting, models.CycleStatusCancelled)
	require.NoError(t, err)
	assert.True(t, moved)
	require.NoError(t, uow.Commit())

	uow = beginUoW(t, factory)
	require.NoError(t, uow.CycleRepository().Create(ctx, second))
	require.NoError(t, uow.Commit())

	uow = beginUoW(t, factory)
	defer uow.Rollback()
	open, err := uow.CycleRepository().GetOpenByFund(ctx, fund.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, second.ID, open.ID)
	assert.Equal(t, 2, open.CycleNumber)
}

func TestIntegration_SettlementWinnerSemantics(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := testutil.SetupTestDatabase(t)
	factory := repository.NewUnitOfWorkFactory(testDB.DB, events.NewBus())

	fund, members := seedFund(t, factory, "pamoja", 2)

	uow := beginUoW(t, factory)
	cycle := testutil.CreateTestCycle(fund.ID, 1, 2000)
	require.NoError(t, uow.CycleRepository().Create(ctx, cycle))
	request := testutil.CreateTestRequest(cycle.ID, members[1].ID, fund.ID, members[1].Phone, 1000)
	require.NoError(t, uow.ContributionRequestRepository().Create(ctx, request))
	require.NoError(t, uow.Commit())

	// First completion wins
	uow = beginUoW(t, factory)
	won, err := uow.ContributionRequestRepository().MarkCompleted(ctx, request.ID, "RCPT-1", time.Now())
	require.NoError(t, err)
	assert.True(t, won)
	require.NoError(t, uow.MemberRepository().CreditContribution(ctx, members[1].ID, 1000))
	require.NoError(t, uow.CycleRepository().AddCollected(ctx, cycle.ID, 1000))
	require.NoError(t, uow.Commit())

	// A replayed settlement for the same request must lose the conditional
	// update and credit nothing
	uow = beginUoW(t, factory)
	won, err = uow.ContributionRequestRepository().MarkCompleted(ctx, request.ID, "RCPT-1-replay", time.Now())
	require.NoError(t, err)
	assert.False(t, won)
	uow.Rollback()

	uow = beginUoW(t, factory)
	defer uow.Rollback()

	settled, err := uow.ContributionRequestRepository().GetByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCompleted, settled.Status)

	member, err := uow.MemberRepository().GetByID(ctx, members[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), member.TotalContributed)

	loaded, err := uow.CycleRepository().GetByID(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), loaded.CollectedAmount)

	counts, err := uow.ContributionRequestRepository().CountByStatus(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.RequestStatusCompleted])
}

func TestIntegration_RequestExpiryAndCancellation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := testutil.SetupTestDatabase(t)
	factory := repository.NewUnitOfWorkFactory(testDB.DB, events.NewBus())

	fund, members := seedFund(t, factory, "tumaini", 3)

	uow := beginUoW(t, factory)
	cycle := testutil.CreateTestCycle(fund.ID, 1, 3000)
	require.NoError(t, uow.CycleRepository().Create(ctx, cycle))

	requests := make([]*models.ContributionRequest, 0, len(members))
	for _, member := range members {
		request := testutil.CreateTestRequest(cycle.ID, member.ID, fund.ID, member.Phone, 1000)
		require.NoError(t, uow.ContributionRequestRepository().Create(ctx, request))
		requests = append(requests, request)
	}
	require.NoError(t, uow.Commit())

	// Settle one request so expiry and cancellation must leave it alone
	uow = beginUoW(t, factory)
	won, err := uow.ContributionRequestRepository().MarkCompleted(ctx, requests[0].ID, "RCPT-9", time.Now())
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, uow.Commit())

	// Everything still open and older than the cutoff expires
	uow = beginUoW(t, factory)
	expired, err := uow.ContributionRequestRepository().ExpireOlderThan(ctx, cycle.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, expired)
	require.NoError(t, uow.Commit())

	uow = beginUoW(t, factory)
	defer uow.Rollback()

	open, err := uow.ContributionRequestRepository().GetOpenByCycle(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Empty(t, open)

	counts, err := uow.ContributionRequestRepository().CountByStatus(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.RequestStatusCompleted])
	assert.Equal(t, 2, counts[models.RequestStatusExpired])
}

func TestIntegration_PayoutCompletionIsFinal(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := testutil.SetupTestDatabase(t)
	factory := repository.NewUnitOfWorkFactory(testDB.DB, events.NewBus())

	fund, members := seedFund(t, factory, "baraka", 2)

	uow := beginUoW(t, factory)
	cycle := testutil.CreateTestCycle(fund.ID, 1, 2000)
	require.NoError(t, uow.CycleRepository().Create(ctx, cycle))
	payout := &models.Payout{
		CycleID:   cycle.ID,
		FundID:    fund.ID,
		MemberID:  members[0].ID,
		Amount:    2000,
		Reference: "PAY-baraka-1",
		Status:    models.PayoutStatusPending,
	}
	require.NoError(t, uow.PayoutRepository().Create(ctx, payout))
	require.NoError(t, uow.Commit())

	uow = beginUoW(t, factory)
	won, err := uow.PayoutRepository().MarkCompleted(ctx, payout.ID, "TXN-1")
	require.NoError(t, err)
	assert.True(t, won)
	require.NoError(t, uow.Commit())

	// Completion is a one-way door
	uow = beginUoW(t, factory)
	won, err = uow.PayoutRepository().MarkCompleted(ctx, payout.ID, "TXN-2")
	require.NoError(t, err)
	assert.False(t, won)
	uow.Rollback()

	uow = beginUoW(t, factory)
	defer uow.Rollback()
	loaded, err := uow.PayoutRepository().GetByCycle(ctx, cycle.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, models.PayoutStatusCompleted, loaded.Status)
	require.NotNil(t, loaded.TransactionRef)
	assert.Equal(t, "TXN-1", *loaded.TransactionRef)
}

func TestIntegration_RollbackDiscardsChanges(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := testutil.SetupTestDatabase(t)
	factory := repository.NewUnitOfWorkFactory(testDB.DB, events.NewBus())

	uow := beginUoW(t, factory)
	fund := testutil.CreateTestFund("ghost", "254700000001")
	require.NoError(t, uow.FundRepository().Create(ctx, fund))
	fundID := fund.ID
	require.NoError(t, uow.Rollback())

	uow = beginUoW(t, factory)
	defer uow.Rollback()
	loaded, err := uow.FundRepository().GetByID(ctx, fundID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestIntegration_DueFundSelection(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := testutil.SetupTestDatabase(t)
	factory := repository.NewUnitOfWorkFactory(testDB.DB, events.NewBus())

	uow := beginUoW(t, factory)

	due := testutil.CreateTestFundWithAccount("due", "254700000001")
	past := time.Now().Add(-time.Hour)
	due.NextCollectionDate = &past
	require.NoError(t, uow.FundRepository().Create(ctx, due))

	notYet := testutil.CreateTestFundWithAccount("not-yet", "254700000002")
	future := time.Now().Add(24 * time.Hour)
	notYet.NextCollectionDate = &future
	require.NoError(t, uow.FundRepository().Create(ctx, notYet))

	unscheduled := testutil.CreateTestFundWithAccount("manual", "254700000003")
	require.NoError(t, uow.FundRepository().Create(ctx, unscheduled))

	require.NoError(t, uow.Commit())

	uow = beginUoW(t, factory)
	defer uow.Rollback()
	funds, err := uow.FundRepository().GetDueForCollection(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, funds, 1)
	assert.Equal(t, due.ID, funds[0].ID)
}
