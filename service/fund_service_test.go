package service

import (
	"context"
	"errors"
	"testing"

	"chamapool/config"
	"chamapool/models"
	"chamapool/payments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultCurrency:        "KES",
		DefaultMaxAttempts:     3,
		PhoneSuffixMatchLength: 6,
	}
}

func setupFundServiceMocks() (*MockUnitOfWork, *MockUnitOfWorkFactory, *MockFundRepository, *MockMemberRepository, *MockCycleRepository) {
	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockFundRepo := new(MockFundRepository)
	mockMemberRepo := new(MockMemberRepository)
	mockCycleRepo := new(MockCycleRepository)

	mockUoW.SetRepositories(mockFundRepo, mockMemberRepo, mockCycleRepo,
		new(MockContributionRequestRepository), new(MockPayoutRepository))
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", mock.Anything).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	return mockUoW, mockFactory, mockFundRepo, mockMemberRepo, mockCycleRepo
}

func TestFundService_CreateFund(t *testing.T) {
	ctx := context.Background()

	_, mockFactory, mockFundRepo, mockMemberRepo, _ := setupFundServiceMocks()
	mockLedger := new(MockLedgerClient)
	mockLookup := new(MockAccountLookup)

	service := NewFundService(mockFactory, mockLedger, mockLookup, testConfig())

	mockFundRepo.On("Create", ctx, mock.MatchedBy(func(f *models.Fund) bool {
		return f.Name == "office chama" &&
			f.Currency == "KES" &&
			f.ContributionAmount == 1000 &&
			f.Status == models.FundStatusActive &&
			f.CollectionThresholdBps == 10000
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Fund).ID = 7
	})

	// The creator is enrolled as an admin at position 1
	mockLookup.On("FindAccountByPhone", ctx, "254700000001").Return(&payments.Account{AccountID: "ACC-9"}, nil)
	mockMemberRepo.On("Create", ctx, mock.MatchedBy(func(m *models.Member) bool {
		return m.FundID == 7 &&
			m.Phone == "254700000001" &&
			m.Role == models.MemberRoleAdmin &&
			m.RotationPosition == 1 &&
			m.AccountStatus == models.AccountStatusActive
	})).Return(nil)

	// Provisioning runs after commit
	mockFundRepo.On("GetByID", ctx, int64(7)).Return(&models.Fund{ID: 7, Name: "office chama"}, nil)
	account := &payments.CollectionAccount{AccountID: "ACC-7", SubLedgerID: "SL-7"}
	mockLedger.On("CreateCollectionAccount", ctx, "fund", int64(7), "office chama", mock.AnythingOfType("string")).
		Return(account, nil)
	mockFundRepo.On("SetCollectionAccount", ctx, int64(7), account).Return(nil)

	fund, err := service.CreateFund(ctx, CreateFundInput{
		Name:               "office chama",
		CreatorPhone:       "254700000001",
		CreatorName:        "Amina",
		ContributionAmount: 1000,
		Frequency:          models.FrequencyWeekly,
		RotationType:       models.RotationSequential,
	})

	assert.NoError(t, err)
	assert.NotNil(t, fund)
	assert.Equal(t, int64(7), fund.ID)

	mockFundRepo.AssertExpectations(t)
	mockMemberRepo.AssertExpectations(t)
	mockLedger.AssertExpectations(t)
}

func TestFundService_CreateFund_LedgerDown(t *testing.T) {
	ctx := context.Background()

	_, mockFactory, mockFundRepo, mockMemberRepo, _ := setupFundServiceMocks()
	mockLedger := new(MockLedgerClient)
	mockLookup := new(MockAccountLookup)

	service := NewFundService(mockFactory, mockLedger, mockLookup, testConfig())

	mockFundRepo.On("Create", ctx, mock.AnythingOfType("*models.Fund")).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Fund).ID = 8
	})
	mockLookup.On("FindAccountByPhone", ctx, mock.Anything).Return(nil, errors.New("lookup unavailable"))
	mockMemberRepo.On("Create", ctx, mock.MatchedBy(func(m *models.Member) bool {
		// Lookup failure leaves the member pending
		return m.AccountStatus == models.AccountStatusPending
	})).Return(nil)

	mockFundRepo.On("GetByID", ctx, int64(8)).Return(&models.Fund{ID: 8, Name: "x"}, nil)
	mockLedger.On("CreateCollectionAccount", ctx, "fund", int64(8), mock.Anything, mock.Anything).
		Return(nil, errors.New("ledger unavailable"))

	// Provisioning failure does not block fund creation
	fund, err := service.CreateFund(ctx, CreateFundInput{
		Name:               "x",
		CreatorPhone:       "254700000002",
		ContributionAmount: 500,
		Frequency:          models.FrequencyMonthly,
		RotationType:       models.RotationRandom,
	})

	assert.NoError(t, err)
	assert.NotNil(t, fund)
	mockFundRepo.AssertNotCalled(t, "SetCollectionAccount", mock.Anything, mock.Anything, mock.Anything)
}

func TestFundService_CreateFund_Validation(t *testing.T) {
	ctx := context.Background()
	_, mockFactory, _, _, _ := setupFundServiceMocks()
	service := NewFundService(mockFactory, new(MockLedgerClient), new(MockAccountLookup), testConfig())

	tests := []struct {
		name  string
		input CreateFundInput
		field string
	}{
		{
			name:  "empty name",
			input: CreateFundInput{CreatorPhone: "254700000001", Frequency: models.FrequencyWeekly, RotationType: models.RotationSequential},
			field: "name",
		},
		{
			name:  "empty creator phone",
			input: CreateFundInput{Name: "x", Frequency: models.FrequencyWeekly, RotationType: models.RotationSequential},
			field: "creator_phone",
		},
		{
			name:  "unknown frequency",
			input: CreateFundInput{Name: "x", CreatorPhone: "1", Frequency: "hourly", RotationType: models.RotationSequential},
			field: "frequency",
		},
		{
			name:  "unknown rotation type",
			input: CreateFundInput{Name: "x", CreatorPhone: "1", Frequency: models.FrequencyWeekly, RotationType: "lottery"},
			field: "rotation_type",
		},
		{
			name:  "custom frequency without days",
			input: CreateFundInput{Name: "x", CreatorPhone: "1", Frequency: models.FrequencyCustom, RotationType: models.RotationSequential},
			field: "custom_days",
		},
		{
			name:  "negative amount",
			input: CreateFundInput{Name: "x", CreatorPhone: "1", ContributionAmount: -5, Frequency: models.FrequencyWeekly, RotationType: models.RotationSequential},
			field: "contribution_amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fund, err := service.CreateFund(ctx, tt.input)
			assert.Nil(t, fund)

			var validationErr *ValidationError
			assert.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestFundService_AddMembers(t *testing.T) {
	ctx := context.Background()

	_, mockFactory, mockFundRepo, mockMemberRepo, _ := setupFundServiceMocks()
	mockLookup := new(MockAccountLookup)
	service := NewFundService(mockFactory, new(MockLedgerClient), mockLookup, testConfig())

	fund := &models.Fund{ID: 3, Status: models.FundStatusActive}
	admin := &models.Member{ID: 1, FundID: 3, Phone: "254700000001", Role: models.MemberRoleAdmin, RotationPosition: 1}

	mockFundRepo.On("GetByID", ctx, int64(3)).Return(fund, nil)
	mockMemberRepo.On("GetByPhone", ctx, int64(3), "254700000001").Return(admin, nil)
	mockMemberRepo.On("GetByFund", ctx, int64(3)).Return([]*models.Member{admin}, nil)
	mockLookup.On("FindAccountByPhone", ctx, mock.Anything).Return(nil, nil)

	// Positions continue after the highest existing one
	mockMemberRepo.On("Create", ctx, mock.MatchedBy(func(m *models.Member) bool {
		return m.Phone == "254700000002" && m.RotationPosition == 2 && m.Role == models.MemberRoleMember
	})).Return(nil)
	mockMemberRepo.On("Create", ctx, mock.MatchedBy(func(m *models.Member) bool {
		return m.Phone == "254700000003" && m.RotationPosition == 3
	})).Return(nil)

	members, err := service.AddMembers(ctx, 3, "254700000001", []MemberInput{
		{Phone: "254700000002", Name: "Brian"},
		{Phone: "254700000003", Name: "Cathy"},
	})

	assert.NoError(t, err)
	assert.Len(t, members, 2)
	mockMemberRepo.AssertExpectations(t)
}

func TestFundService_AddMembers_LookupRunsBeforeTransaction(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockFundRepo := new(MockFundRepository)
	mockMemberRepo := new(MockMemberRepository)
	mockLookup := new(MockAccountLookup)

	mockUoW.SetRepositories(mockFundRepo, mockMemberRepo, new(MockCycleRepository),
		new(MockContributionRequestRepository), new(MockPayoutRepository))
	mockFactory.On("Create").Return(mockUoW)

	// The lookup is an external HTTP call and must finish before the
	// transaction opens
	var lookupDone, lookupBeforeBegin bool
	mockLookup.On("FindAccountByPhone", ctx, "254700000002").
		Run(func(mock.Arguments) { lookupDone = true }).
		Return(nil, nil)
	mockUoW.On("Begin", ctx).
		Run(func(mock.Arguments) { lookupBeforeBegin = lookupDone }).
		Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	service := NewFundService(mockFactory, new(MockLedgerClient), mockLookup, testConfig())

	fund := &models.Fund{ID: 3, Status: models.FundStatusActive}
	admin := &models.Member{ID: 1, FundID: 3, Phone: "254700000001", Role: models.MemberRoleAdmin, RotationPosition: 1}

	mockFundRepo.On("GetByID", ctx, int64(3)).Return(fund, nil)
	mockMemberRepo.On("GetByPhone", ctx, int64(3), "254700000001").Return(admin, nil)
	mockMemberRepo.On("GetByFund", ctx, int64(3)).Return([]*models.Member{admin}, nil)
	mockMemberRepo.On("Create", ctx, mock.AnythingOfType("*models.Member")).Return(nil)

	_, err := service.AddMembers(ctx, 3, "254700000001", []MemberInput{{Phone: "254700000002"}})

	assert.NoError(t, err)
	assert.True(t, lookupBeforeBegin, "account lookup ran inside the open transaction")
}

func TestFundService_CreateFund_LookupRunsBeforeTransaction(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockFundRepo := new(MockFundRepository)
	mockMemberRepo := new(MockMemberRepository)
	mockLedger := new(MockLedgerClient)
	mockLookup := new(MockAccountLookup)

	mockUoW.SetRepositories(mockFundRepo, mockMemberRepo, new(MockCycleRepository),
		new(MockContributionRequestRepository), new(MockPayoutRepository))
	mockFactory.On("Create").Return(mockUoW)

	var lookupDone, lookupBeforeBegin bool
	mockLookup.On("FindAccountByPhone", ctx, "254700000001").
		Run(func(mock.Arguments) { lookupDone = true }).
		Return(nil, nil)
	mockUoW.On("Begin", ctx).
		Run(func(mock.Arguments) { lookupBeforeBegin = lookupDone }).
		Return(nil).Once()
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	service := NewFundService(mockFactory, mockLedger, mockLookup, testConfig())

	mockFundRepo.On("Create", ctx, mock.AnythingOfType("*models.Fund")).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Fund).ID = 9
	})
	mockMemberRepo.On("Create", ctx, mock.AnythingOfType("*models.Member")).Return(nil)
	mockFundRepo.On("GetByID", ctx, int64(9)).Return(&models.Fund{ID: 9, Name: "x"}, nil)
	account := &payments.CollectionAccount{AccountID: "ACC-9", SubLedgerID: "SL-9"}
	mockLedger.On("CreateCollectionAccount", ctx, "fund", int64(9), mock.Anything, mock.Anything).
		Return(account, nil)
	mockFundRepo.On("SetCollectionAccount", ctx, int64(9), account).Return(nil)

	_, err := service.CreateFund(ctx, CreateFundInput{
		Name:               "x",
		CreatorPhone:       "254700000001",
		ContributionAmount: 500,
		Frequency:          models.FrequencyWeekly,
		RotationType:       models.RotationSequential,
	})

	assert.NoError(t, err)
	assert.True(t, lookupBeforeBegin, "account lookup ran inside the open transaction")
}

func TestFundService_AddMembers_NotAdmin(t *testing.T) {
	ctx := context.Background()

	_, mockFactory, mockFundRepo, mockMemberRepo, _ := setupFundServiceMocks()
	service := NewFundService(mockFactory, new(MockLedgerClient), new(MockAccountLookup), testConfig())

	fund := &models.Fund{ID: 3, Status: models.FundStatusActive}
	regular := &models.Member{ID: 2, FundID: 3, Phone: "254700000002", Role: models.MemberRoleMember}

	mockFundRepo.On("GetByID", ctx, int64(3)).Return(fund, nil)
	mockMemberRepo.On("GetByPhone", ctx, int64(3), "254700000002").Return(regular, nil)

	members, err := service.AddMembers(ctx, 3, "254700000002", []MemberInput{{Phone: "254700000009"}})

	assert.Nil(t, members)
	var authErr *AuthorizationError
	assert.ErrorAs(t, err, &authErr)
	mockMemberRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestFundService_ShuffleRotation(t *testing.T) {
	ctx := context.Background()

	_, mockFactory, mockFundRepo, mockMemberRepo, _ := setupFundServiceMocks()
	service := NewFundService(mockFactory, new(MockLedgerClient), new(MockAccountLookup), testConfig())

	fund := &models.Fund{ID: 5, Status: models.FundStatusActive, RotationType: models.RotationRandom}
	admin := &models.Member{ID: 1, FundID: 5, Phone: "254700000001", Role: models.MemberRoleAdmin, RotationPosition: 1}
	roster := []*models.Member{
		admin,
		{ID: 2, FundID: 5, RotationPosition: 2},
		{ID: 3, FundID: 5, RotationPosition: 3},
		{ID: 4, FundID: 5, RotationPosition: 4},
	}

	mockFundRepo.On("GetByID", ctx, int64(5)).Return(fund, nil)
	mockMemberRepo.On("GetByPhone", ctx, int64(5), "254700000001").Return(admin, nil)
	mockMemberRepo.On("GetByFund", ctx, int64(5)).Return(roster, nil)

	mockMemberRepo.On("ReassignPositions", ctx, int64(5), mock.MatchedBy(func(positions map[int64]int) bool {
		// The new assignment must be a permutation of 1..4
		if len(positions) != 4 {
			return false
		}
		seen := make(map[int]bool)
		for _, p := range positions {
			if p < 1 || p > 4 || seen[p] {
				return false
			}
			seen[p] = true
		}
		return true
	})).Return(nil)

	members, err := service.ShuffleRotation(ctx, 5, "254700000001")

	assert.NoError(t, err)
	assert.Len(t, members, 4)
	mockMemberRepo.AssertExpectations(t)
}

func TestFundService_ShuffleRotation_SequentialFund(t *testing.T) {
	ctx := context.Background()

	_, mockFactory, mockFundRepo, mockMemberRepo, _ := setupFundServiceMocks()
	service := NewFundService(mockFactory, new(MockLedgerClient), new(MockAccountLookup), testConfig())

	fund := &models.Fund{ID: 5, Status: models.FundStatusActive, RotationType: models.RotationSequential}
	admin := &models.Member{ID: 1, FundID: 5, Phone: "254700000001", Role: models.MemberRoleAdmin}

	mockFundRepo.On("GetByID", ctx, int64(5)).Return(fund, nil)
	mockMemberRepo.On("GetByPhone", ctx, int64(5), "254700000001").Return(admin, nil)

	members, err := service.ShuffleRotation(ctx, 5, "254700000001")

	assert.Nil(t, members)
	var conflictErr *StateConflictError
	assert.ErrorAs(t, err, &conflictErr)
	mockMemberRepo.AssertNotCalled(t, "ReassignPositions", mock.Anything, mock.Anything, mock.Anything)
}
