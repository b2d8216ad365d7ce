package testutil

import (
	"fmt"
	"time"

	"chamapool/models"
)

// CreateTestFund creates a fund with sensible defaults
func CreateTestFund(name, creatorPhone string) *models.Fund {
	return &models.Fund{
		Name:                   name,
		CreatorPhone:           creatorPhone,
		Currency:               "KES",
		ContributionAmount:     1000,
		Frequency:              models.FrequencyWeekly,
		CollectionWeekday:      time.Monday,
		RotationType:           models.RotationSequential,
		CollectionThresholdBps: 10000,
		Status:                 models.FundStatusActive,
	}
}

// CreateTestFundWithAccount creates a fund that already has its collection
// account provisioned
func CreateTestFundWithAccount(name, creatorPhone string) *models.Fund {
	fund := CreateTestFund(name, creatorPhone)
	accountID := "ACC-" + name
	accountName := name + " collections"
	subLedgerID := "SL-" + name
	subLedgerName := name + " sub ledger"
	fund.AccountID = &accountID
	fund.AccountName = &accountName
	fund.SubLedgerID = &subLedgerID
	fund.SubLedgerName = &subLedgerName
	return fund
}

// CreateTestMember creates a member at the given rotation position
func CreateTestMember(fundID int64, position int) *models.Member {
	return &models.Member{
		FundID:           fundID,
		Phone:            fmt.Sprintf("2547000000%02d", position),
		Name:             fmt.Sprintf("member-%d", position),
		Role:             models.MemberRoleMember,
		RotationPosition: position,
		AccountStatus:    models.AccountStatusActive,
	}
}

// CreateTestAdmin creates an admin member at rotation position 1
func CreateTestAdmin(fundID int64, phone string) *models.Member {
	return &models.Member{
		FundID:           fundID,
		Phone:            phone,
		Name:             "admin",
		Role:             models.MemberRoleAdmin,
		RotationPosition: 1,
		AccountStatus:    models.AccountStatusActive,
	}
}

// CreateTestCycle creates a collecting cycle
func CreateTestCycle(fundID int64, cycleNumber int, expectedAmount int64) *models.Cycle {
	return &models.Cycle{
		FundID:         fundID,
		CycleNumber:    cycleNumber,
		ExpectedAmount: expectedAmount,
		Status:         models.CycleStatusCollecting,
		StartedAt:      time.Now(),
	}
}

// CreateTestRequest creates a pending contribution request
func CreateTestRequest(cycleID, memberID, fundID int64, phone string, amount int64) *models.ContributionRequest {
	return &models.ContributionRequest{
		CycleID:     cycleID,
		MemberID:    memberID,
		FundID:      fundID,
		Phone:       phone,
		Amount:      amount,
		MaxAttempts: 3,
		Status:      models.RequestStatusPending,
	}
}
