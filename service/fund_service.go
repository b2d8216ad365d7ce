package service

import (
	"context"
	"fmt"

	"chamapool/config"
	"chamapool/events"
	"chamapool/models"

	log "github.com/sirupsen/logrus"
)

type fundService struct {
	uowFactory UnitOfWorkFactory
	ledger     LedgerClient
	lookup     AccountLookup
	config     *config.Config
}

// NewFundService creates a new fund service
func NewFundService(uowFactory UnitOfWorkFactory, ledger LedgerClient, lookup AccountLookup, cfg *config.Config) FundService {
	return &fundService{
		uowFactory: uowFactory,
		ledger:     ledger,
		lookup:     lookup,
		config:     cfg,
	}
}

// CreateFund validates and creates a fund, enrolling the creator as its admin
// member. Collection account provisioning is best-effort: a ledger outage
// must not block fund creation, so failures are logged and retried later.
func (s *fundService) CreateFund(ctx context.Context, input CreateFundInput) (*models.Fund, error) {
	if input.Name == "" {
		return nil, NewValidationError("name", "cannot be empty")
	}
	if input.CreatorPhone == "" {
		return nil, NewValidationError("creator_phone", "cannot be empty")
	}
	if input.ContributionAmount < 0 {
		return nil, NewValidationError("contribution_amount", "cannot be negative")
	}
	switch input.Frequency {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyBiweekly,
		models.FrequencyMonthly, models.FrequencyCustom, models.FrequencyOneTime,
		models.FrequencyManual:
	default:
		return nil, NewValidationError("frequency", fmt.Sprintf("unknown frequency %q", input.Frequency))
	}
	switch input.RotationType {
	case models.RotationSequential, models.RotationRandom:
	default:
		return nil, NewValidationError("rotation_type", fmt.Sprintf("unknown rotation type %q", input.RotationType))
	}
	if input.Frequency == models.FrequencyCustom && input.CustomDays <= 0 {
		return nil, NewValidationError("custom_days", "must be positive for custom frequency")
	}
	if input.TotalCycles != nil && *input.TotalCycles <= 0 {
		return nil, NewValidationError("total_cycles", "must be positive when set")
	}

	currency := input.Currency
	if currency == "" {
		currency = s.config.DefaultCurrency
	}
	thresholdBps := input.CollectionThresholdBps
	if thresholdBps <= 0 || thresholdBps > 10000 {
		thresholdBps = 10000
	}

	fund := &models.Fund{
		Name:                   input.Name,
		CreatorPhone:           input.CreatorPhone,
		Currency:               currency,
		ContributionAmount:     input.ContributionAmount,
		Frequency:              input.Frequency,
		CustomDays:             input.CustomDays,
		CollectionWeekday:      input.CollectionWeekday,
		RotationType:           input.RotationType,
		RequireAllBeforePayout: input.RequireAllBeforePayout,
		AllowPartialPayment:    input.AllowPartialPayment,
		CollectionThresholdBps: thresholdBps,
		TotalCycles:            input.TotalCycles,
		Status:                 models.FundStatusActive,
	}

	// The account lookup is an external call; it never runs inside a
	// transaction
	creatorStatus := s.resolveAccountStatus(ctx, input.CreatorPhone)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.FundRepository().Create(ctx, fund); err != nil {
		return nil, fmt.Errorf("failed to create fund: %w", err)
	}

	creator := &models.Member{
		FundID:           fund.ID,
		Phone:            input.CreatorPhone,
		Name:             input.CreatorName,
		Role:             models.MemberRoleAdmin,
		RotationPosition: 1,
		AccountStatus:    creatorStatus,
	}
	if err := uow.MemberRepository().Create(ctx, creator); err != nil {
		return nil, fmt.Errorf("failed to enroll fund creator: %w", err)
	}

	uow.EventBus().Publish(events.FundCreatedEvent{
		FundID:       fund.ID,
		Name:         fund.Name,
		CreatorPhone: fund.CreatorPhone,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.ProvisionAccount(ctx, fund.ID); err != nil {
		log.WithFields(log.Fields{
			"fundID": fund.ID,
			"error":  err,
		}).Warn("Collection account provisioning failed, will retry later")
	}

	return fund, nil
}

// ProvisionAccount retries collection account provisioning for a fund
func (s *fundService) ProvisionAccount(ctx context.Context, fundID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	fund, err := uow.FundRepository().GetByID(ctx, fundID)
	if err != nil {
		return fmt.Errorf("failed to get fund: %w", err)
	}
	if fund == nil {
		return &NotFoundError{Entity: "fund", ID: fundID}
	}
	if fund.HasProvisionedAccount() {
		return nil
	}
	uow.Rollback()

	account, err := s.ledger.CreateCollectionAccount(ctx, "fund", fund.ID, fund.Name,
		fmt.Sprintf("collection account for fund %s", fund.Name))
	if err != nil {
		return &ExternalServiceError{Service: "ledger", Err: err}
	}

	uow = s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.FundRepository().SetCollectionAccount(ctx, fundID, account); err != nil {
		return fmt.Errorf("failed to store collection account: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"fundID":    fundID,
		"accountID": account.AccountID,
	}).Info("Collection account provisioned")

	return nil
}

// AddMember adds a member at the next free rotation position
func (s *fundService) AddMember(ctx context.Context, fundID int64, actorPhone string, input MemberInput) (*models.Member, error) {
	members, err := s.AddMembers(ctx, fundID, actorPhone, []MemberInput{input})
	if err != nil {
		return nil, err
	}
	return members[0], nil
}

// AddMembers adds several members in one transaction
func (s *fundService) AddMembers(ctx context.Context, fundID int64, actorPhone string, inputs []MemberInput) ([]*models.Member, error) {
	if len(inputs) == 0 {
		return nil, NewValidationError("members", "no members provided")
	}
	for _, input := range inputs {
		if input.Phone == "" {
			return nil, NewValidationError("phone", "cannot be empty")
		}
	}

	// Resolve account statuses up front so the external lookups never run
	// inside the transaction
	statuses := make([]models.AccountStatus, len(inputs))
	for i, input := range inputs {
		statuses[i] = s.resolveAccountStatus(ctx, input.Phone)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	fund, err := requireFund(ctx, uow, fundID)
	if err != nil {
		return nil, err
	}
	if _, err := requireAdmin(ctx, uow, fund, actorPhone, "add members"); err != nil {
		return nil, err
	}

	existing, err := uow.MemberRepository().GetByFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}

	nextPosition := 0
	for _, member := range existing {
		if member.RotationPosition > nextPosition {
			nextPosition = member.RotationPosition
		}
	}

	var added []*models.Member
	for i, input := range inputs {
		nextPosition++
		member := &models.Member{
			FundID:           fundID,
			Phone:            input.Phone,
			Name:             input.Name,
			Role:             models.MemberRoleMember,
			RotationPosition: nextPosition,
			AccountStatus:    statuses[i],
		}
		if err := uow.MemberRepository().Create(ctx, member); err != nil {
			return nil, fmt.Errorf("failed to add member %s: %w", input.Phone, err)
		}
		added = append(added, member)

		uow.EventBus().Publish(events.MemberAddedEvent{
			FundID:           fundID,
			MemberID:         member.ID,
			Phone:            member.Phone,
			RotationPosition: member.RotationPosition,
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return added, nil
}

// GetFundDetail returns the fund with its members and open cycle
func (s *fundService) GetFundDetail(ctx context.Context, fundID int64) (*models.FundDetail, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	fund, err := requireFund(ctx, uow, fundID)
	if err != nil {
		return nil, err
	}

	members, err := uow.MemberRepository().GetByFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}

	cycle, err := uow.CycleRepository().GetOpenByFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open cycle: %w", err)
	}

	return &models.FundDetail{Fund: fund, Members: members, Cycle: cycle}, nil
}

// ShuffleRotation reassigns rotation positions with a uniform random
// permutation. Only random-rotation funds with at least two members; intended
// to run before the fund starts collecting.
func (s *fundService) ShuffleRotation(ctx context.Context, fundID int64, actorPhone string) ([]*models.Member, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	fund, err := requireFund(ctx, uow, fundID)
	if err != nil {
		return nil, err
	}
	if _, err := requireAdmin(ctx, uow, fund, actorPhone, "shuffle rotation"); err != nil {
		return nil, err
	}

	if fund.RotationType != models.RotationRandom {
		return nil, &StateConflictError{
			Entity:  "fund",
			Current: string(fund.RotationType),
			Action:  "shuffle rotation of",
		}
	}

	members, err := uow.MemberRepository().GetByFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	if len(members) < 2 {
		return nil, NewValidationError("members", "need at least 2 members to shuffle")
	}

	shuffled := ShuffledPositions(len(members))
	positions := make(map[int64]int, len(members))
	for i, member := range members {
		positions[member.ID] = shuffled[i]
		member.RotationPosition = shuffled[i]
	}

	if err := uow.MemberRepository().ReassignPositions(ctx, fundID, positions); err != nil {
		return nil, fmt.Errorf("failed to reassign rotation positions: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"fundID":      fundID,
		"memberCount": len(members),
	}).Info("Rotation order shuffled")

	return members, nil
}

// resolveAccountStatus checks whether a phone maps to a known system account.
// Lookup failures leave the member pending; the status is refreshed later.
func (s *fundService) resolveAccountStatus(ctx context.Context, phone string) models.AccountStatus {
	account, err := s.lookup.FindAccountByPhone(ctx, phone)
	if err != nil {
		log.WithFields(log.Fields{
			"phone": phone,
			"error": err,
		}).Debug("Account lookup failed, member stays pending")
		return models.AccountStatusPending
	}
	if account == nil {
		return models.AccountStatusPending
	}
	return models.AccountStatusActive
}

// requireFund loads a fund or returns NotFoundError
func requireFund(ctx context.Context, uow UnitOfWork, fundID int64) (*models.Fund, error) {
	fund, err := uow.FundRepository().GetByID(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fund: %w", err)
	}
	if fund == nil {
		return nil, &NotFoundError{Entity: "fund", ID: fundID}
	}
	return fund, nil
}

// requireAdmin checks that the actor is an admin member of the fund
func requireAdmin(ctx context.Context, uow UnitOfWork, fund *models.Fund, actorPhone, action string) (*models.Member, error) {
	member, err := uow.MemberRepository().GetByPhone(ctx, fund.ID, actorPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up acting member: %w", err)
	}
	if member == nil || !member.IsAdmin() {
		return nil, &AuthorizationError{Phone: actorPhone, Action: action}
	}
	return member, nil
}
