package service

import (
	"context"
	"fmt"

	"chamapool/events"
	"chamapool/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type distributionService struct {
	uowFactory UnitOfWorkFactory
	payoutGw   PayoutGateway
}

// NewDistributionService creates a new distribution service
func NewDistributionService(uowFactory UnitOfWorkFactory, payoutGw PayoutGateway) DistributionService {
	return &distributionService{
		uowFactory: uowFactory,
		payoutGw:   payoutGw,
	}
}

// Distribute pays the cycle's collected funds to the rotation recipient and
// advances the fund. The conditional move to distributing makes the caller
// the cycle's single writer, so at most one payout ever completes per cycle
// no matter how many admins press the button.
func (s *distributionService) Distribute(ctx context.Context, fundID int64, actorPhone string) (*models.DistributionResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	fund, err := requireFund(ctx, uow, fundID)
	if err != nil {
		return nil, err
	}
	if _, err := requireAdmin(ctx, uow, fund, actorPhone, "distribute"); err != nil {
		return nil, err
	}

	cycle, err := uow.CycleRepository().GetOpenByFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open cycle: %w", err)
	}
	if cycle == nil {
		return nil, &NotFoundError{Entity: "open cycle for fund", ID: fundID}
	}

	if cycle.IsCollecting() {
		// Let an admin pay out early once the target is met, without
		// waiting for the next sweep to close the cycle
		if !s.targetMet(ctx, uow, fund, cycle) {
			return nil, fmt.Errorf("cycle %d collected %d of %d: %w",
				cycle.ID, cycle.CollectedAmount, cycle.ExpectedAmount, ErrCollectionIncomplete)
		}
		moved, err := uow.CycleRepository().TransitionStatus(ctx, cycle.ID, models.CycleStatusCollecting, models.CycleStatusCollected)
		if err != nil {
			return nil, err
		}
		if !moved {
			return nil, &StateConflictError{Entity: "cycle", Current: string(cycle.Status), Action: "distribute"}
		}
		cycle.Status = models.CycleStatusCollected
	}
	if !cycle.IsCollected() {
		return nil, &StateConflictError{Entity: "cycle", Current: string(cycle.Status), Action: "distribute"}
	}

	existing, err := uow.PayoutRepository().GetByCycle(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsCompleted() {
		return nil, ErrAlreadyCompleted
	}
	if existing != nil && existing.Status == models.PayoutStatusPending {
		// A previous attempt died with the gateway outcome unknown.
		// Resolving it needs the processor's records, not a second payout.
		return nil, &StateConflictError{Entity: "payout", Current: string(existing.Status), Action: "issue another payout over"}
	}

	if cycle.RecipientMemberID == nil {
		return nil, fmt.Errorf("cycle %d has no recipient: %w", cycle.ID, ErrInvalidConfiguration)
	}
	recipient, err := uow.MemberRepository().GetByID(ctx, *cycle.RecipientMemberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}
	if recipient == nil {
		return nil, &NotFoundError{Entity: "member", ID: *cycle.RecipientMemberID}
	}

	moved, err := uow.CycleRepository().TransitionStatus(ctx, cycle.ID, models.CycleStatusCollected, models.CycleStatusDistributing)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, &StateConflictError{Entity: "cycle", Current: string(cycle.Status), Action: "distribute"}
	}

	payout := &models.Payout{
		CycleID:   cycle.ID,
		FundID:    fundID,
		MemberID:  recipient.ID,
		Amount:    cycle.CollectedAmount,
		Reference: uuid.NewString(),
		Status:    models.PayoutStatusPending,
	}
	if err := uow.PayoutRepository().Create(ctx, payout); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.CycleStateChangeEvent{
		FundID:   fundID,
		CycleID:  cycle.ID,
		OldState: string(models.CycleStatusCollected),
		NewState: string(models.CycleStatusDistributing),
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.executePayout(ctx, fund, cycle, payout, recipient)
}

// targetMet applies the fund's payout gate to a collecting cycle
func (s *distributionService) targetMet(ctx context.Context, uow UnitOfWork, fund *models.Fund, cycle *models.Cycle) bool {
	if !fund.RequireAllBeforePayout {
		return cycle.MeetsTarget(fund.CollectionThresholdBps)
	}
	counts, err := uow.ContributionRequestRepository().CountByStatus(ctx, cycle.ID)
	if err != nil {
		return false
	}
	total := 0
	for _, count := range counts {
		total += count
	}
	return total > 0 && counts[models.RequestStatusCompleted] == total
}

// executePayout calls the payout gateway outside any transaction and then
// finalizes the cycle. Either failure mode leaves the cycle in distributing
// for manual resolution: on a gateway error the payout also stays pending
// because the outcome is unknown, on an explicit rejection it is marked
// failed with the processor's reason.
func (s *distributionService) executePayout(ctx context.Context, fund *models.Fund, cycle *models.Cycle, payout *models.Payout, recipient *models.Member) (*models.DistributionResult, error) {
	result, err := s.payoutGw.Payout(ctx, *fund.AccountID, recipient.Phone, payout.Amount, payout.Reference)
	if err != nil {
		log.WithFields(log.Fields{
			"fundID":   fund.ID,
			"cycleID":  cycle.ID,
			"payoutID": payout.ID,
			"error":    err,
		}).Error("Payout outcome unknown, manual resolution required")
		return nil, &ExternalServiceError{Service: "payout gateway", Err: err}
	}

	if !result.Success {
		detail := result.Message
		if detail == "" {
			detail = "payout rejected by processor"
		}
		if err := s.recordPayoutFailure(ctx, payout.ID, detail); err != nil {
			return nil, err
		}
		return nil, &ExternalServiceError{Service: "payout gateway", Err: fmt.Errorf("payout rejected: %s", detail)}
	}

	return s.finalize(ctx, fund, cycle, payout, recipient, result.TransactionRef)
}

// recordPayoutFailure marks the payout failed. The cycle stays in
// distributing; an admin resolves it against the processor's records.
func (s *distributionService) recordPayoutFailure(ctx context.Context, payoutID int64, detail string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.PayoutRepository().MarkFailed(ctx, payoutID, detail); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// finalize completes the payout and the cycle, advances the rotation pointer
// and closes the fund after its final cycle
func (s *distributionService) finalize(ctx context.Context, fund *models.Fund, cycle *models.Cycle, payout *models.Payout, recipient *models.Member, transactionRef string) (*models.DistributionResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	won, err := uow.PayoutRepository().MarkCompleted(ctx, payout.ID, transactionRef)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrAlreadyCompleted
	}

	if err := uow.MemberRepository().RecordPayout(ctx, recipient.ID, payout.Amount); err != nil {
		return nil, fmt.Errorf("failed to record recipient payout: %w", err)
	}

	if _, err := uow.CycleRepository().TransitionStatus(ctx, cycle.ID, models.CycleStatusDistributing, models.CycleStatusCompleted); err != nil {
		return nil, err
	}

	members, err := uow.MemberRepository().GetByFund(ctx, fund.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}

	fundCompleted := fund.IsFinalCycle()
	fund.CurrentRotationIndex = NextRotationIndex(fund.CurrentRotationIndex, len(members))
	if fundCompleted {
		fund.Status = models.FundStatusCompleted
		fund.NextCollectionDate = nil
	}
	if err := uow.FundRepository().Update(ctx, fund); err != nil {
		return nil, fmt.Errorf("failed to advance fund rotation: %w", err)
	}

	uow.EventBus().Publish(events.CycleStateChangeEvent{
		FundID:   fund.ID,
		CycleID:  cycle.ID,
		OldState: string(models.CycleStatusDistributing),
		NewState: string(models.CycleStatusCompleted),
	})
	uow.EventBus().Publish(events.PayoutCompletedEvent{
		FundID:         fund.ID,
		CycleID:        cycle.ID,
		PayoutID:       payout.ID,
		RecipientID:    recipient.ID,
		Amount:         payout.Amount,
		TransactionRef: transactionRef,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"fundID":        fund.ID,
		"cycleID":       cycle.ID,
		"recipientID":   recipient.ID,
		"amount":        payout.Amount,
		"fundCompleted": fundCompleted,
	}).Info("Cycle distributed")

	payout.Status = models.PayoutStatusCompleted
	payout.TransactionRef = &transactionRef
	cycle.Status = models.CycleStatusCompleted

	return &models.DistributionResult{
		Cycle:         cycle,
		Payout:        payout,
		Recipient:     recipient,
		FundCompleted: fundCompleted,
	}, nil
}
