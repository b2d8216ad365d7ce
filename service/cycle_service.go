package service

import (
	"context"
	"fmt"
	"time"

	"chamapool/events"
	"chamapool/models"

	log "github.com/sirupsen/logrus"
)

type cycleService struct {
	uowFactory UnitOfWorkFactory
	dispatch   DispatchService
}

// NewCycleService creates a new cycle service
func NewCycleService(uowFactory UnitOfWorkFactory, dispatch DispatchService) CycleService {
	return &cycleService{
		uowFactory: uowFactory,
		dispatch:   dispatch,
	}
}

// StartCycle opens a new collecting cycle for the fund and fans out
// contribution requests to every member. Admin only.
func (s *cycleService) StartCycle(ctx context.Context, fundID int64, actorPhone string) (*models.Cycle, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	fund, err := requireFund(ctx, uow, fundID)
	if err != nil {
		return nil, err
	}
	if _, err := requireAdmin(ctx, uow, fund, actorPhone, "start a cycle"); err != nil {
		return nil, err
	}

	cycle, err := s.openCycle(ctx, uow, fund, time.Now())
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Push dispatch talks to the payment processor and runs outside the
	// transaction. A dispatch failure leaves the cycle collecting with its
	// requests pending; the retry path re-drives them.
	if _, err := s.dispatch.DispatchCycle(ctx, cycle.ID); err != nil {
		log.WithFields(log.Fields{
			"fundID":  fundID,
			"cycleID": cycle.ID,
			"error":   err,
		}).Warn("Dispatch after cycle start failed, requests stay pending")
	}

	return cycle, nil
}

// openCycle creates the cycle row and advances the fund's schedule inside the
// caller's transaction. The partial unique index on open cycles per fund makes
// concurrent opens fail cleanly.
func (s *cycleService) openCycle(ctx context.Context, uow UnitOfWork, fund *models.Fund, now time.Time) (*models.Cycle, error) {
	if !fund.IsActive() {
		return nil, &StateConflictError{Entity: "fund", Current: string(fund.Status), Action: "start a cycle for"}
	}
	if !fund.HasProvisionedAccount() {
		return nil, fmt.Errorf("fund %d has no collection account: %w", fund.ID, ErrInvalidConfiguration)
	}
	if fund.IsPeriodic() && fund.ContributionAmount <= 0 {
		return nil, fmt.Errorf("fund %d has no contribution amount for %s collection: %w",
			fund.ID, fund.Frequency, ErrInvalidConfiguration)
	}

	open, err := uow.CycleRepository().GetOpenByFund(ctx, fund.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for open cycle: %w", err)
	}
	if open != nil {
		return nil, &StateConflictError{Entity: "cycle", Current: string(open.Status), Action: "start another cycle over"}
	}

	members, err := uow.MemberRepository().GetByFund(ctx, fund.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	if len(members) < 2 {
		return nil, fmt.Errorf("fund %d has %d members, need at least 2: %w", fund.ID, len(members), ErrInvalidConfiguration)
	}

	recipient, err := RecipientForIndex(members, fund.CurrentRotationIndex)
	if err != nil {
		return nil, err
	}

	cycle := &models.Cycle{
		FundID:         fund.ID,
		CycleNumber:    fund.CurrentCycle + 1,
		ExpectedAmount: fund.ContributionAmount * int64(len(members)),
		Status:         models.CycleStatusCollecting,
		StartedAt:      now,
	}
	if err := uow.CycleRepository().Create(ctx, cycle); err != nil {
		return nil, fmt.Errorf("failed to create cycle: %w", err)
	}

	if err := uow.CycleRepository().SetRecipient(ctx, cycle.ID, recipient.ID); err != nil {
		return nil, fmt.Errorf("failed to set cycle recipient: %w", err)
	}
	cycle.RecipientMemberID = &recipient.ID

	fund.CurrentCycle = cycle.CycleNumber
	fund.NextCollectionDate = fund.NextCollectionAfter(now)
	if err := uow.FundRepository().Update(ctx, fund); err != nil {
		return nil, fmt.Errorf("failed to advance fund schedule: %w", err)
	}

	uow.EventBus().Publish(events.CycleStateChangeEvent{
		FundID:   fund.ID,
		CycleID:  cycle.ID,
		OldState: "",
		NewState: string(models.CycleStatusCollecting),
	})

	log.WithFields(log.Fields{
		"fundID":      fund.ID,
		"cycleID":     cycle.ID,
		"cycleNumber": cycle.CycleNumber,
		"recipientID": recipient.ID,
		"expected":    cycle.ExpectedAmount,
	}).Info("Cycle opened")

	return cycle, nil
}

// StopCollection cancels the open cycle and all of its open requests. Settled
// contributions keep their records; nothing is reversed.
func (s *cycleService) StopCollection(ctx context.Context, fundID int64, actorPhone string) (*models.Cycle, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	fund, err := requireFund(ctx, uow, fundID)
	if err != nil {
		return nil, err
	}
	if _, err := requireAdmin(ctx, uow, fund, actorPhone, "stop collection"); err != nil {
		return nil, err
	}

	cycle, err := uow.CycleRepository().GetOpenByFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open cycle: %w", err)
	}
	if cycle == nil {
		return nil, &NotFoundError{Entity: "open cycle for fund", ID: fundID}
	}

	moved, err := uow.CycleRepository().TransitionStatus(ctx, cycle.ID, cycle.Status, models.CycleStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel cycle: %w", err)
	}
	if !moved {
		return nil, &StateConflictError{Entity: "cycle", Current: string(cycle.Status), Action: "cancel"}
	}

	cancelled, err := uow.ContributionRequestRepository().CancelOpenByCycle(ctx, cycle.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel open requests: %w", err)
	}

	uow.EventBus().Publish(events.CycleStateChangeEvent{
		FundID:   fundID,
		CycleID:  cycle.ID,
		OldState: string(cycle.Status),
		NewState: string(models.CycleStatusCancelled),
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"fundID":            fundID,
		"cycleID":           cycle.ID,
		"requestsCancelled": cancelled,
	}).Info("Collection stopped")

	cycle.Status = models.CycleStatusCancelled
	return cycle, nil
}

// GetActiveCycle returns the fund's open cycle
func (s *cycleService) GetActiveCycle(ctx context.Context, fundID int64) (*models.Cycle, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if _, err := requireFund(ctx, uow, fundID); err != nil {
		return nil, err
	}

	cycle, err := uow.CycleRepository().GetOpenByFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open cycle: %w", err)
	}
	return cycle, nil
}

// OpenDueCycles starts cycles for every fund whose scheduled collection date
// has passed. Called by the scheduler; one fund's failure never blocks the rest.
func (s *cycleService) OpenDueCycles(ctx context.Context, asOf time.Time) (int, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	due, err := uow.FundRepository().GetDueForCollection(ctx, asOf)
	uow.Rollback()
	if err != nil {
		return 0, fmt.Errorf("failed to load due funds: %w", err)
	}

	opened := 0
	for _, fund := range due {
		cycle, err := s.openDueCycle(ctx, fund, asOf)
		if err != nil {
			log.WithFields(log.Fields{
				"fundID": fund.ID,
				"error":  err,
			}).Warn("Failed to open scheduled cycle")
			continue
		}
		opened++

		if _, err := s.dispatch.DispatchCycle(ctx, cycle.ID); err != nil {
			log.WithFields(log.Fields{
				"fundID":  fund.ID,
				"cycleID": cycle.ID,
				"error":   err,
			}).Warn("Dispatch after scheduled cycle start failed")
		}
	}

	return opened, nil
}

func (s *cycleService) openDueCycle(ctx context.Context, fund *models.Fund, asOf time.Time) (*models.Cycle, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	cycle, err := s.openCycle(ctx, uow, fund, asOf)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return cycle, nil
}
