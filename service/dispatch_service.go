package service

import (
	"context"
	"fmt"
	"sync"

	"chamapool/config"
	"chamapool/events"
	"chamapool/models"

	log "github.com/sirupsen/logrus"
)

type dispatchService struct {
	uowFactory UnitOfWorkFactory
	pushGw     PushGateway
	config     *config.Config
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(uowFactory UnitOfWorkFactory, pushGw PushGateway, cfg *config.Config) DispatchService {
	return &dispatchService{
		uowFactory: uowFactory,
		pushGw:     pushGw,
		config:     cfg,
	}
}

// pushOutcome is the resolved result of one push attempt. Gateway errors
// produce no outcome at all; the request stays pending with its attempt
// count untouched because the processor may still deliver the prompt.
type pushOutcome struct {
	requestID      int64
	memberID       int64
	amount         int64
	status         models.RequestStatus
	correlationRef *string
	accountNumber  *string
	errorDetail    *string
}

// DispatchCycle issues one push request per member of a collecting cycle, in
// parallel, and records each resolved outcome. Re-running it is safe: members
// who already have a request are skipped and only pending requests are pushed.
func (s *dispatchService) DispatchCycle(ctx context.Context, cycleID int64) (*models.DispatchSummary, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	cycle, err := uow.CycleRepository().GetByID(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}
	if cycle == nil {
		return nil, &NotFoundError{Entity: "cycle", ID: cycleID}
	}
	if !cycle.IsCollecting() {
		return nil, &StateConflictError{Entity: "cycle", Current: string(cycle.Status), Action: "dispatch requests for"}
	}

	fund, err := requireFund(ctx, uow, cycle.FundID)
	if err != nil {
		return nil, err
	}
	if !fund.HasProvisionedAccount() {
		return nil, fmt.Errorf("fund %d has no collection account: %w", fund.ID, ErrInvalidConfiguration)
	}

	members, err := uow.MemberRepository().GetByFund(ctx, cycle.FundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}

	existing, err := uow.ContributionRequestRepository().GetByCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing requests: %w", err)
	}
	requested := make(map[int64]bool, len(existing))
	for _, request := range existing {
		requested[request.MemberID] = true
	}

	var toPush []*models.ContributionRequest
	for _, member := range members {
		if requested[member.ID] {
			continue
		}
		request := &models.ContributionRequest{
			CycleID:     cycleID,
			MemberID:    member.ID,
			FundID:      cycle.FundID,
			Phone:       member.Phone,
			Amount:      fund.ContributionAmount,
			MaxAttempts: s.config.DefaultMaxAttempts,
			Status:      models.RequestStatusPending,
		}
		if err := uow.ContributionRequestRepository().Create(ctx, request); err != nil {
			return nil, fmt.Errorf("failed to create request for member %d: %w", member.ID, err)
		}
		toPush = append(toPush, request)
	}
	for _, request := range existing {
		if request.Status == models.RequestStatusPending {
			toPush = append(toPush, request)
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	outcomes := s.pushAll(ctx, fund, toPush)

	return s.recordOutcomes(ctx, cycleID, len(toPush), outcomes)
}

// pushAll fans the push calls out concurrently. Each slot is written by
// exactly one goroutine; nil slots are unknown outcomes.
func (s *dispatchService) pushAll(ctx context.Context, fund *models.Fund, requests []*models.ContributionRequest) []*pushOutcome {
	outcomes := make([]*pushOutcome, len(requests))

	var wg sync.WaitGroup
	for i, request := range requests {
		wg.Add(1)
		go func(i int, request *models.ContributionRequest) {
			defer wg.Done()
			outcomes[i] = s.pushOne(ctx, fund, request)
		}(i, request)
	}
	wg.Wait()

	return outcomes
}

// pushOne issues a single push payment and classifies the response. A
// transport error or timeout returns nil: the outcome is unknown and must not
// be recorded as a failure.
func (s *dispatchService) pushOne(ctx context.Context, fund *models.Fund, request *models.ContributionRequest) *pushOutcome {
	result, err := s.pushGw.InitiatePush(ctx, request.Phone, request.Amount, fund.Currency, *fund.AccountID, *fund.SubLedgerID)
	if err != nil {
		log.WithFields(log.Fields{
			"requestID": request.ID,
			"memberID":  request.MemberID,
			"error":     err,
		}).Warn("Push outcome unknown, request stays pending")
		return nil
	}

	outcome := &pushOutcome{
		requestID: request.ID,
		memberID:  request.MemberID,
		amount:    request.Amount,
	}
	if result.Success {
		outcome.status = models.RequestStatusSent
		if result.CorrelationRef != "" {
			outcome.correlationRef = &result.CorrelationRef
		}
		if result.AccountNumber != "" {
			outcome.accountNumber = &result.AccountNumber
		}
	} else {
		outcome.status = models.RequestStatusFailed
		detail := result.Message
		if detail == "" {
			detail = "push rejected by processor"
		}
		outcome.errorDetail = &detail
	}
	return outcome
}

// recordOutcomes persists resolved push outcomes and refreshes the cycle's
// per-status counts
func (s *dispatchService) recordOutcomes(ctx context.Context, cycleID int64, total int, outcomes []*pushOutcome) (*models.DispatchSummary, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	summary := &models.DispatchSummary{CycleID: cycleID, Total: total}
	for _, outcome := range outcomes {
		if outcome == nil {
			summary.Pending++
			continue
		}

		won, err := uow.ContributionRequestRepository().MarkDispatched(ctx,
			outcome.requestID, outcome.status, outcome.correlationRef, outcome.accountNumber, outcome.errorDetail)
		if err != nil {
			return nil, err
		}
		if !won {
			// The request was cancelled or settled while the push was in
			// flight; its outcome no longer applies
			log.WithFields(log.Fields{
				"cycleID":   cycleID,
				"requestID": outcome.requestID,
			}).Info("Push outcome discarded, request no longer open")
			summary.Skipped++
			continue
		}

		switch outcome.status {
		case models.RequestStatusSent:
			summary.Sent++
		case models.RequestStatusFailed:
			summary.Failed++
		}

		uow.EventBus().Publish(events.RequestDispatchedEvent{
			CycleID:   cycleID,
			RequestID: outcome.requestID,
			MemberID:  outcome.memberID,
			Amount:    outcome.amount,
			Status:    string(outcome.status),
		})
	}

	if err := refreshCycleAggregates(ctx, uow, cycleID); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"cycleID": cycleID,
		"total":   summary.Total,
		"sent":    summary.Sent,
		"failed":  summary.Failed,
		"pending": summary.Pending,
		"skipped": summary.Skipped,
	}).Info("Cycle dispatch recorded")

	return summary, nil
}

// refreshCycleAggregates recomputes the cycle's member counts from the
// request table inside the caller's transaction
func refreshCycleAggregates(ctx context.Context, uow UnitOfWork, cycleID int64) error {
	counts, err := uow.ContributionRequestRepository().CountByStatus(ctx, cycleID)
	if err != nil {
		return err
	}

	paid := counts[models.RequestStatusCompleted]
	pending := counts[models.RequestStatusPending] + counts[models.RequestStatusSent]
	failed := counts[models.RequestStatusFailed] + counts[models.RequestStatusExpired]

	if err := uow.CycleRepository().UpdateAggregates(ctx, cycleID, paid, pending, failed); err != nil {
		return fmt.Errorf("failed to update cycle aggregates: %w", err)
	}
	return nil
}
