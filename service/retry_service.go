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

type retryService struct {
	uowFactory UnitOfWorkFactory
	pushGw     PushGateway
	config     *config.Config
}

// NewRetryService creates a new retry service
func NewRetryService(uowFactory UnitOfWorkFactory, pushGw PushGateway, cfg *config.Config) RetryService {
	return &retryService{
		uowFactory: uowFactory,
		pushGw:     pushGw,
		config:     cfg,
	}
}

// RetryRequest re-issues a single request's push payment. Admin only; the
// request must be open with attempts remaining and its cycle still collecting.
func (s *retryService) RetryRequest(ctx context.Context, requestID int64, actorPhone string) (*models.ContributionRequest, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	request, err := uow.ContributionRequestRepository().GetByID(ctx, requestID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get contribution request: %w", err)
	}
	if request == nil {
		uow.Rollback()
		return nil, &NotFoundError{Entity: "contribution request", ID: requestID}
	}

	fund, err := requireFund(ctx, uow, request.FundID)
	if err != nil {
		uow.Rollback()
		return nil, err
	}
	if _, err := requireAdmin(ctx, uow, fund, actorPhone, "retry a contribution request"); err != nil {
		uow.Rollback()
		return nil, err
	}

	cycle, err := uow.CycleRepository().GetByID(ctx, request.CycleID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}
	uow.Rollback()

	if err := retryable(request, cycle); err != nil {
		return nil, err
	}

	if err := s.pushAndRecord(ctx, fund, request); err != nil {
		return nil, err
	}

	uow = s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()
	return uow.ContributionRequestRepository().GetByID(ctx, requestID)
}

// retryable checks the preconditions for re-driving a request
func retryable(request *models.ContributionRequest, cycle *models.Cycle) error {
	if cycle == nil || !cycle.IsCollecting() {
		current := "missing"
		if cycle != nil {
			current = string(cycle.Status)
		}
		return &StateConflictError{Entity: "cycle", Current: current, Action: "retry a request of"}
	}
	if request.IsCompleted() {
		return ErrAlreadyCompleted
	}
	if !request.IsOpen() {
		return &StateConflictError{Entity: "contribution request", Current: string(request.Status), Action: "retry"}
	}
	if !request.HasAttemptsLeft() {
		return &RetryExhaustedError{RequestID: request.ID, Attempts: request.AttemptCount}
	}
	return nil
}

// pushAndRecord issues the push outside any transaction, then records the
// resolved outcome. A gateway error leaves the request untouched because the
// outcome is unknown.
func (s *retryService) pushAndRecord(ctx context.Context, fund *models.Fund, request *models.ContributionRequest) error {
	result, err := s.pushGw.InitiatePush(ctx, request.Phone, request.Amount, fund.Currency, *fund.AccountID, *fund.SubLedgerID)
	if err != nil {
		return &ExternalServiceError{Service: "push gateway", Err: err}
	}

	status := models.RequestStatusSent
	var correlationRef, accountNumber, errorDetail *string
	if result.Success {
		if result.CorrelationRef != "" {
			correlationRef = &result.CorrelationRef
		}
		if result.AccountNumber != "" {
			accountNumber = &result.AccountNumber
		}
	} else {
		status = models.RequestStatusFailed
		detail := result.Message
		if detail == "" {
			detail = "push rejected by processor"
		}
		errorDetail = &detail
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	won, err := uow.ContributionRequestRepository().MarkDispatched(ctx, request.ID, status, correlationRef, accountNumber, errorDetail)
	if err != nil {
		return err
	}
	if !won {
		// The request was cancelled or settled while the push was in
		// flight; its outcome no longer applies
		log.WithFields(log.Fields{
			"requestID": request.ID,
		}).Info("Push outcome discarded, request no longer open")
	}

	if err := refreshCycleAggregates(ctx, uow, request.CycleID); err != nil {
		return err
	}

	if won {
		uow.EventBus().Publish(events.RequestDispatchedEvent{
			CycleID:   request.CycleID,
			RequestID: request.ID,
			MemberID:  request.MemberID,
			Amount:    request.Amount,
			Status:    string(status),
		})
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RetryAll re-issues every retryable request of the fund's active cycle.
// Requests in sent state are skipped: the processor accepted them and a
// second push would risk charging the member twice.
func (s *retryService) RetryAll(ctx context.Context, fundID int64, actorPhone string) (*models.RetrySummary, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	fund, err := requireFund(ctx, uow, fundID)
	if err != nil {
		uow.Rollback()
		return nil, err
	}
	if _, err := requireAdmin(ctx, uow, fund, actorPhone, "retry contribution requests"); err != nil {
		uow.Rollback()
		return nil, err
	}

	cycle, err := uow.CycleRepository().GetOpenByFund(ctx, fundID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to load open cycle: %w", err)
	}
	if cycle == nil || !cycle.IsCollecting() {
		uow.Rollback()
		current := "missing"
		if cycle != nil {
			current = string(cycle.Status)
		}
		return nil, &StateConflictError{Entity: "cycle", Current: current, Action: "retry requests of"}
	}

	open, err := uow.ContributionRequestRepository().GetOpenByCycle(ctx, cycle.ID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to load open requests: %w", err)
	}
	uow.Rollback()

	summary := &models.RetrySummary{CycleID: cycle.ID}
	var toRetry []*models.ContributionRequest
	for _, request := range open {
		if request.Status == models.RequestStatusSent || !request.HasAttemptsLeft() {
			summary.Skipped++
			continue
		}
		toRetry = append(toRetry, request)
	}
	summary.Attempted = len(toRetry)

	// Fan the pushes out concurrently; each slot is written by exactly one
	// goroutine
	pushErrs := make([]error, len(toRetry))
	var wg sync.WaitGroup
	for i, request := range toRetry {
		wg.Add(1)
		go func(i int, request *models.ContributionRequest) {
			defer wg.Done()
			pushErrs[i] = s.pushAndRecord(ctx, fund, request)
		}(i, request)
	}
	wg.Wait()

	for i, request := range toRetry {
		if pushErrs[i] != nil {
			log.WithFields(log.Fields{
				"requestID": request.ID,
				"error":     pushErrs[i],
			}).Warn("Retry push failed, request unchanged")
			continue
		}

		updated, err := s.getRequest(ctx, request.ID)
		if err != nil {
			return nil, err
		}
		switch updated.Status {
		case models.RequestStatusSent:
			summary.Sent++
		case models.RequestStatusFailed:
			summary.Failed++
		}
	}

	log.WithFields(log.Fields{
		"fundID":    fundID,
		"cycleID":   cycle.ID,
		"attempted": summary.Attempted,
		"sent":      summary.Sent,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}).Info("Bulk retry finished")

	return summary, nil
}

func (s *retryService) getRequest(ctx context.Context, id int64) (*models.ContributionRequest, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()
	request, err := uow.ContributionRequestRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, &NotFoundError{Entity: "contribution request", ID: id}
	}
	return request, nil
}
