package service

import (
	"context"
	"fmt"
	"time"

	"chamapool/config"
	"chamapool/events"
	"chamapool/models"
	"chamapool/payments"

	log "github.com/sirupsen/logrus"
)

type reconciliationService struct {
	uowFactory UnitOfWorkFactory
	feed       SettlementFeed
	config     *config.Config
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(uowFactory UnitOfWorkFactory, feed SettlementFeed, cfg *config.Config) ReconciliationService {
	return &reconciliationService{
		uowFactory: uowFactory,
		feed:       feed,
		config:     cfg,
	}
}

// settlementMatch pairs a feed entry with the open request it settles
type settlementMatch struct {
	request *models.ContributionRequest
	entry   payments.SettlementEntry
}

// SweepFund reconciles one fund's open requests against the settlement feed,
// expires requests past the grace period and closes the cycle once its
// collection target is met. Safe to re-run: completion is a conditional
// status write and only the winning transition credits balances.
func (s *reconciliationService) SweepFund(ctx context.Context, fundID int64) (*models.SweepSummary, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	fund, err := requireFund(ctx, uow, fundID)
	if err != nil {
		uow.Rollback()
		return nil, err
	}

	cycle, err := uow.CycleRepository().GetOpenByFund(ctx, fundID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to load open cycle: %w", err)
	}
	summary := &models.SweepSummary{FundID: fundID}
	if cycle == nil || !cycle.IsCollecting() {
		uow.Rollback()
		return summary, nil
	}

	open, err := uow.ContributionRequestRepository().GetOpenByCycle(ctx, cycle.ID)
	if err != nil {
		uow.Rollback()
		return nil, fmt.Errorf("failed to load open requests: %w", err)
	}
	uow.Rollback()

	now := time.Now()
	var matches []settlementMatch
	if len(open) > 0 {
		entries, err := s.feed.ListSettlements(ctx, now.Add(-s.config.SettlementLookback), now)
		if err != nil {
			return nil, &ExternalServiceError{Service: "settlement feed", Err: err}
		}
		matches = matchSettlements(entries, open, s.config.PhoneSuffixMatchLength)
		summary.WindowMatched = len(matches)
	}

	if err := s.applySweep(ctx, fund, cycle, matches, now, summary); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"fundID":   fundID,
		"cycleID":  cycle.ID,
		"matched":  summary.WindowMatched,
		"credited": summary.Credited,
		"expired":  summary.Expired,
		"advanced": summary.CyclesAdvanced,
	}).Info("Reconciliation sweep finished")

	return summary, nil
}

// matchSettlements pairs feed entries with open requests. An exact account
// number match wins; otherwise the entry falls back to a phone suffix match
// against the earliest-created open request. Both paths require the settled
// amount to equal the requested amount, so a partial payment never marks a
// request completed. Each entry and each request is consumed at most once.
func matchSettlements(entries []payments.SettlementEntry, open []*models.ContributionRequest, suffixLen int) []settlementMatch {
	claimed := make(map[int64]bool, len(open))
	var matches []settlementMatch

	for _, entry := range entries {
		record := models.SettlementRecord{
			AccountNumber: entry.AccountNumber,
			Phone:         entry.Phone,
			ReceiptRef:    entry.ReceiptRef,
			Amount:        entry.Amount,
			SettledAt:     entry.SettledAt,
		}

		var matched *models.ContributionRequest
		for _, request := range open {
			if claimed[request.ID] || request.AccountNumber == nil || request.Amount != entry.Amount {
				continue
			}
			if record.MatchesAccount(*request.AccountNumber) {
				matched = request
				break
			}
		}
		if matched == nil {
			// open is ordered by creation time, so the fallback picks the
			// oldest plausible request
			for _, request := range open {
				if claimed[request.ID] || request.Amount != entry.Amount {
					continue
				}
				if record.MatchesPhoneSuffix(request.Phone, suffixLen) {
					matched = request
					break
				}
			}
		}
		if matched == nil {
			continue
		}

		claimed[matched.ID] = true
		matches = append(matches, settlementMatch{request: matched, entry: entry})
	}

	return matches
}

// applySweep writes the sweep's effects in one transaction: credit matched
// settlements, expire stale requests, refresh aggregates and close the cycle
// when its target is met
func (s *reconciliationService) applySweep(ctx context.Context, fund *models.Fund, cycle *models.Cycle, matches []settlementMatch, now time.Time, summary *models.SweepSummary) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	for _, match := range matches {
		won, err := uow.ContributionRequestRepository().MarkCompleted(ctx,
			match.request.ID, match.entry.ReceiptRef, match.entry.SettledAt)
		if err != nil {
			return err
		}
		if !won {
			// Another sweep already settled this request
			continue
		}

		if err := uow.MemberRepository().CreditContribution(ctx, match.request.MemberID, match.entry.Amount); err != nil {
			return fmt.Errorf("failed to credit member %d: %w", match.request.MemberID, err)
		}
		if err := uow.CycleRepository().AddCollected(ctx, cycle.ID, match.entry.Amount); err != nil {
			return fmt.Errorf("failed to add to cycle total: %w", err)
		}
		summary.Credited++

		uow.EventBus().Publish(events.ContributionSettledEvent{
			FundID:     fund.ID,
			CycleID:    cycle.ID,
			RequestID:  match.request.ID,
			MemberID:   match.request.MemberID,
			Amount:     match.entry.Amount,
			ReceiptRef: match.entry.ReceiptRef,
		})
	}

	expired, err := uow.ContributionRequestRepository().ExpireOlderThan(ctx, cycle.ID, now.Add(-s.config.SettlementGracePeriod))
	if err != nil {
		return err
	}
	summary.Expired = expired

	if err := refreshCycleAggregates(ctx, uow, cycle.ID); err != nil {
		return err
	}

	closed, err := s.maybeCloseCycle(ctx, uow, fund, cycle.ID)
	if err != nil {
		return err
	}
	if closed {
		summary.CyclesAdvanced = 1
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// maybeCloseCycle moves the cycle to collected once its target is met. With
// require_all_before_payout every request must be completed; otherwise the
// collected amount only has to reach the configured share of the expected
// total.
func (s *reconciliationService) maybeCloseCycle(ctx context.Context, uow UnitOfWork, fund *models.Fund, cycleID int64) (bool, error) {
	cycle, err := uow.CycleRepository().GetByID(ctx, cycleID)
	if err != nil {
		return false, fmt.Errorf("failed to reload cycle: %w", err)
	}
	if cycle == nil || !cycle.IsCollecting() {
		return false, nil
	}

	counts, err := uow.ContributionRequestRepository().CountByStatus(ctx, cycleID)
	if err != nil {
		return false, err
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	var targetMet bool
	if fund.RequireAllBeforePayout {
		targetMet = total > 0 && counts[models.RequestStatusCompleted] == total
	} else {
		targetMet = cycle.MeetsTarget(fund.CollectionThresholdBps)
	}
	if !targetMet {
		return false, nil
	}

	moved, err := uow.CycleRepository().TransitionStatus(ctx, cycleID, models.CycleStatusCollecting, models.CycleStatusCollected)
	if err != nil {
		return false, err
	}
	if !moved {
		return false, nil
	}

	uow.EventBus().Publish(events.CycleStateChangeEvent{
		FundID:   fund.ID,
		CycleID:  cycleID,
		OldState: string(models.CycleStatusCollecting),
		NewState: string(models.CycleStatusCollected),
	})

	return true, nil
}

// SweepAll sweeps every active fund; one fund's failure never blocks the rest
func (s *reconciliationService) SweepAll(ctx context.Context) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	funds, err := uow.FundRepository().GetActive(ctx)
	uow.Rollback()
	if err != nil {
		return fmt.Errorf("failed to load active funds: %w", err)
	}

	for _, fund := range funds {
		if _, err := s.SweepFund(ctx, fund.ID); err != nil {
			log.WithFields(log.Fields{
				"fundID": fund.ID,
				"error":  err,
			}).Error("Sweep failed for fund")
		}
	}

	return nil
}
