package cmd

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Distribute pays out a fund's collected cycle to the rotation recipient from
// the command line
func Distribute(ctx context.Context, fundID int64, adminPhone string) error {
	app, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.distributionService.Distribute(ctx, fundID, adminPhone)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"fundID":        fundID,
		"cycleID":       result.Cycle.ID,
		"recipientID":   result.Recipient.ID,
		"amount":        result.Payout.Amount,
		"fundCompleted": result.FundCompleted,
	}).Info("Distribution finished")
	return nil
}

// Retry re-drives a fund's failed contribution requests from the command
// line. With a request ID only that request is retried; otherwise every
// retryable request of the active cycle.
func Retry(ctx context.Context, fundID int64, adminPhone string, requestID *int64) error {
	app, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if requestID != nil {
		request, err := app.retryService.RetryRequest(ctx, *requestID, adminPhone)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"requestID":    request.ID,
			"status":       request.Status,
			"attemptCount": request.AttemptCount,
		}).Info("Retry finished")
		return nil
	}

	summary, err := app.retryService.RetryAll(ctx, fundID, adminPhone)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"fundID":    fundID,
		"cycleID":   summary.CycleID,
		"attempted": summary.Attempted,
		"sent":      summary.Sent,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}).Info("Bulk retry finished")
	return nil
}
