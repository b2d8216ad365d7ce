package events

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// RegisterLoggingSubscribers attaches a structured-log handler to every event
// type. This is the audit trail for money movement; richer consumers
// subscribe alongside it.
func RegisterLoggingSubscribers(bus *Bus) {
	bus.Subscribe(EventTypeFundCreated, func(ctx context.Context, event Event) {
		e := event.(FundCreatedEvent)
		log.WithFields(log.Fields{
			"fundID": e.FundID,
			"name":   e.Name,
		}).Info("Fund created")
	})

	bus.Subscribe(EventTypeMemberAdded, func(ctx context.Context, event Event) {
		e := event.(MemberAddedEvent)
		log.WithFields(log.Fields{
			"fundID":   e.FundID,
			"memberID": e.MemberID,
			"position": e.RotationPosition,
		}).Info("Member added")
	})

	bus.Subscribe(EventTypeCycleStateChange, func(ctx context.Context, event Event) {
		e := event.(CycleStateChangeEvent)
		log.WithFields(log.Fields{
			"fundID":   e.FundID,
			"cycleID":  e.CycleID,
			"oldState": e.OldState,
			"newState": e.NewState,
		}).Info("Cycle state changed")
	})

	bus.Subscribe(EventTypeRequestDispatched, func(ctx context.Context, event Event) {
		e := event.(RequestDispatchedEvent)
		log.WithFields(log.Fields{
			"cycleID":   e.CycleID,
			"requestID": e.RequestID,
			"memberID":  e.MemberID,
			"status":    e.Status,
		}).Info("Contribution request dispatched")
	})

	bus.Subscribe(EventTypeContributionSettled, func(ctx context.Context, event Event) {
		e := event.(ContributionSettledEvent)
		log.WithFields(log.Fields{
			"fundID":     e.FundID,
			"cycleID":    e.CycleID,
			"memberID":   e.MemberID,
			"amount":     e.Amount,
			"receiptRef": e.ReceiptRef,
		}).Info("Contribution settled")
	})

	bus.Subscribe(EventTypePayoutCompleted, func(ctx context.Context, event Event) {
		e := event.(PayoutCompletedEvent)
		log.WithFields(log.Fields{
			"fundID":         e.FundID,
			"cycleID":        e.CycleID,
			"recipientID":    e.RecipientID,
			"amount":         e.Amount,
			"transactionRef": e.TransactionRef,
		}).Info("Payout completed")
	})
}
