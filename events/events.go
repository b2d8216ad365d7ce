package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeFundCreated         EventType = "fund_created"
	EventTypeMemberAdded         EventType = "member_added"
	EventTypeCycleStateChange    EventType = "cycle_state_change"
	EventTypeRequestDispatched   EventType = "request_dispatched"
	EventTypeContributionSettled EventType = "contribution_settled"
	EventTypePayoutCompleted     EventType = "payout_completed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// FundCreatedEvent represents a newly created fund
type FundCreatedEvent struct {
	FundID       int64
	Name         string
	CreatorPhone string
}

func (e FundCreatedEvent) Type() EventType {
	return EventTypeFundCreated
}

// MemberAddedEvent represents a member joining a fund
type MemberAddedEvent struct {
	FundID           int64
	MemberID         int64
	Phone            string
	RotationPosition int
}

func (e MemberAddedEvent) Type() EventType {
	return EventTypeMemberAdded
}

// CycleStateChangeEvent represents a cycle status transition
type CycleStateChangeEvent struct {
	FundID   int64
	CycleID  int64
	OldState string
	NewState string
}

func (e CycleStateChangeEvent) Type() EventType {
	return EventTypeCycleStateChange
}

// RequestDispatchedEvent represents a push request leaving for a member
type RequestDispatchedEvent struct {
	CycleID   int64
	RequestID int64
	MemberID  int64
	Amount    int64
	Status    string
}

func (e RequestDispatchedEvent) Type() EventType {
	return EventTypeRequestDispatched
}

// ContributionSettledEvent represents a settlement matched to a request
type ContributionSettledEvent struct {
	FundID     int64
	CycleID    int64
	RequestID  int64
	MemberID   int64
	Amount     int64
	ReceiptRef string
}

func (e ContributionSettledEvent) Type() EventType {
	return EventTypeContributionSettled
}

// PayoutCompletedEvent represents a finished cycle distribution
type PayoutCompletedEvent struct {
	FundID         int64
	CycleID        int64
	PayoutID       int64
	RecipientID    int64
	Amount         int64
	TransactionRef string
}

func (e PayoutCompletedEvent) Type() EventType {
	return EventTypePayoutCompleted
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers asynchronously
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType": event.Type(),
						"panic":     r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler)
	}
}

// TransactionalBus stashes events published during a unit of work and only
// forwards them to the real bus after the transaction commits
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

// NewTransactionalBus creates a transactional wrapper around a bus
func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

// Publish queues an event until Flush or Discard
func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush emits all pending events; called after a successful commit. Events
// are emitted on a background context because the transaction context may
// already be done.
func (b *TransactionalBus) Flush(ctx context.Context) {
	eventCtx := context.Background()
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard drops all pending events; called after rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
