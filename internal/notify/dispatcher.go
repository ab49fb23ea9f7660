package notify

import (
	"context"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/google/uuid"
)

// Dispatcher fans a notification out of the core pipeline. Dispatch is
// fire-and-forget for callers: failures are logged or queued, never
// propagated, so a notification problem can never fail a payment.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType, userID string, data map[string]interface{})
}

// DirectDispatcher sends synchronously through the Sender. Used when no
// outbox drain job is running (local development, one-off tools).
type DirectDispatcher struct {
	sender Sender
}

func NewDirectDispatcher(sender Sender) *DirectDispatcher {
	return &DirectDispatcher{sender: sender}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, eventType, userID string, data map[string]interface{}) {
	event := Event{
		Type:          eventType,
		UserID:        userID,
		CorrelationID: uuid.NewString(),
		Data:          data,
	}
	if err := d.sender.Send(ctx, event); err != nil {
		logger.Warn("notification %s for user %s failed: %v", eventType, userID, err)
	}
}

// QueuedDispatcher writes the event to the outbox table; the outbox job
// delivers it later. When the Store handed in is bound to an open
// transaction, the event commits or rolls back with the state change itself.
type QueuedDispatcher struct {
	store *ledger.Store
}

func NewQueuedDispatcher(store *ledger.Store) *QueuedDispatcher {
	return &QueuedDispatcher{store: store}
}

func (d *QueuedDispatcher) Dispatch(ctx context.Context, eventType, userID string, data map[string]interface{}) {
	if err := d.store.EnqueueOutbox(eventType, userID, data); err != nil {
		logger.Warn("failed to enqueue notification %s for user %s: %v", eventType, userID, err)
	}
}

// ForStore returns a dispatcher bound to the given store. For the queued
// dispatcher this rebinds to a transaction-scoped store so the outbox write
// joins the caller's transaction; the direct dispatcher is unaffected.
func ForStore(d Dispatcher, store *ledger.Store) Dispatcher {
	if _, ok := d.(*QueuedDispatcher); ok {
		return NewQueuedDispatcher(store)
	}
	return d
}
