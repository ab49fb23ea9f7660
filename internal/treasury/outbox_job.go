package treasury

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/notify"
)

// OutboxJob drains pending outbox events to the notification sender. Events
// the payment pipeline enqueued transactionally get delivered here, with
// retries counted per event and a terminal failed state after maxAttempts.
type OutboxJob struct {
	store       *ledger.Store
	sender      notify.Sender
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func NewOutboxJob(store *ledger.Store, sender notify.Sender, batchSize, maxAttempts int) *OutboxJob {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &OutboxJob{
		store:       store,
		sender:      sender,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (j *OutboxJob) Name() string { return "outbox_dispatch" }

func (j *OutboxJob) Run(ctx context.Context) (*RunSummary, error) {
	summary := newSummary(j.Name())

	events, err := j.store.PendingOutbox(j.batchSize)
	if err != nil {
		return summary, fmt.Errorf("fetch pending outbox: %w", err)
	}

	for i := range events {
		event := &events[i]
		summary.Processed++

		if err := j.deliver(ctx, event); err != nil {
			summary.addError("event %d (%s): %v", event.ID, event.EventType, err)
			if rerr := j.store.RecordOutboxFailure(event.ID, err.Error(), j.maxAttempts); rerr != nil {
				logger.Error("failed to record outbox failure for %d: %v", event.ID, rerr)
			}
			continue
		}
		if err := j.store.MarkOutboxSent(event.ID, j.now()); err != nil {
			// Delivered but not finalized. The next run re-sends; receivers
			// must dedupe by correlation id.
			summary.addError("mark sent %d: %v", event.ID, err)
			continue
		}
		summary.Succeeded++
	}
	return summary, nil
}

func (j *OutboxJob) deliver(ctx context.Context, event *model.OutboxEvent) error {
	var data map[string]interface{}
	if event.Payload != "" {
		if err := json.Unmarshal([]byte(event.Payload), &data); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	return j.sender.Send(ctx, notify.Event{
		Type:          event.EventType,
		UserID:        event.UserID,
		CorrelationID: event.CorrelationID,
		Data:          data,
	})
}
