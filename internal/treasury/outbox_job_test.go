package treasury

import (
	"context"
	"errors"
	"testing"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
)

func TestOutboxDrainDeliversWithCorrelationID(t *testing.T) {
	store := setupTestStore(t)
	sender := &fakeSender{}

	if err := store.EnqueueOutbox(model.NotifyPaymentReceived, "user-1", map[string]interface{}{
		"amount": "200",
	}); err != nil {
		t.Fatalf("Failed to enqueue event: %v", err)
	}
	queued, _ := store.PendingOutbox(10)
	if len(queued) != 1 {
		t.Fatalf("Expected 1 pending event, got %d", len(queued))
	}

	job := NewOutboxJob(store, sender, 50, 5)
	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Outbox run failed: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("Expected 1 delivered event, got %d", summary.Succeeded)
	}

	if len(sender.events) != 1 {
		t.Fatalf("Expected 1 sent event, got %d", len(sender.events))
	}
	sent := sender.events[0]
	if sent.Type != model.NotifyPaymentReceived || sent.UserID != "user-1" {
		t.Errorf("Unexpected event %s for %s", sent.Type, sent.UserID)
	}
	if sent.CorrelationID != queued[0].CorrelationID {
		t.Error("Delivered event must carry the queued correlation id")
	}
	if sent.Data["amount"] != "200" {
		t.Errorf("Payload not decoded, got %v", sent.Data)
	}

	remaining, _ := store.PendingOutbox(10)
	if len(remaining) != 0 {
		t.Errorf("Delivered event should leave the pending queue, got %d", len(remaining))
	}
}

func TestOutboxFailureRetriesThenParks(t *testing.T) {
	store := setupTestStore(t)
	sender := &fakeSender{err: errors.New("webhook down")}

	if err := store.EnqueueOutbox(model.NotifyDirectBonus, "user-1", nil); err != nil {
		t.Fatalf("Failed to enqueue event: %v", err)
	}

	job := NewOutboxJob(store, sender, 50, 2)

	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("Expected 1 delivery failure, got %d", summary.Failed)
	}
	pending, _ := store.PendingOutbox(10)
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("Event should stay pending with 1 attempt, got %+v", pending)
	}
	if pending[0].LastError == "" {
		t.Error("Delivery error not recorded on the event")
	}

	// Second failure hits maxAttempts and the event becomes terminal.
	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	pending, _ = store.PendingOutbox(10)
	if len(pending) != 0 {
		t.Errorf("Terminal event must leave the pending queue, got %d", len(pending))
	}

	// Sender recovers; nothing is picked up again.
	sender.err = nil
	summary, err = job.Run(context.Background())
	if err != nil {
		t.Fatalf("Third run failed: %v", err)
	}
	if summary.Processed != 0 {
		t.Errorf("Failed event must not be retried after parking, got %d processed", summary.Processed)
	}
}

func TestOutboxDrainKeepsGoingPastBadEvent(t *testing.T) {
	store := setupTestStore(t)
	sender := &fakeSender{}

	if err := store.EnqueueOutbox(model.NotifyPaymentReceived, "user-1", nil); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	// Corrupt the second event's payload directly.
	if err := store.EnqueueOutbox(model.NotifyDirectBonus, "user-2", nil); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := store.DB().Model(&model.OutboxEvent{}).
		Where("user_id = ?", "user-2").
		Update("payload", "{not json").Error; err != nil {
		t.Fatalf("Failed to corrupt payload: %v", err)
	}

	job := NewOutboxJob(store, sender, 50, 5)
	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Outbox run failed: %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Errorf("Expected 1 delivered and 1 failed, got %d/%d", summary.Succeeded, summary.Failed)
	}
	if len(sender.events) != 1 || sender.events[0].UserID != "user-1" {
		t.Errorf("Only the well-formed event should be delivered, got %v", sender.events)
	}
}
