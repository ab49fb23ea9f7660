package ledger

import (
	"encoding/json"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EnqueueOutbox writes a notification event. Called inside the same
// transaction as the state change it announces.
func (s *Store) EnqueueOutbox(eventType, userID string, payload map[string]interface{}) error {
	body := ""
	if payload != nil {
		b, err := json.Marshal(payload)
		if err == nil {
			body = string(b)
		}
	}
	event := model.OutboxEvent{
		EventType:     eventType,
		UserID:        userID,
		CorrelationID: uuid.NewString(),
		Payload:       body,
		Status:        model.OutboxStatusPending,
	}
	return s.db.Create(&event).Error
}

// PendingOutbox returns undelivered events, oldest first.
func (s *Store) PendingOutbox(limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := s.db.
		Where("status = ?", model.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// MarkOutboxSent finalizes a delivered event.
func (s *Store) MarkOutboxSent(id uint, at time.Time) error {
	return s.db.Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  model.OutboxStatusSent,
			"sent_at": at,
		}).Error
}

// RecordOutboxFailure bumps the attempt counter, moving the event to failed
// once maxAttempts is reached.
func (s *Store) RecordOutboxFailure(id uint, attemptErr string, maxAttempts int) error {
	var event model.OutboxEvent
	if err := s.db.First(&event, id).Error; err != nil {
		return translateNotFound(err)
	}
	updates := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": attemptErr,
	}
	if event.Attempts+1 >= maxAttempts {
		updates["status"] = model.OutboxStatusFailed
	}
	return s.db.Model(&model.OutboxEvent{}).Where("id = ?", id).Updates(updates).Error
}
