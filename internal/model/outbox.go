package model

import "time"

// Notification event types drained from the outbox.
const (
	NotifyPayoutProcessed = "payout_processed"
	NotifyPayoutFailed    = "payout_failed"
	NotifyDirectBonus     = "direct_bonus"
	NotifyPaymentReceived = "payment_received"
	NotifyTreasuryAlert   = "treasury_alert"
)

const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// OutboxEvent is a notification written in the same database transaction as
// the state change that caused it. A separate dispatcher drains pending rows
// and calls the notification sender, so notification delivery can never fail
// a payment transition and a committed transition can never lose its event.
type OutboxEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	EventType     string     `json:"event_type" gorm:"size:32;not null"`
	UserID        string     `json:"user_id" gorm:"size:36;index"`
	CorrelationID string     `json:"correlation_id" gorm:"size:36;index"`
	Payload       string     `json:"payload" gorm:"type:text"` // JSON
	Status        string     `json:"status" gorm:"size:16;default:'pending';index"`
	Attempts      int        `json:"attempts" gorm:"default:0"`
	LastError     string     `json:"last_error" gorm:"size:512"`
	SentAt        *time.Time `json:"sent_at"`
}
