package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Audit event types written by the treasury pipeline.
const (
	AuditDepositDetected    = "deposit_detected"
	AuditPaymentProcessed   = "payment_processed"
	AuditPaymentUnderpaid   = "payment_underpaid"
	AuditPayoutBatchCreated = "payout_batch_created"
	AuditPayoutExecuted     = "payout_executed"
	AuditPayoutFailed       = "payout_failed"
	AuditSweepFundCompleted = "sweep_fund_completed"
	AuditSweepStarted       = "sweep_started"
	AuditDepositSwept       = "deposit_swept"
	AuditSweepFailed        = "sweep_failed"
	AuditGasCheck           = "gas_check"
	AuditIntentExpired      = "intent_expired"
)

// ActorSystem marks audit rows written by cron jobs rather than an admin.
const ActorSystem = "system"

// CryptoAuditLog is the append-only system of record for treasury activity.
// Rows are never updated or deleted; row state elsewhere is reconstructed
// from this log when it is in doubt.
type CryptoAuditLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	EventType    string          `json:"event_type" gorm:"size:32;not null;index"`
	UserID       string          `json:"user_id" gorm:"size:36;index"`
	CommissionID *uint           `json:"commission_id"`
	BatchID      *uint           `json:"batch_id"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(20,2)"`
	TxHash       string          `json:"tx_hash" gorm:"size:80"`
	Actor        string          `json:"actor" gorm:"size:36;default:'system'"`
	Metadata     string          `json:"metadata" gorm:"type:text"` // JSON
}
