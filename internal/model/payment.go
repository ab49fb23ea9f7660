package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType distinguishes the one-time unlock from recurring billing.
type PaymentType string

const (
	PaymentTypeInitial PaymentType = "initial"
	PaymentTypeWeekly  PaymentType = "weekly"
	PaymentTypeMonthly PaymentType = "monthly"
)

// IntentStatus is the payment-intent state machine. Transitions only move
// forward and are performed with a conditional update, so two concurrent
// processors can never both enter "processing" for the same intent.
type IntentStatus string

const (
	IntentCreated       IntentStatus = "created"
	IntentAwaitingFunds IntentStatus = "awaiting_funds"
	IntentProcessing    IntentStatus = "processing"
	IntentCompleted     IntentStatus = "completed"
	IntentExpired       IntentStatus = "expired"
	IntentFailed        IntentStatus = "failed"
)

// PaymentIntent represents one expected incoming payment. At most one
// non-terminal intent exists per user at a time.
type PaymentIntent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    string          `json:"user_id" gorm:"size:36;index"`
	Type      PaymentType     `json:"type" gorm:"size:16;not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Status    IntentStatus    `json:"status" gorm:"size:20;default:'created';index"`
	ExpiresAt time.Time       `json:"expires_at" gorm:"index"`
}

// Payment is a completed payment for one billing period. PeriodKey is derived
// from the period start date ("initial" for the unlock payment); the unique
// index on (user_id, period_key) is what makes payment creation idempotent:
// a duplicate processor run conflicts on insert instead of double-crediting.
type Payment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	UserID    string          `json:"user_id" gorm:"size:36;index:idx_payment_period,unique"`
	PeriodKey string          `json:"period_key" gorm:"size:32;index:idx_payment_period,unique"`
	Type      PaymentType     `json:"type" gorm:"size:16;not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Status    string          `json:"status" gorm:"size:16;default:'succeeded'"`
	TxHash    string          `json:"tx_hash" gorm:"size:80"`
}

const PaymentStatusSucceeded = "succeeded"

// InitialPeriodKey is the PeriodKey used for the one-time unlock payment.
const InitialPeriodKey = "initial"

// PeriodKeyFor derives the deterministic idempotency key for a billing period.
func PeriodKeyFor(periodStart time.Time) string {
	return periodStart.UTC().Format("2006-01-02")
}
