package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionType classifies what earned the referrer the money.
type CommissionType string

const (
	CommissionDirectBonus     CommissionType = "direct_bonus"
	CommissionMonthlyResidual CommissionType = "monthly_residual"
)

const (
	CommissionStatusPending = "pending"
	CommissionStatusPaid    = "paid"
	CommissionStatusFailed  = "failed"
)

// Commission is an amount owed to a referrer. A commission moves to "paid" at
// most once; a payout attempt against an already-paid commission is a no-op.
type Commission struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	ReferrerID string          `json:"referrer_id" gorm:"size:36;index;not null"`
	ReferredID string          `json:"referred_id" gorm:"size:36;index"`
	Type       CommissionType  `json:"type" gorm:"size:24;not null;index"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	Status     string          `json:"status" gorm:"size:16;default:'pending';index"`

	PayoutBatchID *uint      `json:"payout_batch_id" gorm:"index"`
	PaidAt        *time.Time `json:"paid_at"`
	RetryCount    int        `json:"retry_count" gorm:"default:0"`
	ErrorMessage  string     `json:"error_message" gorm:"size:512"`

	// Set on successful payout, depending on the rail used.
	PayoutTxHash     string `json:"payout_tx_hash" gorm:"size:80"`
	StripeTransferID string `json:"stripe_transfer_id" gorm:"size:64"`
}

const (
	BatchStatusCreated   = "created"
	BatchStatusExecuted  = "executed"
	BatchStatusPartially = "partially_executed"
)

// PayoutBatch groups pending commissions of one type into a payable unit.
// Commissions reference their batch via payout_batch_id; assignment filters on
// payout_batch_id IS NULL so a commission lands in at most one batch.
type PayoutBatch struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name          string          `json:"name" gorm:"size:64;uniqueIndex"`
	BatchDate     time.Time       `json:"batch_date"`
	Type          CommissionType  `json:"type" gorm:"size:24;not null"`
	TotalAmount   decimal.Decimal `json:"total_amount" gorm:"type:decimal(20,2);not null"`
	PayoutCount   int             `json:"payout_count" gorm:"not null"`
	GasEstimate   string          `json:"gas_estimate" gorm:"size:32"` // wei, decimal string
	Status        string          `json:"status" gorm:"size:24;default:'created'"`
	CommissionIDs string          `json:"commission_ids" gorm:"type:text"` // JSON array
	CreatedBy     string          `json:"created_by" gorm:"size:36"`
}
