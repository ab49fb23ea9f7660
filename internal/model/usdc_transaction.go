package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a confirmed on-chain USDC movement.
type TransactionType string

const (
	TxTypeDeposit    TransactionType = "deposit"
	TxTypePaymentIn  TransactionType = "payment_in"
	TxTypePayout     TransactionType = "payout"
	TxTypeWithdrawal TransactionType = "withdrawal"
	TxTypeSweep      TransactionType = "sweep"
)

const (
	TxStatusConfirmed = "confirmed"
	TxStatusPending   = "pending"
	TxStatusFailed    = "failed"
)

// UsdcTransaction is an append-only record of a confirmed transfer. Rows are
// never updated after creation except to attach RelatedPaymentID once the
// payment they funded exists.
type UsdcTransaction struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	UserID      string          `json:"user_id" gorm:"size:36;index"`
	Type        TransactionType `json:"type" gorm:"size:20;not null;index"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	FromAddress string          `json:"from_address" gorm:"size:64"`
	ToAddress   string          `json:"to_address" gorm:"size:64;index"`
	TxHash      string          `json:"tx_hash" gorm:"size:80;uniqueIndex"`
	Status      string          `json:"status" gorm:"size:16;default:'confirmed'"`

	RelatedPaymentID    *uint `json:"related_payment_id"`
	RelatedCommissionID *uint `json:"related_commission_id"`
}
