package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentSchedule is the user's billing cadence.
type PaymentSchedule string

const (
	ScheduleWeekly  PaymentSchedule = "weekly"
	ScheduleMonthly PaymentSchedule = "monthly"
)

// SweepStatus drives the custodial sweep state machine. Each sweep stage only
// selects users in exactly one status, so stages never race on the same user.
type SweepStatus string

const (
	SweepIdle         SweepStatus = "idle"
	SweepNeedsFunding SweepStatus = "needs_funding"
	SweepFundingSent  SweepStatus = "funding_sent"
	SweepSweeping     SweepStatus = "sweeping"
	SweepFailed       SweepStatus = "failed"
)

// PayoutMethod selects the rail a referrer is paid on.
type PayoutMethod string

const (
	PayoutMethodCrypto PayoutMethod = "crypto"
	PayoutMethodStripe PayoutMethod = "stripe"
)

// User holds membership, billing and network-tree state for one member.
type User struct {
	ID        string         `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	Email      string  `json:"email" gorm:"uniqueIndex;size:255"`
	ReferrerID *string `json:"referrer_id" gorm:"size:36;index"`

	// Permanent custodial deposit address, derived from the master seed at
	// DerivationIndex. Empty until provisioned; uniqueness of non-empty
	// addresses is enforced by a partial index created in database.Migrate,
	// since unprovisioned rows all share the empty value.
	DepositAddress  string `json:"deposit_address" gorm:"size:64"`
	DerivationIndex int64  `json:"derivation_index" gorm:"index"`

	InitialPaymentCompleted bool `json:"initial_payment_completed" gorm:"default:false"`
	BypassInitialPayment    bool `json:"bypass_initial_payment" gorm:"default:false"`
	IsActive                bool `json:"is_active" gorm:"default:false;index"`
	// No default tag: gorm drops zero-valued fields that carry one on
	// insert, which would silently turn Qualified=false into true.
	Qualified       bool            `json:"qualified"`
	PaymentSchedule PaymentSchedule `json:"payment_schedule" gorm:"size:16;default:'monthly'"`

	PreviousPaymentDueDate *time.Time `json:"previous_payment_due_date"`
	NextPaymentDueDate     *time.Time `json:"next_payment_due_date"`

	// Network tree position. Positions are assigned once; PositionID is empty
	// until the initial payment completes.
	NetworkLevel       int             `json:"network_level"`
	NetworkPosition    int             `json:"network_position"`
	PositionID         string          `json:"position_id" gorm:"size:64;index"`
	ParentPositionID   *string         `json:"parent_position_id" gorm:"size:64;index"`
	ActiveNetworkCount int             `json:"active_network_count" gorm:"default:0"`
	TotalNetworkVolume decimal.Decimal `json:"total_network_volume" gorm:"type:decimal(20,2);default:0"`

	// Payout destination on file.
	PayoutMethod        PayoutMethod `json:"payout_method" gorm:"size:16;default:'crypto'"`
	PayoutWalletAddress string       `json:"payout_wallet_address" gorm:"size:64"`
	StripeAccountID     string       `json:"stripe_account_id" gorm:"size:64"`

	// Sweep pipeline state.
	SweepStatus        SweepStatus     `json:"sweep_status" gorm:"size:20;default:'idle';index"`
	SweepBalance       decimal.Decimal `json:"sweep_balance" gorm:"type:decimal(20,2);default:0"`
	FundingTxHash      string          `json:"funding_tx_hash" gorm:"size:80"`
	SweepTxHash        string          `json:"sweep_tx_hash" gorm:"size:80"`
	SweepAttempts      int             `json:"sweep_attempts" gorm:"default:0"`
	SweepError         string          `json:"sweep_error" gorm:"size:512"`
	LastSweepAt        *time.Time      `json:"last_sweep_at"`
	LastDepositCheckAt *time.Time      `json:"last_deposit_check_at" gorm:"index"`
}

// HasPosition reports whether the user has been placed in the network tree.
func (u *User) HasPosition() bool {
	return u.PositionID != ""
}

// Referral links a referrer to a member they brought in.
type Referral struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ReferrerID string `json:"referrer_id" gorm:"size:36;index;index:idx_referral_pair,unique"`
	ReferredID string `json:"referred_id" gorm:"size:36;index:idx_referral_pair,unique"`
	Status     string `json:"status" gorm:"size:16;default:'pending'"` // pending, active
}

const (
	ReferralStatusPending = "pending"
	ReferralStatusActive  = "active"
)
