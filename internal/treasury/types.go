package treasury

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/chain"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/config"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/shopspring/decimal"
)

// ChainClient is the slice of the RPC client the treasury jobs consume.
// *chain.Client satisfies it; tests substitute fakes.
type ChainClient interface {
	USDCBalance(ctx context.Context, address string) (decimal.Decimal, error)
	NativeBalance(ctx context.Context, address string) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash string) (*chain.Receipt, error)
	GetFeeData(ctx context.Context) (*chain.FeeData, error)
	PendingNonce(ctx context.Context, address string) (uint64, error)
	SendNative(ctx context.Context, key *ecdsa.PrivateKey, to string, amountWei *big.Int, nonce uint64, fee *chain.FeeData) (string, error)
	SendUSDC(ctx context.Context, key *ecdsa.PrivateKey, to string, amount decimal.Decimal) (string, error)
}

// KeySource yields the private key behind a custodial deposit address.
type KeySource interface {
	Key(index int64) (*ecdsa.PrivateKey, error)
}

// RunSummary is the structured result every job returns and every cron
// endpoint serializes. A job that partially fails still returns a summary;
// per-row errors land in Errors rather than aborting the run.
type RunSummary struct {
	Job       string                 `json:"job"`
	Processed int                    `json:"processed"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Skipped   int                    `json:"skipped"`
	Errors    []string               `json:"errors,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func newSummary(job string) *RunSummary {
	return &RunSummary{Job: job, Details: map[string]interface{}{}}
}

func (r *RunSummary) addError(format string, args ...interface{}) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Job is the unit the scheduler and the cron endpoints both drive.
type Job interface {
	Name() string
	Run(ctx context.Context) (*RunSummary, error)
}

// Pricing resolves what a user owes for the current billing period.
type Pricing struct {
	Initial decimal.Decimal
	Monthly decimal.Decimal
	Weekly  decimal.Decimal
}

func PricingFromConfig(cfg config.TreasuryConfig) Pricing {
	return Pricing{
		Initial: decimal.NewFromFloat(cfg.InitialPrice),
		Monthly: decimal.NewFromFloat(cfg.MonthlyPrice),
		Weekly:  decimal.NewFromFloat(cfg.WeeklyPrice),
	}
}

// ExpectedPayment returns the amount and payment type due from a user now.
func (p Pricing) ExpectedPayment(user *model.User) (decimal.Decimal, model.PaymentType) {
	if !user.InitialPaymentCompleted && !user.BypassInitialPayment {
		return p.Initial, model.PaymentTypeInitial
	}
	if user.PaymentSchedule == model.ScheduleWeekly {
		return p.Weekly, model.PaymentTypeWeekly
	}
	return p.Monthly, model.PaymentTypeMonthly
}
