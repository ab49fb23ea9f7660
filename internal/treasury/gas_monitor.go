package treasury

import (
	"context"
	"fmt"
	"math/big"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/notify"
	"github.com/shopspring/decimal"
)

const (
	balanceOK       = "ok"
	balanceWarning  = "warning"
	balanceCritical = "critical"
)

// GasMonitor checks the operational wallets every run: native gas in the
// funding tank and USDC in the payout wallet. It classifies each against
// warning and critical thresholds, alerts on anything below warning, and
// appends an audit row unconditionally so the audit log doubles as a balance
// time series.
type GasMonitor struct {
	store             *ledger.Store
	chain             ChainClient
	dispatcher        notify.Dispatcher
	gasTankAddress    string
	payoutAddress     string
	gasWarningWei     *big.Int
	gasCriticalWei    *big.Int
	gasPerTxWei       *big.Int
	payoutWarningUsd  decimal.Decimal
	payoutCriticalUsd decimal.Decimal
}

type GasMonitorConfig struct {
	GasTankAddress    string
	PayoutAddress     string
	GasWarningWei     *big.Int
	GasCriticalWei    *big.Int
	GasPerTxWei       *big.Int
	PayoutWarningUsd  decimal.Decimal
	PayoutCriticalUsd decimal.Decimal
}

func NewGasMonitor(store *ledger.Store, chainClient ChainClient, dispatcher notify.Dispatcher, cfg GasMonitorConfig) *GasMonitor {
	return &GasMonitor{
		store:             store,
		chain:             chainClient,
		dispatcher:        dispatcher,
		gasTankAddress:    cfg.GasTankAddress,
		payoutAddress:     cfg.PayoutAddress,
		gasWarningWei:     cfg.GasWarningWei,
		gasCriticalWei:    cfg.GasCriticalWei,
		gasPerTxWei:       cfg.GasPerTxWei,
		payoutWarningUsd:  cfg.PayoutWarningUsd,
		payoutCriticalUsd: cfg.PayoutCriticalUsd,
	}
}

func (g *GasMonitor) Name() string { return "gas_monitor" }

func (g *GasMonitor) Run(ctx context.Context) (*RunSummary, error) {
	summary := newSummary(g.Name())

	gasBalance, err := g.chain.NativeBalance(ctx, g.gasTankAddress)
	if err != nil {
		return summary, fmt.Errorf("read gas tank balance: %w", err)
	}
	payoutBalance, err := g.chain.USDCBalance(ctx, g.payoutAddress)
	if err != nil {
		return summary, fmt.Errorf("read payout wallet balance: %w", err)
	}
	pendingOwed, err := g.store.PendingCommissionTotal()
	if err != nil {
		return summary, fmt.Errorf("sum pending commissions: %w", err)
	}

	gasStatus := classifyWei(gasBalance, g.gasWarningWei, g.gasCriticalWei)
	payoutStatus := classifyUsd(payoutBalance, g.payoutWarningUsd, g.payoutCriticalUsd)
	remainingTxs := g.estimateRemainingTxs(gasBalance)

	summary.Processed = 2
	summary.Succeeded = 2
	summary.Details["gas_balance_wei"] = gasBalance.String()
	summary.Details["gas_status"] = gasStatus
	summary.Details["estimated_remaining_txs"] = remainingTxs
	summary.Details["payout_balance_usd"] = payoutBalance.String()
	summary.Details["payout_status"] = payoutStatus
	summary.Details["pending_commissions_usd"] = pendingOwed.String()

	// Every run leaves a row, alert or not, so balance history can be
	// reconstructed from the audit log alone.
	if err := g.store.AppendAudit(ledger.AuditEntry{
		EventType: model.AuditGasCheck,
		Metadata: map[string]interface{}{
			"gas_balance_wei":         gasBalance.String(),
			"gas_status":              gasStatus,
			"estimated_remaining_txs": remainingTxs,
			"payout_balance_usd":      payoutBalance.String(),
			"payout_status":           payoutStatus,
			"pending_commissions_usd": pendingOwed.String(),
		},
	}); err != nil {
		logger.Warn("audit append failed for gas check: %v", err)
	}

	if gasStatus != balanceOK {
		g.dispatcher.Dispatch(ctx, model.NotifyTreasuryAlert, "", map[string]interface{}{
			"wallet":        "gas_tank",
			"status":        gasStatus,
			"balance_wei":   gasBalance.String(),
			"remaining_txs": remainingTxs,
		})
	}
	if payoutStatus != balanceOK {
		g.dispatcher.Dispatch(ctx, model.NotifyTreasuryAlert, "", map[string]interface{}{
			"wallet":      "payout",
			"status":      payoutStatus,
			"balance_usd": payoutBalance.String(),
			"owed_usd":    pendingOwed.String(),
		})
	}
	return summary, nil
}

func (g *GasMonitor) estimateRemainingTxs(gasBalance *big.Int) int64 {
	if g.gasPerTxWei == nil || g.gasPerTxWei.Sign() <= 0 {
		return 0
	}
	return new(big.Int).Div(gasBalance, g.gasPerTxWei).Int64()
}

func classifyWei(balance, warning, critical *big.Int) string {
	if critical != nil && balance.Cmp(critical) <= 0 {
		return balanceCritical
	}
	if warning != nil && balance.Cmp(warning) <= 0 {
		return balanceWarning
	}
	return balanceOK
}

func classifyUsd(balance, warning, critical decimal.Decimal) string {
	if balance.LessThanOrEqual(critical) {
		return balanceCritical
	}
	if balance.LessThanOrEqual(warning) {
		return balanceWarning
	}
	return balanceOK
}
