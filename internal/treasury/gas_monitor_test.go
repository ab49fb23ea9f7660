package treasury

import (
	"context"
	"math/big"
	"testing"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/notify"
	"github.com/shopspring/decimal"
)

func newTestGasMonitor(t *testing.T, chainClient *fakeChain) (*GasMonitor, *fakeSender) {
	t.Helper()
	store := setupTestStore(t)
	sender := &fakeSender{}
	monitor := NewGasMonitor(store, chainClient, notify.NewDirectDispatcher(sender), GasMonitorConfig{
		GasTankAddress:    "0xgastank",
		PayoutAddress:     "0xpayout",
		GasWarningWei:     big.NewInt(1_000_000),
		GasCriticalWei:    big.NewInt(100_000),
		GasPerTxWei:       big.NewInt(50_000),
		PayoutWarningUsd:  decimal.NewFromInt(5000),
		PayoutCriticalUsd: decimal.NewFromInt(1000),
	})
	return monitor, sender
}

func TestGasMonitorHealthyBalancesStaySilent(t *testing.T) {
	chainClient := newFakeChain()
	chainClient.native["0xgastank"] = big.NewInt(2_000_000)
	chainClient.usdc["0xpayout"] = decimal.NewFromInt(10_000)
	monitor, sender := newTestGasMonitor(t, chainClient)

	summary, err := monitor.Run(context.Background())
	if err != nil {
		t.Fatalf("Gas check failed: %v", err)
	}
	if summary.Details["gas_status"] != "ok" || summary.Details["payout_status"] != "ok" {
		t.Errorf("Expected both wallets ok, got %v / %v", summary.Details["gas_status"], summary.Details["payout_status"])
	}
	if summary.Details["estimated_remaining_txs"] != int64(40) {
		t.Errorf("Expected 40 remaining txs, got %v", summary.Details["estimated_remaining_txs"])
	}
	if len(sender.events) != 0 {
		t.Errorf("Healthy balances must not alert, got %d events", len(sender.events))
	}
}

func TestGasMonitorAlertsOnLowBalances(t *testing.T) {
	chainClient := newFakeChain()
	// At exactly the warning threshold the wallet is already in warning.
	chainClient.native["0xgastank"] = big.NewInt(1_000_000)
	chainClient.usdc["0xpayout"] = decimal.NewFromInt(900)
	monitor, sender := newTestGasMonitor(t, chainClient)

	summary, err := monitor.Run(context.Background())
	if err != nil {
		t.Fatalf("Gas check failed: %v", err)
	}
	if summary.Details["gas_status"] != "warning" {
		t.Errorf("Expected gas warning, got %v", summary.Details["gas_status"])
	}
	if summary.Details["payout_status"] != "critical" {
		t.Errorf("Expected payout critical, got %v", summary.Details["payout_status"])
	}

	if len(sender.events) != 2 {
		t.Fatalf("Expected one alert per low wallet, got %d", len(sender.events))
	}
	wallets := map[interface{}]string{}
	for _, event := range sender.events {
		if event.Type != model.NotifyTreasuryAlert {
			t.Errorf("Expected treasury_alert event, got %s", event.Type)
		}
		wallets[event.Data["wallet"]] = event.Data["status"].(string)
	}
	if wallets["gas_tank"] != "warning" || wallets["payout"] != "critical" {
		t.Errorf("Unexpected alert statuses: %v", wallets)
	}
}

func TestGasMonitorAlwaysLeavesAuditRow(t *testing.T) {
	store := setupTestStore(t)
	chainClient := newFakeChain()
	chainClient.native["0xgastank"] = big.NewInt(2_000_000)
	chainClient.usdc["0xpayout"] = decimal.NewFromInt(10_000)
	monitor := NewGasMonitor(store, chainClient, notify.NewDirectDispatcher(&fakeSender{}), GasMonitorConfig{
		GasTankAddress:    "0xgastank",
		PayoutAddress:     "0xpayout",
		GasWarningWei:     big.NewInt(1_000_000),
		GasCriticalWei:    big.NewInt(100_000),
		GasPerTxWei:       big.NewInt(50_000),
		PayoutWarningUsd:  decimal.NewFromInt(5000),
		PayoutCriticalUsd: decimal.NewFromInt(1000),
	})

	for i := 0; i < 3; i++ {
		if _, err := monitor.Run(context.Background()); err != nil {
			t.Fatalf("Gas check %d failed: %v", i, err)
		}
	}
	if got := auditCount(t, store, model.AuditGasCheck); got != 3 {
		t.Errorf("Expected a gas_check audit row per run, got %d", got)
	}
}
