package treasury

import (
	"context"
	"testing"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/shopspring/decimal"
)

func TestBatcherSkipsReferrersWithoutDestination(t *testing.T) {
	store := setupTestStore(t)

	withWallet := createUser(t, store, func(u *model.User) {
		u.PayoutWalletAddress = "0xwallet"
	})
	noWallet := createUser(t, store, nil)

	c1 := createCommission(t, store, withWallet, decimal.NewFromInt(50))
	c2 := createCommission(t, store, withWallet, decimal.NewFromInt(60))
	c3 := createCommission(t, store, noWallet, decimal.NewFromInt(70))

	batcher := NewPayoutBatcher(store, 10, 500, "6000000000000000")
	summary, err := batcher.Run(context.Background())
	if err != nil {
		t.Fatalf("Batcher run failed: %v", err)
	}
	if summary.Succeeded != 2 {
		t.Errorf("Expected 2 commissions batched, got %d", summary.Succeeded)
	}

	batches, err := store.ListBatches(10)
	if err != nil {
		t.Fatalf("Failed to list batches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("Expected exactly one batch, got %d", len(batches))
	}
	batch := batches[0]
	if batch.PayoutCount != 1 {
		t.Errorf("Batch should cover one referrer, got %d", batch.PayoutCount)
	}
	if !batch.TotalAmount.Equal(decimal.NewFromInt(110)) {
		t.Errorf("Expected total 110, got %s", batch.TotalAmount)
	}

	for _, id := range []uint{c1.ID, c2.ID} {
		got, _ := store.CommissionByID(id)
		if got.PayoutBatchID == nil || *got.PayoutBatchID != batch.ID {
			t.Errorf("Commission %d should belong to batch %d", id, batch.ID)
		}
	}
	got3, _ := store.CommissionByID(c3.ID)
	if got3.PayoutBatchID != nil {
		t.Error("Wallet-less referrer's commission must remain unbatched")
	}
	if got3.Status != model.CommissionStatusPending {
		t.Errorf("Unbatched commission stays pending, got %s", got3.Status)
	}
}

func TestBatcherCreatesNoEmptyBatch(t *testing.T) {
	store := setupTestStore(t)

	// Only a below-minimum commission exists.
	small := createUser(t, store, func(u *model.User) {
		u.PayoutWalletAddress = "0xwallet"
	})
	createCommission(t, store, small, decimal.NewFromInt(5))

	batcher := NewPayoutBatcher(store, 10, 500, "6000000000000000")
	summary, err := batcher.Run(context.Background())
	if err != nil {
		t.Fatalf("Batcher run failed: %v", err)
	}
	if summary.Succeeded != 0 {
		t.Errorf("Nothing should be batched, got %d", summary.Succeeded)
	}

	batches, _ := store.ListBatches(10)
	if len(batches) != 0 {
		t.Errorf("No empty batch may be created, got %d", len(batches))
	}
}

func TestBatcherSeparatesCommissionTypes(t *testing.T) {
	store := setupTestStore(t)

	referrer := createUser(t, store, func(u *model.User) {
		u.PayoutWalletAddress = "0xwallet"
	})
	createCommission(t, store, referrer, decimal.NewFromInt(50))

	referred := createUser(t, store, nil)
	residual := &model.Commission{
		ReferrerID: referrer.ID,
		ReferredID: referred.ID,
		Type:       model.CommissionMonthlyResidual,
		Amount:     decimal.NewFromInt(20),
		Status:     model.CommissionStatusPending,
	}
	if err := store.CreateCommission(residual); err != nil {
		t.Fatalf("Failed to create residual: %v", err)
	}

	batcher := NewPayoutBatcher(store, 10, 500, "6000000000000000")
	if _, err := batcher.Run(context.Background()); err != nil {
		t.Fatalf("Batcher run failed: %v", err)
	}

	batches, _ := store.ListBatches(10)
	if len(batches) != 2 {
		t.Fatalf("Expected one batch per commission type, got %d", len(batches))
	}
	types := map[model.CommissionType]bool{}
	for _, b := range batches {
		types[b.Type] = true
	}
	if !types[model.CommissionDirectBonus] || !types[model.CommissionMonthlyResidual] {
		t.Errorf("Expected direct_bonus and monthly_residual batches, got %v", types)
	}

	if auditCount(t, store, model.AuditPayoutBatchCreated) != 2 {
		t.Error("Expected one payout_batch_created audit row per batch")
	}
}

func TestBatcherRerunClaimsNothingTwice(t *testing.T) {
	store := setupTestStore(t)

	referrer := createUser(t, store, func(u *model.User) {
		u.PayoutWalletAddress = "0xwallet"
	})
	createCommission(t, store, referrer, decimal.NewFromInt(50))

	batcher := NewPayoutBatcher(store, 10, 500, "6000000000000000")
	if _, err := batcher.Run(context.Background()); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	summary, err := batcher.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if summary.Succeeded != 0 {
		t.Errorf("Second run must find nothing to batch, got %d", summary.Succeeded)
	}
	batches, _ := store.ListBatches(10)
	if len(batches) != 1 {
		t.Errorf("Expected the single original batch, got %d", len(batches))
	}
}
