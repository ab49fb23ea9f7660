package ledger

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/database"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return NewStore(db)
}

var testDerivationIndex atomic.Int64

func createTestUser(t *testing.T, store *Store, mutate func(*model.User)) *model.User {
	t.Helper()
	user := &model.User{
		ID:              uuid.NewString(),
		Email:           uuid.NewString() + "@example.com",
		DepositAddress:  "0x" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")[:40],
		DerivationIndex: testDerivationIndex.Add(1),
		SweepStatus:     model.SweepIdle,
		PaymentSchedule: model.ScheduleMonthly,
		PayoutMethod:    model.PayoutMethodCrypto,
	}
	if mutate != nil {
		mutate(user)
	}
	if err := store.CreateUser(user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func TestQualifiedFalsePersists(t *testing.T) {
	store := setupTestStore(t)
	user := createTestUser(t, store, func(u *model.User) {
		u.Qualified = false
	})

	got, err := store.UserByID(user.ID)
	if err != nil {
		t.Fatalf("Failed to load user: %v", err)
	}
	if got.Qualified {
		t.Error("Qualified=false must survive the insert")
	}
}

func TestUnprovisionedUsersDoNotCollide(t *testing.T) {
	store := setupTestStore(t)

	// Any number of users may be waiting for an address with the shared
	// empty value and index zero.
	for i := 0; i < 3; i++ {
		createTestUser(t, store, func(u *model.User) {
			u.DepositAddress = ""
			u.DerivationIndex = 0
		})
	}
	waiting, err := store.UsersWithoutDepositAddress(10)
	if err != nil {
		t.Fatalf("Failed to list unprovisioned users: %v", err)
	}
	if len(waiting) != 3 {
		t.Errorf("Expected 3 unprovisioned users, got %d", len(waiting))
	}

	// Assigned addresses stay unique.
	createTestUser(t, store, func(u *model.User) {
		u.DepositAddress = "0xassigned"
	})
	dup := &model.User{
		ID:              uuid.NewString(),
		Email:           uuid.NewString() + "@example.com",
		DepositAddress:  "0xassigned",
		DerivationIndex: testDerivationIndex.Add(1),
		SweepStatus:     model.SweepIdle,
		PaymentSchedule: model.ScheduleMonthly,
		PayoutMethod:    model.PayoutMethodCrypto,
	}
	if err := store.CreateUser(dup); err == nil {
		t.Error("Duplicate deposit address must be rejected")
	}
}

func TestCreatePaymentDuplicatePeriod(t *testing.T) {
	store := setupTestStore(t)
	user := createTestUser(t, store, nil)

	first := &model.Payment{
		UserID:    user.ID,
		PeriodKey: "2026-03-01",
		Type:      model.PaymentTypeMonthly,
		Amount:    decimal.NewFromInt(200),
	}
	if err := store.CreatePayment(first); err != nil {
		t.Fatalf("First payment failed: %v", err)
	}

	dup := &model.Payment{
		UserID:    user.ID,
		PeriodKey: "2026-03-01",
		Type:      model.PaymentTypeMonthly,
		Amount:    decimal.NewFromInt(200),
	}
	if err := store.CreatePayment(dup); err != ErrDuplicatePayment {
		t.Errorf("Expected ErrDuplicatePayment, got %v", err)
	}

	other := &model.Payment{
		UserID:    user.ID,
		PeriodKey: "2026-04-01",
		Type:      model.PaymentTypeMonthly,
		Amount:    decimal.NewFromInt(200),
	}
	if err := store.CreatePayment(other); err != nil {
		t.Errorf("Different period should insert: %v", err)
	}
}

func TestMarkCommissionPaidOnce(t *testing.T) {
	store := setupTestStore(t)
	referrer := createTestUser(t, store, nil)
	referred := createTestUser(t, store, nil)

	commission := &model.Commission{
		ReferrerID: referrer.ID,
		ReferredID: referred.ID,
		Type:       model.CommissionDirectBonus,
		Amount:     decimal.NewFromFloat(249.50),
		Status:     model.CommissionStatusPending,
	}
	if err := store.CreateCommission(commission); err != nil {
		t.Fatalf("Failed to create commission: %v", err)
	}

	if err := store.MarkCommissionPaid(commission.ID, "0xabc", "", time.Now()); err != nil {
		t.Fatalf("First mark paid failed: %v", err)
	}
	if err := store.MarkCommissionPaid(commission.ID, "0xdef", "", time.Now()); err != ErrConflict {
		t.Errorf("Second mark paid should conflict, got %v", err)
	}

	got, err := store.CommissionByID(commission.ID)
	if err != nil {
		t.Fatalf("Failed to reload commission: %v", err)
	}
	if got.Status != model.CommissionStatusPaid {
		t.Errorf("Expected status paid, got %s", got.Status)
	}
	if got.PayoutTxHash != "0xabc" {
		t.Errorf("Second attempt must not overwrite tx hash, got %s", got.PayoutTxHash)
	}
}

func TestAssignBatchIsPartition(t *testing.T) {
	store := setupTestStore(t)
	referrer := createTestUser(t, store, nil)
	referred := createTestUser(t, store, nil)

	var ids []uint
	for i := 0; i < 3; i++ {
		c := &model.Commission{
			ReferrerID: referrer.ID,
			ReferredID: referred.ID,
			Type:       model.CommissionDirectBonus,
			Amount:     decimal.NewFromInt(50),
			Status:     model.CommissionStatusPending,
		}
		if err := store.CreateCommission(c); err != nil {
			t.Fatalf("Failed to create commission: %v", err)
		}
		ids = append(ids, c.ID)
	}

	assigned, err := store.AssignBatch(ids, 1)
	if err != nil {
		t.Fatalf("First assignment failed: %v", err)
	}
	if assigned != 3 {
		t.Errorf("Expected 3 assigned, got %d", assigned)
	}

	reassigned, err := store.AssignBatch(ids, 2)
	if err != nil {
		t.Fatalf("Second assignment failed: %v", err)
	}
	if reassigned != 0 {
		t.Errorf("Already batched commissions must not be re-claimed, got %d", reassigned)
	}
}

func TestIntentStatusCAS(t *testing.T) {
	store := setupTestStore(t)
	user := createTestUser(t, store, nil)

	intent := &model.PaymentIntent{
		UserID:    user.ID,
		Type:      model.PaymentTypeInitial,
		Amount:    decimal.NewFromInt(500),
		Status:    model.IntentAwaitingFunds,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := store.CreateIntent(intent); err != nil {
		t.Fatalf("Failed to create intent: %v", err)
	}

	claimed, err := store.UpdateIntentStatusIf(intent.ID,
		[]model.IntentStatus{model.IntentCreated, model.IntentAwaitingFunds},
		model.IntentProcessing)
	if err != nil {
		t.Fatalf("First claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("First claim should succeed")
	}

	claimed, err = store.UpdateIntentStatusIf(intent.ID,
		[]model.IntentStatus{model.IntentCreated, model.IntentAwaitingFunds},
		model.IntentProcessing)
	if err != nil {
		t.Fatalf("Second claim errored: %v", err)
	}
	if claimed {
		t.Error("Second claim must lose the CAS")
	}
}

func TestSweepStateTransitions(t *testing.T) {
	store := setupTestStore(t)
	user := createTestUser(t, store, nil)
	balance := decimal.NewFromInt(500)

	if err := store.MarkNeedsFunding(user.ID, balance); err != nil {
		t.Fatalf("idle -> needs_funding failed: %v", err)
	}
	if err := store.MarkNeedsFunding(user.ID, balance); err != ErrConflict {
		t.Errorf("Re-enqueueing a non-idle user should conflict, got %v", err)
	}

	// A user in needs_funding cannot jump straight to sweeping.
	if err := store.MarkSweeping(user.ID, "0xsweep", balance); err != ErrConflict {
		t.Errorf("needs_funding -> sweeping should conflict, got %v", err)
	}

	if err := store.MarkFundingSent(user.ID, "0xfund"); err != nil {
		t.Fatalf("needs_funding -> funding_sent failed: %v", err)
	}
	if err := store.MarkSweeping(user.ID, "0xsweep", balance); err != nil {
		t.Fatalf("funding_sent -> sweeping failed: %v", err)
	}
	if err := store.MarkSweepComplete(user.ID, time.Now()); err != nil {
		t.Fatalf("sweeping -> idle failed: %v", err)
	}

	got, err := store.UserByID(user.ID)
	if err != nil {
		t.Fatalf("Failed to reload user: %v", err)
	}
	if got.SweepStatus != model.SweepIdle {
		t.Errorf("Expected idle after completion, got %s", got.SweepStatus)
	}
	if !got.SweepBalance.IsZero() {
		t.Errorf("Expected zero sweep balance, got %s", got.SweepBalance)
	}
	if got.LastSweepAt == nil {
		t.Error("Expected last sweep timestamp to be set")
	}
}

func TestRecordedAddressBalanceNetsOutSweeps(t *testing.T) {
	store := setupTestStore(t)
	user := createTestUser(t, store, nil)

	deposit := &model.UsdcTransaction{
		UserID:    user.ID,
		Type:      model.TxTypeDeposit,
		Amount:    decimal.NewFromInt(500),
		ToAddress: user.DepositAddress,
		TxHash:    "0xdep1",
		Status:    model.TxStatusConfirmed,
	}
	if err := store.RecordTransaction(deposit); err != nil {
		t.Fatalf("Failed to record deposit: %v", err)
	}

	balance, err := store.RecordedAddressBalance(user.DepositAddress)
	if err != nil {
		t.Fatalf("Failed to read recorded balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected 500 before sweep, got %s", balance)
	}

	sweep := &model.UsdcTransaction{
		UserID:      user.ID,
		Type:        model.TxTypeSweep,
		Amount:      decimal.NewFromInt(500),
		FromAddress: user.DepositAddress,
		ToAddress:   "0xtreasury",
		TxHash:      "0xsweep1",
		Status:      model.TxStatusConfirmed,
	}
	if err := store.RecordTransaction(sweep); err != nil {
		t.Fatalf("Failed to record sweep: %v", err)
	}

	balance, err = store.RecordedAddressBalance(user.DepositAddress)
	if err != nil {
		t.Fatalf("Failed to read recorded balance: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Expected zero after sweep, got %s", balance)
	}
}

func TestRecordTransactionDuplicateHash(t *testing.T) {
	store := setupTestStore(t)
	user := createTestUser(t, store, nil)

	tx := &model.UsdcTransaction{
		UserID:    user.ID,
		Type:      model.TxTypeDeposit,
		Amount:    decimal.NewFromInt(100),
		ToAddress: user.DepositAddress,
		TxHash:    "0xsame",
		Status:    model.TxStatusConfirmed,
	}
	if err := store.RecordTransaction(tx); err != nil {
		t.Fatalf("First record failed: %v", err)
	}

	dup := &model.UsdcTransaction{
		UserID:    user.ID,
		Type:      model.TxTypeDeposit,
		Amount:    decimal.NewFromInt(100),
		ToAddress: user.DepositAddress,
		TxHash:    "0xsame",
		Status:    model.TxStatusConfirmed,
	}
	if err := store.RecordTransaction(dup); err != ErrConflict {
		t.Errorf("Duplicate tx hash should conflict, got %v", err)
	}
}

func TestOutboxFailureBecomesTerminal(t *testing.T) {
	store := setupTestStore(t)

	if err := store.EnqueueOutbox("payout_processed", "user-1", map[string]interface{}{"amount": "10"}); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	events, err := store.PendingOutbox(10)
	if err != nil || len(events) != 1 {
		t.Fatalf("Expected 1 pending event, got %d (err %v)", len(events), err)
	}
	id := events[0].ID

	if err := store.RecordOutboxFailure(id, "timeout", 2); err != nil {
		t.Fatalf("First failure failed: %v", err)
	}
	events, _ = store.PendingOutbox(10)
	if len(events) != 1 {
		t.Fatalf("Event should still be pending after one failure, got %d", len(events))
	}

	if err := store.RecordOutboxFailure(id, "timeout", 2); err != nil {
		t.Fatalf("Second failure failed: %v", err)
	}
	events, _ = store.PendingOutbox(10)
	if len(events) != 0 {
		t.Errorf("Event should be terminal after max attempts, still pending: %d", len(events))
	}
}

func TestNextDerivationIndex(t *testing.T) {
	store := setupTestStore(t)

	first, err := store.NextDerivationIndex()
	if err != nil {
		t.Fatalf("Failed on empty table: %v", err)
	}
	if first != 0 {
		t.Errorf("Expected 0 on empty table, got %d", first)
	}

	createTestUser(t, store, func(u *model.User) { u.DerivationIndex = 7 })
	next, err := store.NextDerivationIndex()
	if err != nil {
		t.Fatalf("Failed after insert: %v", err)
	}
	if next != 8 {
		t.Errorf("Expected 8, got %d", next)
	}
}

func TestUplineWalk(t *testing.T) {
	store := setupTestStore(t)

	root := createTestUser(t, store, func(u *model.User) {
		u.PositionID = "pos-root"
	})
	mid := createTestUser(t, store, func(u *model.User) {
		u.PositionID = "pos-mid"
		u.ParentPositionID = &root.PositionID
		u.NetworkLevel = 1
	})
	leaf := createTestUser(t, store, func(u *model.User) {
		u.PositionID = "pos-leaf"
		u.ParentPositionID = &mid.PositionID
		u.NetworkLevel = 2
	})

	upline, err := store.Upline(leaf)
	if err != nil {
		t.Fatalf("Upline walk failed: %v", err)
	}
	if len(upline) != 2 {
		t.Fatalf("Expected 2 ancestors, got %d", len(upline))
	}
	if upline[0].ID != mid.ID || upline[1].ID != root.ID {
		t.Errorf("Upline out of order: %s then %s", upline[0].ID, upline[1].ID)
	}
}
