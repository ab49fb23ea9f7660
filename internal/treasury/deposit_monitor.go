package treasury

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
)

// Deposits below this are ignored as dust rather than recorded.
var minRecordableDeposit = decimal.NewFromInt(1)

// toleranceRate: a payment within 1% of the expected amount counts as paid.
var toleranceRate = decimal.NewFromFloat(0.01)

// DepositMonitor reconciles each user's custodial deposit address against the
// ledger for the current billing period and triggers payment processing when
// a period is fully funded. Runs a bounded batch per invocation; per-user
// failures are collected, never fatal to the run.
type DepositMonitor struct {
	store     *ledger.Store
	chain     ChainClient
	processor *PaymentProcessor
	pricing   Pricing
	batchSize int
	poolSize  int
	intentTTL time.Duration
	now       func() time.Time
}

func NewDepositMonitor(store *ledger.Store, chainClient ChainClient, processor *PaymentProcessor, pricing Pricing, batchSize, poolSize int, intentTTL time.Duration) *DepositMonitor {
	if batchSize <= 0 {
		batchSize = 25
	}
	if poolSize <= 0 {
		poolSize = 8
	}
	return &DepositMonitor{
		store:     store,
		chain:     chainClient,
		processor: processor,
		pricing:   pricing,
		batchSize: batchSize,
		poolSize:  poolSize,
		intentTTL: intentTTL,
		now:       time.Now,
	}
}

func (m *DepositMonitor) Name() string { return "deposit_monitor" }

func (m *DepositMonitor) Run(ctx context.Context) (*RunSummary, error) {
	summary := newSummary(m.Name())

	users, err := m.store.UsersForDepositCheck(m.batchSize)
	if err != nil {
		return summary, fmt.Errorf("fetch users for deposit check: %w", err)
	}
	if len(users) == 0 {
		return summary, nil
	}

	balances := m.readBalances(ctx, users)

	underpaid := 0
	for i := range users {
		user := &users[i]
		summary.Processed++

		result, err := m.checkUser(ctx, user, balances[user.ID])
		if err != nil {
			summary.addError("user %s: %v", user.ID, err)
		} else {
			switch result {
			case checkProcessed:
				summary.Succeeded++
				m.enqueueSweep(user, balances[user.ID])
			case checkSkipped:
				summary.Skipped++
			case checkUnderpaid:
				underpaid++
			}
		}

		if err := m.store.TouchDepositCheck(user.ID, m.now()); err != nil {
			logger.Warn("failed to touch deposit check for %s: %v", user.ID, err)
		}
	}

	summary.Details["underpaid"] = underpaid
	return summary, nil
}

type checkResult int

const (
	checkUnderpaid checkResult = iota
	checkProcessed
	checkSkipped
)

type balanceRead struct {
	amount decimal.Decimal
	err    error
}

// readBalances fans USDC balance reads out over a worker pool. A failed read
// is carried to checkUser so it surfaces as a per-user error, not a lost user.
func (m *DepositMonitor) readBalances(ctx context.Context, users []model.User) map[string]balanceRead {
	results := make(map[string]balanceRead, len(users))
	var mu sync.Mutex
	var wg sync.WaitGroup

	pool, err := ants.NewPool(m.poolSize)
	if err != nil {
		// Degrade to sequential reads rather than skipping the run.
		for _, u := range users {
			amount, berr := m.chain.USDCBalance(ctx, u.DepositAddress)
			results[u.ID] = balanceRead{amount: amount, err: berr}
		}
		return results
	}
	defer pool.Release()

	for _, u := range users {
		user := u
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			amount, berr := m.chain.USDCBalance(ctx, user.DepositAddress)
			mu.Lock()
			results[user.ID] = balanceRead{amount: amount, err: berr}
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			results[user.ID] = balanceRead{err: submitErr}
			mu.Unlock()
		}
	}
	wg.Wait()
	return results
}

func (m *DepositMonitor) checkUser(ctx context.Context, user *model.User, balance balanceRead) (checkResult, error) {
	now := m.now()

	periodStart := time.Unix(0, 0)
	if user.PreviousPaymentDueDate != nil {
		periodStart = *user.PreviousPaymentDueDate
	}

	paid, err := m.store.PaidInPeriod(user.ID, periodStart)
	if err != nil {
		return 0, fmt.Errorf("sum period payments: %w", err)
	}

	expected, paymentType := m.pricing.ExpectedPayment(user)
	tolerance := expected.Mul(toleranceRate)

	if m.periodSatisfied(paid, expected, tolerance) {
		if m.alreadyProcessed(user, now) {
			return checkSkipped, nil
		}
		return m.process(ctx, user, paymentType, expected, nil)
	}

	// Short for the period: look for on-chain funds the ledger has not
	// recorded yet.
	if balance.err != nil {
		return 0, fmt.Errorf("read balance: %w", balance.err)
	}
	recorded, err := m.store.RecordedAddressBalance(user.DepositAddress)
	if err != nil {
		return 0, fmt.Errorf("sum recorded deposits: %w", err)
	}
	unrecorded := balance.amount.Sub(recorded)

	var depositTxID *uint
	if unrecorded.GreaterThanOrEqual(minRecordableDeposit) {
		// Recording must succeed before any crediting happens; an insert
		// failure aborts this user and the next run retries from scratch.
		tx := &model.UsdcTransaction{
			UserID:    user.ID,
			Type:      model.TxTypeDeposit,
			Amount:    unrecorded,
			ToAddress: user.DepositAddress,
			TxHash:    syntheticDepositHash(user.DepositAddress, balance.amount, now),
			Status:    model.TxStatusConfirmed,
		}
		if err := m.store.RecordTransaction(tx); err != nil {
			return 0, fmt.Errorf("record detected deposit: %w", err)
		}
		depositTxID = &tx.ID

		if err := m.store.AppendAudit(ledger.AuditEntry{
			EventType: model.AuditDepositDetected,
			UserID:    user.ID,
			Amount:    unrecorded,
			TxHash:    tx.TxHash,
		}); err != nil {
			logger.Warn("audit append failed for deposit %s: %v", tx.TxHash, err)
		}

		paid = paid.Add(unrecorded)
		if m.periodSatisfied(paid, expected, tolerance) {
			if m.alreadyProcessed(user, now) {
				// Extra funds on an address whose period already ran; the
				// deposit is recorded and waits for the next period.
				return checkSkipped, nil
			}
			return m.process(ctx, user, paymentType, expected, depositTxID)
		}

		// New funds arrived but the period is still short. Audited once per
		// recorded deposit, not once per run.
		if err := m.store.AppendAudit(ledger.AuditEntry{
			EventType: model.AuditPaymentUnderpaid,
			UserID:    user.ID,
			Amount:    paid,
			Metadata: map[string]interface{}{
				"expected":     expected.String(),
				"period_start": periodStart.Format("2006-01-02"),
			},
		}); err != nil {
			logger.Warn("audit append failed for underpaid %s: %v", user.ID, err)
		}
	}

	if paid.GreaterThan(decimal.Zero) {
		logger.Info("user %s underpaid: %s of %s for period starting %s",
			user.ID, paid.String(), expected.String(), periodStart.Format("2006-01-02"))
	}
	return checkUnderpaid, nil
}

func (m *DepositMonitor) periodSatisfied(paid, expected, tolerance decimal.Decimal) bool {
	return expected.Sub(paid).LessThanOrEqual(tolerance)
}

// alreadyProcessed reports whether this period's payment side effects have
// already run: the due date was rolled forward past now.
func (m *DepositMonitor) alreadyProcessed(user *model.User, now time.Time) bool {
	return user.NextPaymentDueDate != nil && user.NextPaymentDueDate.After(now)
}

// process claims the user's payment intent and runs the payment processor.
// The intent CAS is the cross-invocation exclusion: a failed claim means a
// concurrent run owns this payment.
func (m *DepositMonitor) process(ctx context.Context, user *model.User, paymentType model.PaymentType, amount decimal.Decimal, depositTxID *uint) (checkResult, error) {
	intent, err := m.store.ActiveIntent(user.ID)
	if err != nil {
		if err != ledger.ErrNotFound {
			return 0, fmt.Errorf("load intent: %w", err)
		}
		intent = &model.PaymentIntent{
			UserID:    user.ID,
			Type:      paymentType,
			Amount:    amount,
			Status:    model.IntentAwaitingFunds,
			ExpiresAt: m.now().Add(m.intentTTL),
		}
		if err := m.store.CreateIntent(intent); err != nil {
			return 0, fmt.Errorf("create intent: %w", err)
		}
	}

	claimed, err := m.store.UpdateIntentStatusIf(intent.ID,
		[]model.IntentStatus{model.IntentCreated, model.IntentAwaitingFunds},
		model.IntentProcessing)
	if err != nil {
		return 0, fmt.Errorf("claim intent: %w", err)
	}
	if !claimed {
		return checkSkipped, nil
	}

	if err := m.processor.Process(ctx, user.ID, paymentType, amount, depositTxID); err != nil {
		if err == ledger.ErrDuplicatePayment {
			// Period already credited by a previous run; close the intent.
			if _, cerr := m.store.UpdateIntentStatusIf(intent.ID,
				[]model.IntentStatus{model.IntentProcessing}, model.IntentCompleted); cerr != nil {
				logger.Warn("failed to complete duplicate intent %d: %v", intent.ID, cerr)
			}
			return checkSkipped, nil
		}
		// Hand the intent back so the next run retries.
		if _, rerr := m.store.UpdateIntentStatusIf(intent.ID,
			[]model.IntentStatus{model.IntentProcessing}, model.IntentAwaitingFunds); rerr != nil {
			logger.Warn("failed to release intent %d: %v", intent.ID, rerr)
		}
		return 0, fmt.Errorf("process payment: %w", err)
	}

	if _, err := m.store.UpdateIntentStatusIf(intent.ID,
		[]model.IntentStatus{model.IntentProcessing}, model.IntentCompleted); err != nil {
		logger.Warn("failed to complete intent %d: %v", intent.ID, err)
	}
	return checkProcessed, nil
}

// enqueueSweep hands a freshly paid deposit address to the sweep pipeline.
// Only idle users transition; a user already mid-sweep is left alone.
func (m *DepositMonitor) enqueueSweep(user *model.User, balance balanceRead) {
	if balance.err != nil || balance.amount.LessThan(minRecordableDeposit) {
		return
	}
	if err := m.store.MarkNeedsFunding(user.ID, balance.amount); err != nil && err != ledger.ErrConflict {
		logger.Warn("failed to enqueue sweep for %s: %v", user.ID, err)
	}
}

// syntheticDepositHash identifies a balance-delta detection. Balance reads
// see an aggregate, not individual transfers, so the recorded row gets a
// deterministic pseudo-hash unique per address and observed balance.
func syntheticDepositHash(address string, balance decimal.Decimal, at time.Time) string {
	return fmt.Sprintf("detected:%s:%s:%d", address, balance.String(), at.Unix())
}
