package treasury

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// minSweepAmount: a deposit address holding less USDC than this is not worth
// the gas to sweep. Returned to idle without a transfer.
var minSweepAmount = decimal.NewFromInt(1)

// SweepFundJob is stage one of the sweep pipeline: send a fixed amount of
// native gas from the gas tank to each deposit address waiting in
// needs_funding, highest USDC balance first. Broadcasts are fire-and-forget
// with manually incremented nonces so a whole batch goes out in one run
// without waiting for confirmations.
type SweepFundJob struct {
	store      *ledger.Store
	chain      ChainClient
	gasTankKey *ecdsa.PrivateKey
	gasTank    string
	gasWei     *big.Int
	batchSize  int
}

func NewSweepFundJob(store *ledger.Store, chainClient ChainClient, gasTankKey *ecdsa.PrivateKey, gasWei *big.Int, batchSize int) *SweepFundJob {
	address := ""
	if gasTankKey != nil {
		address = crypto.PubkeyToAddress(gasTankKey.PublicKey).Hex()
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SweepFundJob{
		store:      store,
		chain:      chainClient,
		gasTankKey: gasTankKey,
		gasTank:    address,
		gasWei:     gasWei,
		batchSize:  batchSize,
	}
}

func (j *SweepFundJob) Name() string { return "sweep_fund" }

func (j *SweepFundJob) Run(ctx context.Context) (*RunSummary, error) {
	summary := newSummary(j.Name())

	users, err := j.store.UsersInSweepStatus(model.SweepNeedsFunding, j.batchSize)
	if err != nil {
		return summary, fmt.Errorf("fetch needs_funding users: %w", err)
	}
	if len(users) == 0 {
		return summary, nil
	}

	fee, err := j.chain.GetFeeData(ctx)
	if err != nil {
		return summary, fmt.Errorf("fee data: %w", err)
	}
	nonce, err := j.chain.PendingNonce(ctx, j.gasTank)
	if err != nil {
		return summary, fmt.Errorf("gas tank nonce: %w", err)
	}

	for i := range users {
		user := &users[i]
		summary.Processed++

		// Each broadcast consumes its own nonce whether or not the ledger
		// update lands, otherwise a mid-batch failure would reuse a nonce
		// already spent on chain.
		txHash, err := j.chain.SendNative(ctx, j.gasTankKey, user.DepositAddress, j.gasWei, nonce, fee)
		if err != nil {
			summary.addError("fund %s: %v", user.ID, err)
			continue
		}
		nonce++

		if err := j.store.MarkFundingSent(user.ID, txHash); err != nil {
			summary.addError("mark funding sent %s (tx %s): %v", user.ID, txHash, err)
			continue
		}
		if err := j.store.AppendAudit(ledger.AuditEntry{
			EventType: model.AuditSweepFundCompleted,
			UserID:    user.ID,
			TxHash:    txHash,
			Metadata: map[string]interface{}{
				"gas_wei":       j.gasWei.String(),
				"sweep_balance": user.SweepBalance.String(),
			},
		}); err != nil {
			logger.Warn("audit append failed for funding %s: %v", txHash, err)
		}
		summary.Succeeded++
	}
	return summary, nil
}

// SweepAdvanceJob is stage two: once gas has landed at a funded deposit
// address, sign a USDC transfer from the address's own derived key to the
// treasury and move the user into sweeping.
type SweepAdvanceJob struct {
	store     *ledger.Store
	chain     ChainClient
	keys      KeySource
	treasury  string
	batchSize int
}

func NewSweepAdvanceJob(store *ledger.Store, chainClient ChainClient, keys KeySource, treasuryAddress string, batchSize int) *SweepAdvanceJob {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SweepAdvanceJob{
		store:     store,
		chain:     chainClient,
		keys:      keys,
		treasury:  treasuryAddress,
		batchSize: batchSize,
	}
}

func (j *SweepAdvanceJob) Name() string { return "sweep_advance" }

func (j *SweepAdvanceJob) Run(ctx context.Context) (*RunSummary, error) {
	summary := newSummary(j.Name())

	users, err := j.store.UsersInSweepStatus(model.SweepFundingSent, j.batchSize)
	if err != nil {
		return summary, fmt.Errorf("fetch funding_sent users: %w", err)
	}

	waiting := 0
	for i := range users {
		user := &users[i]
		summary.Processed++

		advanced, err := j.advance(ctx, user)
		if err != nil {
			summary.addError("advance %s: %v", user.ID, err)
			continue
		}
		if advanced {
			summary.Succeeded++
		} else {
			waiting++
		}
	}
	summary.Details["awaiting_gas"] = waiting
	return summary, nil
}

func (j *SweepAdvanceJob) advance(ctx context.Context, user *model.User) (bool, error) {
	gas, err := j.chain.NativeBalance(ctx, user.DepositAddress)
	if err != nil {
		return false, fmt.Errorf("read native balance: %w", err)
	}
	if gas.Sign() == 0 {
		// Funding tx not confirmed yet; next run picks the user up again.
		return false, nil
	}

	balance, err := j.chain.USDCBalance(ctx, user.DepositAddress)
	if err != nil {
		return false, fmt.Errorf("read usdc balance: %w", err)
	}
	if balance.LessThan(minSweepAmount) {
		// Nothing left worth sweeping. Back to idle; the gas stays at the
		// address for a future sweep.
		if err := j.store.MarkSweepComplete(user.ID, time.Now()); err != nil {
			return false, fmt.Errorf("reset to idle: %w", err)
		}
		return true, nil
	}

	key, err := j.keys.Key(user.DerivationIndex)
	if err != nil {
		return false, fmt.Errorf("derive key for index %d: %w", user.DerivationIndex, err)
	}

	txHash, err := j.chain.SendUSDC(ctx, key, j.treasury, balance)
	if err != nil {
		return false, fmt.Errorf("broadcast sweep: %w", err)
	}

	if err := j.store.MarkSweeping(user.ID, txHash, balance); err != nil {
		return false, fmt.Errorf("mark sweeping (tx %s): %w", txHash, err)
	}
	if err := j.store.AppendAudit(ledger.AuditEntry{
		EventType: model.AuditSweepStarted,
		UserID:    user.ID,
		Amount:    balance,
		TxHash:    txHash,
	}); err != nil {
		logger.Warn("audit append failed for sweep %s: %v", txHash, err)
	}
	return true, nil
}

// SweepVerifyJob is stage three: poll the receipt of each in-flight sweep. A
// missing receipt leaves the user in sweeping until the attempt ceiling, a
// successful one records the sweep and returns the user to idle, a reverted
// one parks the user in failed for manual intervention.
type SweepVerifyJob struct {
	store       *ledger.Store
	chain       ChainClient
	treasury    string
	maxAttempts int
	batchSize   int
	now         func() time.Time
}

func NewSweepVerifyJob(store *ledger.Store, chainClient ChainClient, treasuryAddress string, maxAttempts, batchSize int) *SweepVerifyJob {
	if maxAttempts <= 0 {
		maxAttempts = 120
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SweepVerifyJob{
		store:       store,
		chain:       chainClient,
		treasury:    treasuryAddress,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		now:         time.Now,
	}
}

func (j *SweepVerifyJob) Name() string { return "sweep_verify" }

func (j *SweepVerifyJob) Run(ctx context.Context) (*RunSummary, error) {
	summary := newSummary(j.Name())

	users, err := j.store.UsersInSweepStatus(model.SweepSweeping, j.batchSize)
	if err != nil {
		return summary, fmt.Errorf("fetch sweeping users: %w", err)
	}

	pending := 0
	for i := range users {
		user := &users[i]
		summary.Processed++

		confirmed, err := j.verify(ctx, user)
		if err != nil {
			summary.addError("verify %s: %v", user.ID, err)
			continue
		}
		if confirmed {
			summary.Succeeded++
		} else {
			pending++
		}
	}
	summary.Details["pending"] = pending
	return summary, nil
}

func (j *SweepVerifyJob) verify(ctx context.Context, user *model.User) (bool, error) {
	if user.SweepTxHash == "" {
		return false, j.store.MarkSweepFailed(user.ID, "sweeping with no sweep tx hash recorded")
	}

	receipt, err := j.chain.TransactionReceipt(ctx, user.SweepTxHash)
	if err != nil {
		return false, fmt.Errorf("poll receipt %s: %w", user.SweepTxHash, err)
	}

	if receipt == nil {
		attempts, err := j.store.IncrementSweepAttempts(user.ID)
		if err != nil {
			return false, fmt.Errorf("count verify attempt: %w", err)
		}
		if attempts >= j.maxAttempts {
			reason := fmt.Sprintf("sweep %s unconfirmed after %d polls", user.SweepTxHash, attempts)
			if err := j.store.MarkSweepFailed(user.ID, reason); err != nil {
				return false, err
			}
			if err := j.store.AppendAudit(ledger.AuditEntry{
				EventType: model.AuditSweepFailed,
				UserID:    user.ID,
				TxHash:    user.SweepTxHash,
				Metadata:  map[string]interface{}{"reason": reason},
			}); err != nil {
				logger.Warn("audit append failed for stuck sweep %s: %v", user.SweepTxHash, err)
			}
			return false, fmt.Errorf("%s, parked for manual intervention", reason)
		}
		return false, nil
	}

	if !receipt.Success {
		reason := fmt.Sprintf("sweep %s reverted on chain", user.SweepTxHash)
		if err := j.store.MarkSweepFailed(user.ID, reason); err != nil {
			return false, err
		}
		if err := j.store.AppendAudit(ledger.AuditEntry{
			EventType: model.AuditSweepFailed,
			UserID:    user.ID,
			TxHash:    user.SweepTxHash,
			Metadata:  map[string]interface{}{"reason": reason},
		}); err != nil {
			logger.Warn("audit append failed for reverted sweep %s: %v", user.SweepTxHash, err)
		}
		return false, fmt.Errorf("%s", reason)
	}

	// Confirmed. The sweep transaction row nets the swept amount out of the
	// address's recorded balance so future deposits are still detected.
	if err := j.store.RecordTransaction(&model.UsdcTransaction{
		UserID:      user.ID,
		Type:        model.TxTypeSweep,
		Amount:      user.SweepBalance,
		FromAddress: user.DepositAddress,
		ToAddress:   j.treasury,
		TxHash:      user.SweepTxHash,
		Status:      model.TxStatusConfirmed,
	}); err != nil && err != ledger.ErrConflict {
		return false, fmt.Errorf("record sweep transaction: %w", err)
	}

	if err := j.store.MarkSweepComplete(user.ID, j.now()); err != nil {
		return false, fmt.Errorf("mark sweep complete: %w", err)
	}
	if err := j.store.AppendAudit(ledger.AuditEntry{
		EventType: model.AuditDepositSwept,
		UserID:    user.ID,
		Amount:    user.SweepBalance,
		TxHash:    user.SweepTxHash,
		Metadata:  map[string]interface{}{"block": receipt.BlockNumber},
	}); err != nil {
		logger.Warn("audit append failed for swept %s: %v", user.SweepTxHash, err)
	}
	return true, nil
}
