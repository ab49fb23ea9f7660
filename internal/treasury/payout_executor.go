package treasury

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/fiat"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/notify"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// PayoutResult reports one payout attempt. When RequiresManualReview is set
// the transfer went through but the ledger update did not: the money has
// moved, TxHash identifies it, and nothing may retry automatically.
type PayoutResult struct {
	CommissionID         uint            `json:"commission_id"`
	Success              bool            `json:"success"`
	Skipped              bool            `json:"skipped"`
	Amount               decimal.Decimal `json:"amount"`
	Method               string          `json:"method,omitempty"`
	TxHash               string          `json:"tx_hash,omitempty"`
	StripeTransferID     string          `json:"stripe_transfer_id,omitempty"`
	Error                string          `json:"error,omitempty"`
	RequiresManualReview bool            `json:"requires_manual_review,omitempty"`
}

// PayoutExecutor pays a single commission, at most once, over the crypto or
// fiat rail.
type PayoutExecutor struct {
	store         *ledger.Store
	chain         ChainClient
	fiat          fiat.Client
	dispatcher    notify.Dispatcher
	payoutKey     *ecdsa.PrivateKey
	payoutAddress string
	stripeFeeRate decimal.Decimal
	now           func() time.Time
}

func NewPayoutExecutor(store *ledger.Store, chainClient ChainClient, fiatClient fiat.Client, dispatcher notify.Dispatcher, payoutKey *ecdsa.PrivateKey, stripeFeePercent float64) *PayoutExecutor {
	address := ""
	if payoutKey != nil {
		address = crypto.PubkeyToAddress(payoutKey.PublicKey).Hex()
	}
	return &PayoutExecutor{
		store:         store,
		chain:         chainClient,
		fiat:          fiatClient,
		dispatcher:    dispatcher,
		payoutKey:     payoutKey,
		payoutAddress: address,
		stripeFeeRate: decimal.NewFromFloat(stripeFeePercent).Div(decimal.NewFromInt(100)),
		now:           time.Now,
	}
}

// PayoutRunJob drives the executor over every batch still awaiting
// execution. A partially executed batch is picked up again; paid commissions
// inside it short-circuit as skipped, so re-running only retries failures.
type PayoutRunJob struct {
	executor *PayoutExecutor
	pageSize int
}

func NewPayoutRunJob(executor *PayoutExecutor, pageSize int) *PayoutRunJob {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &PayoutRunJob{executor: executor, pageSize: pageSize}
}

func (j *PayoutRunJob) Name() string { return "payouts_execute" }

func (j *PayoutRunJob) Run(ctx context.Context) (*RunSummary, error) {
	summary := newSummary(j.Name())

	batches, err := j.executor.store.BatchesByStatus(
		[]string{model.BatchStatusCreated, model.BatchStatusPartially}, j.pageSize)
	if err != nil {
		return summary, fmt.Errorf("fetch executable batches: %w", err)
	}

	for _, batch := range batches {
		batchSummary, _, err := j.executor.ExecuteBatch(ctx, batch.ID, model.ActorSystem)
		if err != nil {
			summary.addError("batch %d: %v", batch.ID, err)
			continue
		}
		summary.Processed += batchSummary.Processed
		summary.Succeeded += batchSummary.Succeeded
		summary.Skipped += batchSummary.Skipped
		summary.Failed += batchSummary.Failed
		summary.Errors = append(summary.Errors, batchSummary.Errors...)
	}
	summary.Details["batches"] = len(batches)
	return summary, nil
}

// ExecuteBatch pays every commission in the batch sequentially and settles
// the batch status afterwards. Individual failures do not stop the run.
func (e *PayoutExecutor) ExecuteBatch(ctx context.Context, batchID uint, actor string) (*RunSummary, []*PayoutResult, error) {
	summary := newSummary("payouts/execute")

	batch, err := e.store.BatchByID(batchID)
	if err != nil {
		return summary, nil, fmt.Errorf("load batch %d: %w", batchID, err)
	}

	commissions, err := e.store.CommissionsInBatch(batch.ID)
	if err != nil {
		return summary, nil, fmt.Errorf("load batch %d commissions: %w", batch.ID, err)
	}

	results := make([]*PayoutResult, 0, len(commissions))
	for _, commission := range commissions {
		if err := ctx.Err(); err != nil {
			summary.addError("batch %d interrupted: %v", batch.ID, err)
			break
		}
		result := e.Execute(ctx, commission.ID, actor)
		results = append(results, result)
		summary.Processed++
		switch {
		case result.Success:
			summary.Succeeded++
		case result.Skipped:
			summary.Skipped++
		default:
			summary.addError("commission %d: %s", commission.ID, result.Error)
		}
	}

	status := model.BatchStatusExecuted
	if summary.Failed > 0 {
		status = model.BatchStatusPartially
	}
	if err := e.store.UpdateBatchStatus(batch.ID, status); err != nil {
		summary.addError("update batch %d status: %v", batch.ID, err)
	}
	return summary, results, nil
}

// Execute pays one commission. Preconditions are checked in order; each
// business failure is persisted to the commission row and notified, leaving
// the commission retryable. Operational failures (empty payout wallet) abort
// without touching the commission at all.
func (e *PayoutExecutor) Execute(ctx context.Context, commissionID uint, actor string) *PayoutResult {
	result := &PayoutResult{CommissionID: commissionID}

	commission, err := e.store.CommissionByID(commissionID)
	if err != nil {
		result.Error = fmt.Sprintf("load commission: %v", err)
		return result
	}
	result.Amount = commission.Amount

	// Never double-pay. A paid commission short-circuits before any
	// external call and without an audit entry.
	if commission.Status == model.CommissionStatusPaid {
		result.Skipped = true
		return result
	}

	referrer, err := e.store.UserByID(commission.ReferrerID)
	if err != nil {
		return e.businessFailure(ctx, commission, result, fmt.Sprintf("load referrer: %v", err), actor)
	}

	if !referrer.Qualified {
		return e.businessFailure(ctx, commission, result, "referrer is not qualification-eligible", actor)
	}

	switch referrer.PayoutMethod {
	case model.PayoutMethodStripe:
		return e.executeStripe(ctx, commission, referrer, result, actor)
	default:
		return e.executeCrypto(ctx, commission, referrer, result, actor)
	}
}

func (e *PayoutExecutor) executeCrypto(ctx context.Context, commission *model.Commission, referrer *model.User, result *PayoutResult, actor string) *PayoutResult {
	result.Method = string(model.PayoutMethodCrypto)

	if referrer.PayoutWalletAddress == "" {
		return e.businessFailure(ctx, commission, result, "no payout wallet address on file", actor)
	}

	// Operational precondition: an underfunded payout wallet is our problem,
	// not the commission's. Abort without mutating the row; the treasury
	// monitor raises the alert.
	balance, err := e.chain.USDCBalance(ctx, e.payoutAddress)
	if err != nil {
		result.Error = fmt.Sprintf("check payout wallet balance: %v", err)
		return result
	}
	if balance.LessThan(commission.Amount) {
		result.Error = fmt.Sprintf("payout wallet balance %s below commission %s",
			balance.String(), commission.Amount.String())
		return result
	}

	txHash, err := e.chain.SendUSDC(ctx, e.payoutKey, referrer.PayoutWalletAddress, commission.Amount)
	if err != nil {
		return e.businessFailure(ctx, commission, result, fmt.Sprintf("usdc transfer failed: %v", err), actor)
	}
	result.TxHash = txHash

	if err := e.store.RecordTransaction(&model.UsdcTransaction{
		UserID:              referrer.ID,
		Type:                model.TxTypePayout,
		Amount:              commission.Amount,
		FromAddress:         e.payoutAddress,
		ToAddress:           referrer.PayoutWalletAddress,
		TxHash:              txHash,
		Status:              model.TxStatusConfirmed,
		RelatedCommissionID: &commission.ID,
	}); err != nil {
		return e.postTransferFailure(commission, result, txHash, err)
	}

	if err := e.store.MarkCommissionPaid(commission.ID, txHash, "", e.now()); err != nil {
		if err == ledger.ErrConflict {
			// Lost the race to another executor that already paid it; our
			// transfer is the duplicate and needs an operator.
			return e.postTransferFailure(commission, result, txHash,
				fmt.Errorf("commission no longer pending"))
		}
		return e.postTransferFailure(commission, result, txHash, err)
	}

	return e.finishSuccess(ctx, commission, referrer, result, commission.Amount, actor)
}

func (e *PayoutExecutor) executeStripe(ctx context.Context, commission *model.Commission, referrer *model.User, result *PayoutResult, actor string) *PayoutResult {
	result.Method = string(model.PayoutMethodStripe)

	if referrer.StripeAccountID == "" {
		return e.businessFailure(ctx, commission, result, "no stripe account on file", actor)
	}

	account, err := e.fiat.RetrieveAccount(ctx, referrer.StripeAccountID)
	if err != nil {
		return e.businessFailure(ctx, commission, result, fmt.Sprintf("retrieve stripe account: %v", err), actor)
	}
	if !account.PayoutsEnabled {
		return e.businessFailure(ctx, commission, result, "stripe account has payouts disabled", actor)
	}

	// Fiat payouts carry the processing fee; the referrer receives net.
	net := commission.Amount.
		Mul(decimal.NewFromInt(1).Sub(e.stripeFeeRate)).
		Round(2)

	transferID, err := e.fiat.Transfer(ctx, fiat.TransferParams{
		Amount:             net,
		DestinationAccount: referrer.StripeAccountID,
		Metadata: map[string]string{
			"commission_id": fmt.Sprintf("%d", commission.ID),
			"referrer_id":   referrer.ID,
		},
	})
	if err != nil {
		return e.businessFailure(ctx, commission, result, fmt.Sprintf("stripe transfer failed: %v", err), actor)
	}
	result.StripeTransferID = transferID

	if err := e.store.MarkCommissionPaid(commission.ID, "", transferID, e.now()); err != nil {
		return e.postTransferFailure(commission, result, transferID, err)
	}

	return e.finishSuccess(ctx, commission, referrer, result, net, actor)
}

func (e *PayoutExecutor) finishSuccess(ctx context.Context, commission *model.Commission, referrer *model.User, result *PayoutResult, paidAmount decimal.Decimal, actor string) *PayoutResult {
	result.Success = true

	if err := e.store.AppendAudit(ledger.AuditEntry{
		EventType:    model.AuditPayoutExecuted,
		UserID:       referrer.ID,
		CommissionID: &commission.ID,
		Amount:       paidAmount,
		TxHash:       result.TxHash,
		Actor:        actor,
		Metadata: map[string]interface{}{
			"method":             result.Method,
			"destination":        payoutDestination(referrer),
			"stripe_transfer_id": result.StripeTransferID,
		},
	}); err != nil {
		logger.Warn("audit append failed for payout %d: %v", commission.ID, err)
	}

	e.dispatcher.Dispatch(ctx, model.NotifyPayoutProcessed, referrer.ID, map[string]interface{}{
		"amount":        paidAmount.String(),
		"method":        result.Method,
		"commission_id": commission.ID,
	})
	return result
}

// businessFailure persists a recorded failure to the commission row, notifies
// the referrer, and audits. The commission stays pending for retry.
func (e *PayoutExecutor) businessFailure(ctx context.Context, commission *model.Commission, result *PayoutResult, message, actor string) *PayoutResult {
	result.Error = message

	if err := e.store.RecordCommissionFailure(commission.ID, message); err != nil {
		logger.Error("failed to record commission %d failure: %v", commission.ID, err)
	}
	if err := e.store.AppendAudit(ledger.AuditEntry{
		EventType:    model.AuditPayoutFailed,
		UserID:       commission.ReferrerID,
		CommissionID: &commission.ID,
		Amount:       commission.Amount,
		Actor:        actor,
		Metadata:     map[string]interface{}{"reason": message, "method": result.Method},
	}); err != nil {
		logger.Warn("audit append failed for payout failure %d: %v", commission.ID, err)
	}

	e.dispatcher.Dispatch(ctx, model.NotifyPayoutFailed, commission.ReferrerID, map[string]interface{}{
		"amount":        commission.Amount.String(),
		"commission_id": commission.ID,
		"reason":        message,
	})
	return result
}

// postTransferFailure handles the worst case: money moved, ledger write
// failed. The transfer reference goes back to the caller for manual
// reconciliation and nothing retries automatically.
func (e *PayoutExecutor) postTransferFailure(commission *model.Commission, result *PayoutResult, transferRef string, cause error) *PayoutResult {
	result.RequiresManualReview = true
	result.Error = fmt.Sprintf("transfer %s sent but ledger update failed: %v", transferRef, cause)
	logger.Error("MANUAL RECONCILIATION NEEDED: commission %d transfer %s: %v",
		commission.ID, transferRef, cause)
	return result
}

func payoutDestination(user *model.User) string {
	if user.PayoutMethod == model.PayoutMethodStripe {
		return user.StripeAccountID
	}
	return user.PayoutWalletAddress
}
