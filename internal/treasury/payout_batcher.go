package treasury

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/shopspring/decimal"
)

// PayoutBatcher groups pending, unbatched commissions into executable
// batches, one per commission type. Referrers without a payout destination
// or below the minimum total are left unbatched for a later run.
type PayoutBatcher struct {
	store        *ledger.Store
	minPayout    decimal.Decimal
	pageSize     int
	gasPerPayout *big.Int
	now          func() time.Time
}

func NewPayoutBatcher(store *ledger.Store, minPayout float64, pageSize int, gasPerPayoutWei string) *PayoutBatcher {
	gas, ok := new(big.Int).SetString(gasPerPayoutWei, 10)
	if !ok {
		gas = big.NewInt(0)
	}
	if pageSize <= 0 {
		pageSize = 500
	}
	return &PayoutBatcher{
		store:        store,
		minPayout:    decimal.NewFromFloat(minPayout),
		pageSize:     pageSize,
		gasPerPayout: gas,
		now:          time.Now,
	}
}

func (b *PayoutBatcher) Name() string { return "payout_batcher" }

func (b *PayoutBatcher) Run(ctx context.Context) (*RunSummary, error) {
	summary := newSummary(b.Name())

	pending, err := b.store.PendingUnbatched(b.minPayout, b.pageSize)
	if err != nil {
		return summary, fmt.Errorf("fetch pending commissions: %w", err)
	}
	summary.Processed = len(pending)
	if len(pending) == 0 {
		return summary, nil
	}

	direct := make([]model.Commission, 0, len(pending))
	residual := make([]model.Commission, 0, len(pending))
	for _, c := range pending {
		if c.Type == model.CommissionDirectBonus {
			direct = append(direct, c)
		} else {
			residual = append(residual, c)
		}
	}

	for _, group := range []struct {
		commissions []model.Commission
		batchType   model.CommissionType
	}{
		{direct, model.CommissionDirectBonus},
		{residual, model.CommissionMonthlyResidual},
	} {
		batch, assigned, err := b.buildBatch(group.commissions, group.batchType)
		if err != nil {
			summary.addError("batch %s: %v", group.batchType, err)
			continue
		}
		if batch == nil {
			continue
		}
		summary.Succeeded += assigned
		summary.Details[string(group.batchType)] = map[string]interface{}{
			"batch_id":     batch.ID,
			"payout_count": batch.PayoutCount,
			"total_amount": batch.TotalAmount.String(),
		}
	}

	summary.Skipped = summary.Processed - summary.Succeeded
	return summary, nil
}

// buildBatch creates one batch for a commission group. Returns (nil, 0, nil)
// when no commission is payable: an empty batch is never created.
func (b *PayoutBatcher) buildBatch(commissions []model.Commission, batchType model.CommissionType) (*model.PayoutBatch, int, error) {
	if len(commissions) == 0 {
		return nil, 0, nil
	}

	// Per-referrer totals decide eligibility; payouts below the minimum or
	// without a destination wait for more commissions to accumulate.
	totals := map[string]decimal.Decimal{}
	byReferrer := map[string][]model.Commission{}
	for _, c := range commissions {
		totals[c.ReferrerID] = totals[c.ReferrerID].Add(c.Amount)
		byReferrer[c.ReferrerID] = append(byReferrer[c.ReferrerID], c)
	}

	var ids []uint
	total := decimal.Zero
	payoutCount := 0
	for referrerID, amount := range totals {
		referrer, err := b.store.UserByID(referrerID)
		if err != nil {
			logger.Warn("batcher: skip referrer %s: %v", referrerID, err)
			continue
		}
		if !hasPayoutDestination(referrer) {
			logger.Info("batcher: referrer %s has no payout destination on file", referrerID)
			continue
		}
		if amount.LessThan(b.minPayout) {
			continue
		}
		for _, c := range byReferrer[referrerID] {
			ids = append(ids, c.ID)
		}
		total = total.Add(amount)
		payoutCount++
	}
	if payoutCount == 0 {
		return nil, 0, nil
	}

	gasEstimate := new(big.Int).Mul(b.gasPerPayout, big.NewInt(int64(payoutCount)))
	now := b.now()
	batch := &model.PayoutBatch{
		Name:          fmt.Sprintf("%s-%s", batchType, now.Format("2006-01-02-150405")),
		BatchDate:     now,
		Type:          batchType,
		TotalAmount:   total,
		PayoutCount:   payoutCount,
		GasEstimate:   gasEstimate.String(),
		Status:        model.BatchStatusCreated,
		CommissionIDs: ledger.EncodeCommissionIDs(ids),
	}
	if err := b.store.CreateBatch(batch); err != nil {
		return nil, 0, fmt.Errorf("create batch: %w", err)
	}

	assigned, err := b.store.AssignBatch(ids, batch.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("assign commissions to batch %d: %w", batch.ID, err)
	}

	if err := b.store.AppendAudit(ledger.AuditEntry{
		EventType: model.AuditPayoutBatchCreated,
		BatchID:   &batch.ID,
		Amount:    total,
		Metadata: map[string]interface{}{
			"type":         string(batchType),
			"payout_count": payoutCount,
			"assigned":     assigned,
			"gas_estimate": gasEstimate.String(),
		},
	}); err != nil {
		logger.Warn("audit append failed for batch %d: %v", batch.ID, err)
	}

	return batch, int(assigned), nil
}

func hasPayoutDestination(user *model.User) bool {
	switch user.PayoutMethod {
	case model.PayoutMethodStripe:
		return user.StripeAccountID != ""
	default:
		return user.PayoutWalletAddress != ""
	}
}
