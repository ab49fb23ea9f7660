package ledger

import (
	"encoding/json"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (s *Store) CreateCommission(c *model.Commission) error {
	return s.db.Create(c).Error
}

func (s *Store) CommissionByID(id uint) (*model.Commission, error) {
	var c model.Commission
	if err := s.db.First(&c, id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &c, nil
}

// PendingUnbatched returns payable commissions not yet assigned to a batch,
// oldest first.
func (s *Store) PendingUnbatched(minAmount decimal.Decimal, limit int) ([]model.Commission, error) {
	var commissions []model.Commission
	err := s.db.
		Where("status = ? AND payout_batch_id IS NULL AND amount >= ?",
			model.CommissionStatusPending, minAmount).
		Order("created_at ASC").
		Limit(limit).
		Find(&commissions).Error
	return commissions, err
}

// CommissionsInBatch returns a batch's commissions, oldest first.
func (s *Store) CommissionsInBatch(batchID uint) ([]model.Commission, error) {
	var commissions []model.Commission
	err := s.db.
		Where("payout_batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&commissions).Error
	return commissions, err
}

// AssignBatch stamps payout_batch_id on the given commissions. The
// payout_batch_id IS NULL filter keeps assignment a partition: a commission
// claimed by a concurrent batcher run is simply not re-claimed.
func (s *Store) AssignBatch(commissionIDs []uint, batchID uint) (int64, error) {
	if len(commissionIDs) == 0 {
		return 0, nil
	}
	res := s.db.Model(&model.Commission{}).
		Where("id IN ? AND payout_batch_id IS NULL", commissionIDs).
		Update("payout_batch_id", batchID)
	return res.RowsAffected, res.Error
}

// MarkCommissionPaid flips pending → paid exactly once. ErrConflict means the
// commission was already paid (or failed terminally) and nothing changed.
func (s *Store) MarkCommissionPaid(id uint, txHash, stripeTransferID string, at time.Time) error {
	res := s.db.Model(&model.Commission{}).
		Where("id = ? AND status = ?", id, model.CommissionStatusPending).
		Updates(map[string]interface{}{
			"status":             model.CommissionStatusPaid,
			"paid_at":            at,
			"error_message":      "",
			"payout_tx_hash":     txHash,
			"stripe_transfer_id": stripeTransferID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// RecordCommissionFailure stores the failure and bumps the retry counter; the
// commission stays pending so a later run can retry.
func (s *Store) RecordCommissionFailure(id uint, message string) error {
	return s.db.Model(&model.Commission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"error_message": message,
			"retry_count":   gorm.Expr("retry_count + 1"),
		}).Error
}

func (s *Store) CreateBatch(batch *model.PayoutBatch) error {
	return s.db.Create(batch).Error
}

func (s *Store) BatchByID(id uint) (*model.PayoutBatch, error) {
	var batch model.PayoutBatch
	if err := s.db.First(&batch, id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &batch, nil
}

func (s *Store) ListBatches(limit int) ([]model.PayoutBatch, error) {
	var batches []model.PayoutBatch
	err := s.db.Order("created_at DESC").Limit(limit).Find(&batches).Error
	return batches, err
}

// BatchesByStatus returns batches in the given states, oldest first.
func (s *Store) BatchesByStatus(statuses []string, limit int) ([]model.PayoutBatch, error) {
	var batches []model.PayoutBatch
	err := s.db.
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Limit(limit).
		Find(&batches).Error
	return batches, err
}

func (s *Store) UpdateBatchStatus(id uint, status string) error {
	return s.db.Model(&model.PayoutBatch{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// PendingCommissionTotal sums everything still owed.
func (s *Store) PendingCommissionTotal() (decimal.Decimal, error) {
	return s.sumTransactions(
		s.db.Model(&model.Commission{}).
			Where("status = ?", model.CommissionStatusPending),
	)
}

// EncodeCommissionIDs serializes batch membership for the batch row.
func EncodeCommissionIDs(ids []uint) string {
	b, _ := json.Marshal(ids)
	return string(b)
}

// DecodeCommissionIDs parses batch membership back out.
func DecodeCommissionIDs(raw string) ([]uint, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []uint
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
