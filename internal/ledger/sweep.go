package ledger

import (
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/shopspring/decimal"
)

// UsersInSweepStatus returns users in one sweep state, largest pending
// balance first so the most valuable sweeps happen before the per-run cap.
func (s *Store) UsersInSweepStatus(status model.SweepStatus, limit int) ([]model.User, error) {
	var users []model.User
	err := s.db.
		Where("sweep_status = ?", status).
		Order("sweep_balance DESC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// MarkNeedsFunding moves an idle user into the sweep pipeline. Only idle
// users transition, so a user mid-sweep is never re-enqueued.
func (s *Store) MarkNeedsFunding(userID string, balance decimal.Decimal) error {
	res := s.db.Model(&model.User{}).
		Where("id = ? AND sweep_status = ?", userID, model.SweepIdle).
		Updates(map[string]interface{}{
			"sweep_status":  model.SweepNeedsFunding,
			"sweep_balance": balance,
			"sweep_error":   "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// MarkFundingSent records the gas-funding broadcast. Conditional on the user
// still being in needs_funding.
func (s *Store) MarkFundingSent(userID, fundingTxHash string) error {
	res := s.db.Model(&model.User{}).
		Where("id = ? AND sweep_status = ?", userID, model.SweepNeedsFunding).
		Updates(map[string]interface{}{
			"sweep_status":    model.SweepFundingSent,
			"funding_tx_hash": fundingTxHash,
			"sweep_attempts":  0,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// MarkSweeping records the sweep broadcast itself. The amount is the balance
// actually swept, which can differ from the snapshot taken at enqueue time
// when another deposit landed in between; the verify stage records this
// amount as the outflow.
func (s *Store) MarkSweeping(userID, sweepTxHash string, amount decimal.Decimal) error {
	res := s.db.Model(&model.User{}).
		Where("id = ? AND sweep_status = ?", userID, model.SweepFundingSent).
		Updates(map[string]interface{}{
			"sweep_status":   model.SweepSweeping,
			"sweep_tx_hash":  sweepTxHash,
			"sweep_balance":  amount,
			"sweep_attempts": 0,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// MarkSweepComplete returns the user to idle after a confirmed sweep.
func (s *Store) MarkSweepComplete(userID string, at time.Time) error {
	return s.db.Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"sweep_status":   model.SweepIdle,
			"sweep_balance":  decimal.Zero,
			"last_sweep_at":  at,
			"sweep_attempts": 0,
			"sweep_error":    "",
		}).Error
}

// MarkSweepFailed parks the user for manual intervention.
func (s *Store) MarkSweepFailed(userID, reason string) error {
	return s.db.Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"sweep_status": model.SweepFailed,
			"sweep_error":  reason,
		}).Error
}

// IncrementSweepAttempts counts one more verify poll for a pending sweep.
func (s *Store) IncrementSweepAttempts(userID string) (int, error) {
	var user model.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return 0, translateNotFound(err)
	}
	attempts := user.SweepAttempts + 1
	if err := s.db.Model(&model.User{}).
		Where("id = ?", userID).
		Update("sweep_attempts", attempts).Error; err != nil {
		return 0, err
	}
	return attempts, nil
}
