package ledger

import (
	"errors"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecordTransaction appends a confirmed transfer. The unique index on tx_hash
// makes re-recording the same on-chain transfer a conflict rather than a
// duplicate credit.
func (s *Store) RecordTransaction(tx *model.UsdcTransaction) error {
	if err := s.db.Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// AttachPayment links a recorded deposit to the payment it funded. The only
// mutation ever applied to a transaction row.
func (s *Store) AttachPayment(txID uint, paymentID uint) error {
	return s.db.Model(&model.UsdcTransaction{}).
		Where("id = ?", txID).
		Update("related_payment_id", paymentID).Error
}

// PaidInPeriod sums confirmed incoming funds for a user since periodStart.
func (s *Store) PaidInPeriod(userID string, periodStart time.Time) (decimal.Decimal, error) {
	return s.sumTransactions(
		s.db.Model(&model.UsdcTransaction{}).
			Where("user_id = ? AND status = ? AND created_at > ?",
				userID, model.TxStatusConfirmed, periodStart).
			Where("type IN ?", []model.TransactionType{model.TxTypeDeposit, model.TxTypePaymentIn}),
	)
}

// RecordedAddressBalance returns the balance the ledger expects an address to
// hold: every confirmed deposit recorded against it minus every confirmed
// sweep out of it. Compared with the live on-chain balance to find unrecorded
// funds; without netting out sweeps, a swept address would mask all later
// deposits.
func (s *Store) RecordedAddressBalance(address string) (decimal.Decimal, error) {
	in, err := s.sumTransactions(
		s.db.Model(&model.UsdcTransaction{}).
			Where("to_address = ? AND status = ?", address, model.TxStatusConfirmed).
			Where("type IN ?", []model.TransactionType{model.TxTypeDeposit, model.TxTypePaymentIn}),
	)
	if err != nil {
		return decimal.Zero, err
	}
	out, err := s.sumTransactions(
		s.db.Model(&model.UsdcTransaction{}).
			Where("from_address = ? AND status = ?", address, model.TxStatusConfirmed).
			Where("type IN ?", []model.TransactionType{model.TxTypeSweep, model.TxTypeWithdrawal}),
	)
	if err != nil {
		return decimal.Zero, err
	}
	return in.Sub(out), nil
}

func (s *Store) sumTransactions(query *gorm.DB) (decimal.Decimal, error) {
	var sum *string
	if err := query.Select("CAST(SUM(amount) AS TEXT)").Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	if sum == nil || *sum == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*sum)
}
