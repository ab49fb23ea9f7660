package ledger

import (
	"errors"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"gorm.io/gorm"
)

// ActiveIntent returns the user's single live intent, if any.
func (s *Store) ActiveIntent(userID string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	err := s.db.
		Where("user_id = ? AND status IN ?", userID,
			[]model.IntentStatus{model.IntentCreated, model.IntentAwaitingFunds, model.IntentProcessing}).
		Order("created_at DESC").
		First(&intent).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &intent, nil
}

func (s *Store) CreateIntent(intent *model.PaymentIntent) error {
	return s.db.Create(intent).Error
}

// UpdateIntentStatusIf is the compare-and-swap primitive on intent status.
// Zero rows affected means another processor owns the transition; callers
// must treat that as "skip", not as an error.
func (s *Store) UpdateIntentStatusIf(intentID uint, from []model.IntentStatus, to model.IntentStatus) (bool, error) {
	res := s.db.Model(&model.PaymentIntent{}).
		Where("id = ? AND status IN ?", intentID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExpireStaleIntents marks non-terminal intents past their deadline. This
// includes intents orphaned in processing by a run that died between the
// claim and completion; expiring one frees the deposit monitor to open a
// fresh intent, and the payment period key keeps a retry from double
// crediting if the dead run had already committed.
func (s *Store) ExpireStaleIntents(now time.Time) (int64, error) {
	res := s.db.Model(&model.PaymentIntent{}).
		Where("status IN ? AND expires_at < ?",
			[]model.IntentStatus{model.IntentCreated, model.IntentAwaitingFunds, model.IntentProcessing}, now).
		Update("status", model.IntentExpired)
	return res.RowsAffected, res.Error
}

// CreatePayment inserts the payment row for a billing period. The unique
// (user_id, period_key) index turns a duplicate run into ErrDuplicatePayment.
func (s *Store) CreatePayment(payment *model.Payment) error {
	if err := s.db.Create(payment).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicatePayment
		}
		return err
	}
	return nil
}

// PaymentForPeriod looks up the payment recorded under a period key.
func (s *Store) PaymentForPeriod(userID, periodKey string) (*model.Payment, error) {
	var payment model.Payment
	err := s.db.First(&payment, "user_id = ? AND period_key = ?", userID, periodKey).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &payment, nil
}
