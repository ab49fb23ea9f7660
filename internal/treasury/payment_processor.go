package treasury

import (
	"context"
	"fmt"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/notify"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Network tree shape: three positions wide, six levels deep.
const (
	networkWidth    = 3
	networkMaxDepth = 6
)

// PaymentProcessor applies the side effects of a completed payment. Every
// transition runs in one database transaction keyed by a deterministic
// period identifier, so a duplicate invocation rolls back whole. Due dates
// can never advance without a matching payment row.
type PaymentProcessor struct {
	store        *ledger.Store
	dispatcher   notify.Dispatcher
	bonusRate    decimal.Decimal
	residualRate decimal.Decimal
	now          func() time.Time
}

func NewPaymentProcessor(store *ledger.Store, dispatcher notify.Dispatcher, bonusRate, residualRate float64) *PaymentProcessor {
	return &PaymentProcessor{
		store:        store,
		dispatcher:   dispatcher,
		bonusRate:    decimal.NewFromFloat(bonusRate),
		residualRate: decimal.NewFromFloat(residualRate),
		now:          time.Now,
	}
}

// Process applies a confirmed payment for the user. depositTxID, when set,
// links the recorded deposit transaction to the payment row created here.
// Returns ledger.ErrDuplicatePayment when the period was already credited.
func (p *PaymentProcessor) Process(ctx context.Context, userID string, paymentType model.PaymentType, amount decimal.Decimal, depositTxID *uint) error {
	return p.store.Transaction(func(tx *ledger.Store) error {
		user, err := tx.UserByID(userID)
		if err != nil {
			return fmt.Errorf("load user %s: %w", userID, err)
		}
		dispatcher := notify.ForStore(p.dispatcher, tx)

		if paymentType == model.PaymentTypeInitial {
			return p.processInitial(ctx, tx, dispatcher, user, amount, depositTxID)
		}
		return p.processSubscription(ctx, tx, dispatcher, user, paymentType, amount, depositTxID)
	})
}

func (p *PaymentProcessor) processInitial(ctx context.Context, tx *ledger.Store, dispatcher notify.Dispatcher, user *model.User, amount decimal.Decimal, depositTxID *uint) error {
	now := p.now()

	// The payment row goes first: its (user_id, period_key) unique index is
	// the idempotency gate for the entire transition.
	payment := &model.Payment{
		UserID:    user.ID,
		PeriodKey: model.InitialPeriodKey,
		Type:      model.PaymentTypeInitial,
		Amount:    amount,
	}
	if err := tx.CreatePayment(payment); err != nil {
		return err
	}
	if depositTxID != nil {
		if err := tx.AttachPayment(*depositTxID, payment.ID); err != nil {
			return fmt.Errorf("link deposit to payment: %w", err)
		}
	}

	var referrer *model.User
	if user.ReferrerID != nil {
		r, err := tx.UserByID(*user.ReferrerID)
		if err != nil && err != ledger.ErrNotFound {
			return fmt.Errorf("load referrer: %w", err)
		}
		referrer = r
	}

	// Position assignment is idempotent by presence check: a user placed in
	// the tree is never moved.
	if !user.HasPosition() && referrer != nil {
		if !referrer.HasPosition() {
			return fmt.Errorf("referrer %s has no network position yet", referrer.ID)
		}
		if err := p.assignPosition(tx, user, referrer); err != nil {
			return fmt.Errorf("assign network position: %w", err)
		}
	}

	wasActive := user.IsActive
	user.InitialPaymentCompleted = true
	user.IsActive = true
	anchor := anchorDate(now)
	user.PreviousPaymentDueDate = &anchor
	next := nextDueDate(anchor, user.PaymentSchedule)
	user.NextPaymentDueDate = &next
	if err := tx.SaveUser(user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	// Count the new active member for every ancestor, once. The wasActive
	// guard keeps a reprocessed activation from double counting.
	if !wasActive && user.HasPosition() {
		upline, err := tx.Upline(user)
		if err != nil {
			return fmt.Errorf("walk upline: %w", err)
		}
		if err := tx.IncrementActiveNetworkCounts(positionIDs(upline)); err != nil {
			return fmt.Errorf("increment active counts: %w", err)
		}
	}

	if referrer != nil {
		if err := tx.ActivateReferral(referrer.ID, user.ID); err != nil {
			return fmt.Errorf("activate referral: %w", err)
		}

		bonus := amount.Mul(p.bonusRate).Round(2)
		commission := &model.Commission{
			ReferrerID: referrer.ID,
			ReferredID: user.ID,
			Type:       model.CommissionDirectBonus,
			Amount:     bonus,
			Status:     model.CommissionStatusPending,
		}
		if err := tx.CreateCommission(commission); err != nil {
			return fmt.Errorf("create direct bonus: %w", err)
		}

		dispatcher.Dispatch(ctx, model.NotifyDirectBonus, referrer.ID, map[string]interface{}{
			"amount":      bonus.String(),
			"referred_id": user.ID,
		})
	}

	dispatcher.Dispatch(ctx, model.NotifyPaymentReceived, user.ID, map[string]interface{}{
		"amount": amount.String(),
		"type":   string(model.PaymentTypeInitial),
	})

	return tx.AppendAudit(ledger.AuditEntry{
		EventType: model.AuditPaymentProcessed,
		UserID:    user.ID,
		Amount:    amount,
		Metadata:  map[string]interface{}{"payment_type": "initial", "payment_id": payment.ID},
	})
}

func (p *PaymentProcessor) processSubscription(ctx context.Context, tx *ledger.Store, dispatcher notify.Dispatcher, user *model.User, paymentType model.PaymentType, amount decimal.Decimal, depositTxID *uint) error {
	now := p.now()

	periodStart := anchorDate(now)
	if user.PreviousPaymentDueDate != nil {
		periodStart = *user.PreviousPaymentDueDate
	}

	payment := &model.Payment{
		UserID:    user.ID,
		PeriodKey: model.PeriodKeyFor(periodStart),
		Type:      paymentType,
		Amount:    amount,
	}
	if err := tx.CreatePayment(payment); err != nil {
		// Duplicate period: the transaction rolls back, so due dates stay
		// untouched too.
		return err
	}
	if depositTxID != nil {
		if err := tx.AttachPayment(*depositTxID, payment.ID); err != nil {
			return fmt.Errorf("link deposit to payment: %w", err)
		}
	}

	// Periods chain off each other, not off "now", so late payments do not
	// drift the billing anchor.
	newPrev := nextDueDate(periodStart, user.PaymentSchedule)
	if user.NextPaymentDueDate != nil {
		newPrev = *user.NextPaymentDueDate
	}
	newNext := nextDueDate(newPrev, user.PaymentSchedule)
	user.PreviousPaymentDueDate = &newPrev
	user.NextPaymentDueDate = &newNext
	user.IsActive = true
	if err := tx.SaveUser(user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	// Sniper volume: the payment amount counts toward every ancestor.
	if user.HasPosition() {
		upline, err := tx.Upline(user)
		if err != nil {
			return fmt.Errorf("walk upline: %w", err)
		}
		if err := tx.AddNetworkVolume(positionIDs(upline), amount); err != nil {
			return fmt.Errorf("distribute network volume: %w", err)
		}
	}

	if user.ReferrerID != nil {
		residual := amount.Mul(p.residualRate).Round(2)
		commission := &model.Commission{
			ReferrerID: *user.ReferrerID,
			ReferredID: user.ID,
			Type:       model.CommissionMonthlyResidual,
			Amount:     residual,
			Status:     model.CommissionStatusPending,
		}
		if err := tx.CreateCommission(commission); err != nil {
			return fmt.Errorf("create residual commission: %w", err)
		}
	}

	dispatcher.Dispatch(ctx, model.NotifyPaymentReceived, user.ID, map[string]interface{}{
		"amount": amount.String(),
		"type":   string(paymentType),
	})

	return tx.AppendAudit(ledger.AuditEntry{
		EventType: model.AuditPaymentProcessed,
		UserID:    user.ID,
		Amount:    amount,
		Metadata: map[string]interface{}{
			"payment_type": string(paymentType),
			"payment_id":   payment.ID,
			"period_key":   payment.PeriodKey,
		},
	})
}

// assignPosition places the user in the first open slot of the referrer's
// subtree, breadth first, bounded by the tree depth.
func (p *PaymentProcessor) assignPosition(tx *ledger.Store, user *model.User, referrer *model.User) error {
	queue := []model.User{*referrer}
	for depth := 0; len(queue) > 0 && depth < networkMaxDepth; depth++ {
		var next []model.User
		for _, node := range queue {
			children, err := tx.ChildrenOf(node.PositionID)
			if err != nil {
				return err
			}
			if len(children) < networkWidth {
				parentID := node.PositionID
				user.NetworkLevel = node.NetworkLevel + 1
				user.NetworkPosition = len(children)
				user.PositionID = uuid.NewString()
				user.ParentPositionID = &parentID
				logger.Info("placed user %s at level %d position %d under %s",
					user.ID, user.NetworkLevel, user.NetworkPosition, node.ID)
				return nil
			}
			next = append(next, children...)
		}
		queue = next
	}
	return fmt.Errorf("no open slot in referrer subtree within %d levels", networkMaxDepth)
}

// anchorDate normalizes a billing anchor: day of month capped at 28 so the
// anchor exists in every month.
func anchorDate(t time.Time) time.Time {
	day := t.Day()
	if day > 28 {
		day = 28
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, time.UTC)
}

func nextDueDate(from time.Time, schedule model.PaymentSchedule) time.Time {
	if schedule == model.ScheduleWeekly {
		return from.AddDate(0, 0, 7)
	}
	return from.AddDate(0, 1, 0)
}

func positionIDs(users []model.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.PositionID)
	}
	return ids
}
