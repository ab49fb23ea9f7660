package ledger

import (
	"fmt"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// maxUplineDepth bounds upline walks; the network tree is six levels deep.
const maxUplineDepth = 6

func (s *Store) UserByID(id string) (*model.User, error) {
	var user model.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &user, nil
}

func (s *Store) UserByPositionID(positionID string) (*model.User, error) {
	var user model.User
	if err := s.db.First(&user, "position_id = ?", positionID).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &user, nil
}

func (s *Store) SaveUser(user *model.User) error {
	return s.db.Save(user).Error
}

func (s *Store) CreateUser(user *model.User) error {
	return s.db.Create(user).Error
}

// UsersForDepositCheck returns users with a deposit address, least recently
// checked first, so a bounded batch still cycles through everyone.
func (s *Store) UsersForDepositCheck(limit int) ([]model.User, error) {
	var users []model.User
	err := s.db.
		Where("deposit_address <> ''").
		Order("last_deposit_check_at ASC NULLS FIRST").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func (s *Store) TouchDepositCheck(userID string, at time.Time) error {
	return s.db.Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_deposit_check_at", at).Error
}

// UsersWithoutDepositAddress returns users still needing address provisioning.
func (s *Store) UsersWithoutDepositAddress(limit int) ([]model.User, error) {
	var users []model.User
	err := s.db.
		Where("deposit_address = ''").
		Order("created_at ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// NextDerivationIndex returns one past the highest assigned index.
func (s *Store) NextDerivationIndex() (int64, error) {
	var max *int64
	if err := s.db.Model(&model.User{}).
		Select("MAX(derivation_index)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

// Upline walks the parent chain from the user's position upward, nearest
// ancestor first. Stops at the root or at maxUplineDepth.
func (s *Store) Upline(user *model.User) ([]model.User, error) {
	var upline []model.User
	parentID := user.ParentPositionID
	for depth := 0; parentID != nil && *parentID != "" && depth < maxUplineDepth; depth++ {
		parent, err := s.UserByPositionID(*parentID)
		if err != nil {
			if err == ErrNotFound {
				break
			}
			return nil, fmt.Errorf("resolve upline position %s: %w", *parentID, err)
		}
		upline = append(upline, *parent)
		parentID = parent.ParentPositionID
	}
	return upline, nil
}

// ChildrenOf returns direct children ordered by their slot.
func (s *Store) ChildrenOf(parentPositionID string) ([]model.User, error) {
	var users []model.User
	err := s.db.
		Where("parent_position_id = ?", parentPositionID).
		Order("network_position ASC").
		Find(&users).Error
	return users, err
}

// IncrementActiveNetworkCounts bumps the active-member counter for every
// given position in one statement.
func (s *Store) IncrementActiveNetworkCounts(positionIDs []string) error {
	if len(positionIDs) == 0 {
		return nil
	}
	return s.db.Model(&model.User{}).
		Where("position_id IN ?", positionIDs).
		Update("active_network_count", gorm.Expr("active_network_count + 1")).Error
}

// AddNetworkVolume distributes a payment amount to every given position in
// one statement ("sniper volume").
func (s *Store) AddNetworkVolume(positionIDs []string, amount decimal.Decimal) error {
	if len(positionIDs) == 0 {
		return nil
	}
	return s.db.Model(&model.User{}).
		Where("position_id IN ?", positionIDs).
		Update("total_network_volume", gorm.Expr("total_network_volume + ?", amount)).Error
}

// ActivateReferral flips the referral pair to active.
func (s *Store) ActivateReferral(referrerID, referredID string) error {
	return s.db.Model(&model.Referral{}).
		Where("referrer_id = ? AND referred_id = ?", referrerID, referredID).
		Update("status", model.ReferralStatusActive).Error
}

func (s *Store) CreateReferral(ref *model.Referral) error {
	return s.db.Create(ref).Error
}
