package ledger

import (
	"errors"

	"gorm.io/gorm"
)

// Sentinel errors shared by all store operations.
var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicatePayment = errors.New("payment already recorded for this period")
	ErrConflict         = errors.New("conditional update matched no rows")
)

// Store is the typed query layer over the relational ledger. All treasury
// jobs go through it; none of them touch gorm directly.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for transaction composition.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithTx returns a Store bound to an open transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Transaction runs fn inside a database transaction, handing it a Store bound
// to that transaction.
func (s *Store) Transaction(fn func(*Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(s.WithTx(tx))
	})
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
