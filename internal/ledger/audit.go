package ledger

import (
	"encoding/json"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"github.com/shopspring/decimal"
)

// AuditEntry is the write shape for one audit-log row.
type AuditEntry struct {
	EventType    string
	UserID       string
	CommissionID *uint
	BatchID      *uint
	Amount       decimal.Decimal
	TxHash       string
	Actor        string
	Metadata     map[string]interface{}
}

// AppendAudit writes one append-only audit row. Actor defaults to "system".
func (s *Store) AppendAudit(entry AuditEntry) error {
	actor := entry.Actor
	if actor == "" {
		actor = model.ActorSystem
	}
	meta := ""
	if entry.Metadata != nil {
		b, err := json.Marshal(entry.Metadata)
		if err == nil {
			meta = string(b)
		}
	}
	row := model.CryptoAuditLog{
		EventType:    entry.EventType,
		UserID:       entry.UserID,
		CommissionID: entry.CommissionID,
		BatchID:      entry.BatchID,
		Amount:       entry.Amount,
		TxHash:       entry.TxHash,
		Actor:        actor,
		Metadata:     meta,
	}
	return s.db.Create(&row).Error
}

// AuditEvents lists recent audit rows of one type, newest first.
func (s *Store) AuditEvents(eventType string, limit int) ([]model.CryptoAuditLog, error) {
	var rows []model.CryptoAuditLog
	err := s.db.
		Where("event_type = ?", eventType).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
