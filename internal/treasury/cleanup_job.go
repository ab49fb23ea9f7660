package treasury

import (
	"context"
	"fmt"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
)

// CleanupJob expires payment intents that never received funds before their
// deadline.
type CleanupJob struct {
	store *ledger.Store
	now   func() time.Time
}

func NewCleanupJob(store *ledger.Store) *CleanupJob {
	return &CleanupJob{store: store, now: time.Now}
}

func (j *CleanupJob) Name() string { return "cleanup_intents" }

func (j *CleanupJob) Run(ctx context.Context) (*RunSummary, error) {
	summary := newSummary(j.Name())

	expired, err := j.store.ExpireStaleIntents(j.now())
	if err != nil {
		return summary, fmt.Errorf("expire stale intents: %w", err)
	}

	summary.Processed = int(expired)
	summary.Succeeded = int(expired)
	if expired > 0 {
		if err := j.store.AppendAudit(ledger.AuditEntry{
			EventType: model.AuditIntentExpired,
			Metadata:  map[string]interface{}{"count": expired},
		}); err != nil {
			logger.Warn("audit append failed for intent expiry: %v", err)
		}
	}
	return summary, nil
}
