package treasury

import (
	"context"
	"fmt"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
)

// AddressSource derives a deposit address for a derivation index.
type AddressSource interface {
	Address(index int64) (string, error)
}

// ProvisionJob backfills custodial deposit addresses for users created
// without one. Indexes are handed out sequentially past the highest assigned
// index and never reused.
type ProvisionJob struct {
	store     *ledger.Store
	addresses AddressSource
	batchSize int
}

func NewProvisionJob(store *ledger.Store, addresses AddressSource, batchSize int) *ProvisionJob {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &ProvisionJob{store: store, addresses: addresses, batchSize: batchSize}
}

func (j *ProvisionJob) Name() string { return "provision_addresses" }

func (j *ProvisionJob) Run(ctx context.Context) (*RunSummary, error) {
	summary := newSummary(j.Name())

	users, err := j.store.UsersWithoutDepositAddress(j.batchSize)
	if err != nil {
		return summary, fmt.Errorf("fetch unprovisioned users: %w", err)
	}
	if len(users) == 0 {
		return summary, nil
	}

	index, err := j.store.NextDerivationIndex()
	if err != nil {
		return summary, fmt.Errorf("next derivation index: %w", err)
	}

	for i := range users {
		user := &users[i]
		summary.Processed++

		address, err := j.addresses.Address(index)
		if err != nil {
			summary.addError("derive address for %s: %v", user.ID, err)
			continue
		}
		user.DepositAddress = address
		user.DerivationIndex = index
		if err := j.store.SaveUser(user); err != nil {
			summary.addError("save %s: %v", user.ID, err)
			continue
		}
		index++
		summary.Succeeded++
	}
	return summary, nil
}
