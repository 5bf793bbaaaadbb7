package vault

import (
	"math"

	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/pkg/errors"
)

// RecordDeposit adds amount to the record for key, creating it when existing
// is nil. existing is not modified.
func RecordDeposit(existing *types.ProjectVault, key types.ProjectVaultKey, amount uint64, now int64) (*types.ProjectVault, error) {
	if amount == 0 {
		return nil, types.ErrInvalidAmount
	}

	if existing == nil {
		return &types.ProjectVault{
			ProjectID:      key.ProjectID,
			AssetID:        key.AssetID,
			TotalDeposited: amount,
			CreatedAt:      now,
			UpdatedAt:      now,
		}, nil
	}

	if existing.Key() != key {
		return nil, errors.Wrapf(types.ErrInvalidParameter, "record %s does not match key %s", existing.Key(), key)
	}
	if existing.TotalDeposited > math.MaxUint64-amount {
		return nil, errors.Wrapf(types.ErrInvalidAmount, "deposit of %d overflows total %d", amount, existing.TotalDeposited)
	}

	updated := existing.Clone()
	updated.TotalDeposited += amount
	updated.UpdatedAt = now
	return updated, nil
}

// RecordRelease charges a withdrawal or claim of amount against the record.
// The release may not exceed what was deposited and not yet released.
func RecordRelease(existing *types.ProjectVault, amount uint64, now int64) (*types.ProjectVault, error) {
	if amount == 0 {
		return nil, types.ErrInvalidAmount
	}
	if existing == nil {
		return nil, errors.Wrap(types.ErrWithdrawTooMuch, "nothing deposited for project")
	}
	if amount > existing.Available() {
		return nil, errors.Wrapf(types.ErrWithdrawTooMuch, "requested %d, available %d", amount, existing.Available())
	}

	updated := existing.Clone()
	updated.TotalReleased += amount
	updated.UpdatedAt = now
	return updated, nil
}
