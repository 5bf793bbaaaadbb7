package persistence

import (
	"errors"

	"github.com/Layr-Labs/reward-vault-go/pkg/types"
)

// ErrClosed is returned by every operation after Close
var ErrClosed = errors.New("persistence layer is closed")

// ErrConflict is returned when a concurrent transaction modified data this
// transaction read. The transaction had no effect and may be retried.
var ErrConflict = errors.New("transaction conflict")

// IVaultReader exposes the read side of a transaction.
// Not found is not an error: lookups return nil, nil.
type IVaultReader interface {
	// GetAuthority returns the vault authority or nil before Initialize
	GetAuthority() (*types.VaultAuthority, error)

	// GetProjectVault returns the record for key or nil if none exists
	GetProjectVault(key types.ProjectVaultKey) (*types.ProjectVault, error)

	// ListProjectVaults returns all records ordered by project id, then asset
	ListProjectVaults() ([]*types.ProjectVault, error)

	// GetSignatureRecord returns the consumption record for fp or nil
	GetSignatureRecord(fp types.Fingerprint) (*types.UsedSignatureRecord, error)
}

// IVaultTxn is a read-write transaction. Writes become visible to other
// transactions only when the enclosing Update returns nil.
type IVaultTxn interface {
	IVaultReader

	PutAuthority(auth *types.VaultAuthority) error
	PutProjectVault(pv *types.ProjectVault) error

	// DeleteProjectVault is idempotent
	DeleteProjectVault(key types.ProjectVaultKey) error

	PutSignatureRecord(rec *types.UsedSignatureRecord) error

	// DeleteSignatureRecord is idempotent. Only used to compensate a
	// consumption whose external transfer failed.
	DeleteSignatureRecord(fp types.Fingerprint) error
}

// IVaultPersistence stores vault state with all-or-nothing transactions.
// All implementations must be thread-safe.
type IVaultPersistence interface {
	// Update runs fn in a read-write transaction. If fn returns an error
	// nothing it wrote is persisted and that error is returned unchanged.
	Update(fn func(txn IVaultTxn) error) error

	// View runs fn in a read-only transaction over a consistent snapshot
	View(fn func(txn IVaultReader) error) error

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Should be called during startup to fail fast.
	HealthCheck() error
}
