package badger

import (
	"errors"
	"fmt"

	"github.com/Layr-Labs/reward-vault-go/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerTxn adapts a native badger transaction to persistence.IVaultTxn.
// Badger transactions already read their own writes.
type badgerTxn struct {
	txn    *badgerdb.Txn
	logger *zap.Logger
}

var _ persistence.IVaultTxn = (*badgerTxn)(nil)

// get returns a copy of the value at key, or nil when absent
func (t *badgerTxn) get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", string(key), err)
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) GetAuthority() (*types.VaultAuthority, error) {
	data, err := t.get(keyAuthority)
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalAuthority(data)
}

func (t *badgerTxn) PutAuthority(auth *types.VaultAuthority) error {
	data, err := persistence.MarshalAuthority(auth)
	if err != nil {
		return err
	}
	return t.txn.Set(keyAuthority, data)
}

func (t *badgerTxn) GetProjectVault(key types.ProjectVaultKey) (*types.ProjectVault, error) {
	data, err := t.get([]byte(persistence.ProjectVaultStorageKey(key)))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalProjectVault(data)
}

// ListProjectVaults iterates the project prefix; the padded key layout keeps
// the required ordering
func (t *badgerTxn) ListProjectVaults() ([]*types.ProjectVault, error) {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = []byte(persistence.KeyPrefixProjectVault)

	it := t.txn.NewIterator(opts)
	defer it.Close()

	vaults := make([]*types.ProjectVault, 0)
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()

		data, err := item.ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read value: %w", err)
		}

		pv, err := persistence.UnmarshalProjectVault(data)
		if err != nil {
			t.logger.Sugar().Warnw("Failed to unmarshal ProjectVault, skipping",
				"key", string(item.Key()), "error", err)
			continue
		}
		vaults = append(vaults, pv)
	}

	return vaults, nil
}

func (t *badgerTxn) PutProjectVault(pv *types.ProjectVault) error {
	data, err := persistence.MarshalProjectVault(pv)
	if err != nil {
		return err
	}
	return t.txn.Set([]byte(persistence.ProjectVaultStorageKey(pv.Key())), data)
}

func (t *badgerTxn) DeleteProjectVault(key types.ProjectVaultKey) error {
	return t.txn.Delete([]byte(persistence.ProjectVaultStorageKey(key)))
}

func (t *badgerTxn) GetSignatureRecord(fp types.Fingerprint) (*types.UsedSignatureRecord, error) {
	data, err := t.get([]byte(persistence.SignatureStorageKey(fp)))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalSignatureRecord(data)
}

func (t *badgerTxn) PutSignatureRecord(rec *types.UsedSignatureRecord) error {
	data, err := persistence.MarshalSignatureRecord(rec)
	if err != nil {
		return err
	}
	return t.txn.Set([]byte(persistence.SignatureStorageKey(rec.Fingerprint)), data)
}

func (t *badgerTxn) DeleteSignatureRecord(fp types.Fingerprint) error {
	return t.txn.Delete([]byte(persistence.SignatureStorageKey(fp)))
}
