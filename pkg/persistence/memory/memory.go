package memory

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/Layr-Labs/reward-vault-go/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/google/btree"
)

const btreeDegree = 16

// MemoryPersistence is an in-memory implementation of IVaultPersistence.
// This implementation is intended for TESTING and local development.
//
// All data is stored in memory and will be lost when the process exits.
// Update transactions are serialized; each one works on copy-on-write clones
// of the committed trees which replace them only if fn succeeds.
type MemoryPersistence struct {
	mu sync.RWMutex

	authority  *types.VaultAuthority
	projects   *btree.BTreeG[*types.ProjectVault]
	signatures *btree.BTreeG[*types.UsedSignatureRecord]

	closed bool
}

func lessProjectVault(a, b *types.ProjectVault) bool {
	return persistence.LessProjectVaultKey(a.Key(), b.Key())
}

func lessSignatureRecord(a, b *types.UsedSignatureRecord) bool {
	return bytes.Compare(a.Fingerprint.Bytes(), b.Fingerprint.Bytes()) < 0
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since this should not be used in production.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL DATA WILL BE LOST ON RESTART")
	fmt.Println("⚠️  Set VAULT_PERSISTENCE_TYPE=badger or redis for production")

	return &MemoryPersistence{
		projects:   btree.NewG[*types.ProjectVault](btreeDegree, lessProjectVault),
		signatures: btree.NewG[*types.UsedSignatureRecord](btreeDegree, lessSignatureRecord),
	}
}

// Update runs fn against staged copies and commits them if fn succeeds
func (m *MemoryPersistence) Update(fn func(txn persistence.IVaultTxn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	txn := &memoryTxn{
		authority:  m.authority.Clone(),
		projects:   m.projects.Clone(),
		signatures: m.signatures.Clone(),
	}
	if err := fn(txn); err != nil {
		return err
	}

	m.authority = txn.authority
	m.projects = txn.projects
	m.signatures = txn.signatures
	return nil
}

// View runs fn against the committed state
func (m *MemoryPersistence) View(fn func(txn persistence.IVaultReader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}

	return fn(&memoryTxn{
		authority:  m.authority,
		projects:   m.projects,
		signatures: m.signatures,
		readOnly:   true,
	})
}

// Close marks the persistence layer as closed
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}

// memoryTxn stores deep copies on write and returns deep copies on read
type memoryTxn struct {
	authority  *types.VaultAuthority
	projects   *btree.BTreeG[*types.ProjectVault]
	signatures *btree.BTreeG[*types.UsedSignatureRecord]
	readOnly   bool
}

var _ persistence.IVaultTxn = (*memoryTxn)(nil)

func (t *memoryTxn) writable() error {
	if t.readOnly {
		return fmt.Errorf("write in read-only transaction")
	}
	return nil
}

func (t *memoryTxn) GetAuthority() (*types.VaultAuthority, error) {
	return t.authority.Clone(), nil
}

func (t *memoryTxn) PutAuthority(auth *types.VaultAuthority) error {
	if auth == nil {
		return fmt.Errorf("cannot save nil VaultAuthority")
	}
	if err := t.writable(); err != nil {
		return err
	}
	t.authority = auth.Clone()
	return nil
}

func (t *memoryTxn) GetProjectVault(key types.ProjectVaultKey) (*types.ProjectVault, error) {
	pv, ok := t.projects.Get(&types.ProjectVault{ProjectID: key.ProjectID, AssetID: key.AssetID})
	if !ok {
		return nil, nil
	}
	return pv.Clone(), nil
}

func (t *memoryTxn) ListProjectVaults() ([]*types.ProjectVault, error) {
	out := make([]*types.ProjectVault, 0, t.projects.Len())
	t.projects.Ascend(func(pv *types.ProjectVault) bool {
		out = append(out, pv.Clone())
		return true
	})
	return out, nil
}

func (t *memoryTxn) PutProjectVault(pv *types.ProjectVault) error {
	if pv == nil {
		return fmt.Errorf("cannot save nil ProjectVault")
	}
	if err := t.writable(); err != nil {
		return err
	}
	t.projects.ReplaceOrInsert(pv.Clone())
	return nil
}

func (t *memoryTxn) DeleteProjectVault(key types.ProjectVaultKey) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.projects.Delete(&types.ProjectVault{ProjectID: key.ProjectID, AssetID: key.AssetID})
	return nil
}

func (t *memoryTxn) GetSignatureRecord(fp types.Fingerprint) (*types.UsedSignatureRecord, error) {
	rec, ok := t.signatures.Get(&types.UsedSignatureRecord{Fingerprint: fp})
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (t *memoryTxn) PutSignatureRecord(rec *types.UsedSignatureRecord) error {
	if rec == nil {
		return fmt.Errorf("cannot save nil UsedSignatureRecord")
	}
	if err := t.writable(); err != nil {
		return err
	}
	cp := *rec
	t.signatures.ReplaceOrInsert(&cp)
	return nil
}

func (t *memoryTxn) DeleteSignatureRecord(fp types.Fingerprint) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.signatures.Delete(&types.UsedSignatureRecord{Fingerprint: fp})
	return nil
}
