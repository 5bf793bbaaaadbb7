package memory

import (
	"testing"

	"github.com/Layr-Labs/reward-vault-go/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-go/pkg/persistence/persistencetest"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPersistence(t *testing.T) {
	persistencetest.RunSuite(t, func(t *testing.T) persistence.IVaultPersistence {
		return NewMemoryPersistence()
	})
}

func TestMemoryPersistence_ViewIsReadOnly(t *testing.T) {
	mp := NewMemoryPersistence()
	defer func() { _ = mp.Close() }()

	err := mp.View(func(txn persistence.IVaultReader) error {
		return txn.(persistence.IVaultTxn).PutProjectVault(&types.ProjectVault{ProjectID: 1, AssetID: common.HexToAddress("0x01")})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}

func TestMemoryPersistence_ViewSeesSnapshot(t *testing.T) {
	mp := NewMemoryPersistence()
	defer func() { _ = mp.Close() }()

	key := types.ProjectVaultKey{ProjectID: 1, AssetID: common.HexToAddress("0x01")}
	require.NoError(t, mp.Update(func(txn persistence.IVaultTxn) error {
		return txn.PutProjectVault(&types.ProjectVault{ProjectID: 1, AssetID: key.AssetID, TotalDeposited: 1})
	}))

	require.NoError(t, mp.Update(func(txn persistence.IVaultTxn) error {
		return txn.PutProjectVault(&types.ProjectVault{ProjectID: 1, AssetID: key.AssetID, TotalDeposited: 2})
	}))

	require.NoError(t, mp.View(func(txn persistence.IVaultReader) error {
		pv, err := txn.GetProjectVault(key)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), pv.TotalDeposited)
		return nil
	}))
}
