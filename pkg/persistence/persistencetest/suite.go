// Package persistencetest holds behaviour tests shared by every
// IVaultPersistence backend.
package persistencetest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Layr-Labs/reward-vault-go/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) persistence.IVaultPersistence

var (
	assetA = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	assetB = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
)

// RunSuite runs every shared test against backends produced by newBackend
func RunSuite(t *testing.T, newBackend Factory) {
	tests := map[string]func(t *testing.T, p persistence.IVaultPersistence){
		"Authority":             testAuthority,
		"ProjectVaults":         testProjectVaults,
		"SignatureRecords":      testSignatureRecords,
		"RollbackOnError":       testRollbackOnError,
		"ReadYourWrites":        testReadYourWrites,
		"ReturnsCopies":         testReturnsCopies,
		"ConcurrentConsumption": testConcurrentConsumption,
		"Close":                 testClose,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			p := newBackend(t)
			defer func() { _ = p.Close() }()
			fn(t, p)
		})
	}
}

func testAuthority(t *testing.T, p persistence.IVaultPersistence) {
	require.NoError(t, p.View(func(txn persistence.IVaultReader) error {
		auth, err := txn.GetAuthority()
		require.NoError(t, err)
		assert.Nil(t, auth, "authority should be nil before it is written")
		return nil
	}))

	auth := &types.VaultAuthority{
		Owner:         common.HexToAddress("0x01"),
		Signers:       []common.Address{common.HexToAddress("0x02")},
		MaxSigners:    10,
		InitializedAt: 42,
	}
	require.NoError(t, p.Update(func(txn persistence.IVaultTxn) error {
		return txn.PutAuthority(auth)
	}))

	require.NoError(t, p.View(func(txn persistence.IVaultReader) error {
		loaded, err := txn.GetAuthority()
		require.NoError(t, err)
		assert.Equal(t, auth, loaded)
		return nil
	}))

	err := p.Update(func(txn persistence.IVaultTxn) error {
		return txn.PutAuthority(nil)
	})
	assert.Error(t, err)
}

func testProjectVaults(t *testing.T, p persistence.IVaultPersistence) {
	records := []*types.ProjectVault{
		{ProjectID: 10, AssetID: assetA, TotalDeposited: 5},
		{ProjectID: 2, AssetID: assetB, TotalDeposited: 7, TotalReleased: 1},
		{ProjectID: 2, AssetID: assetA, TotalDeposited: 9},
	}
	require.NoError(t, p.Update(func(txn persistence.IVaultTxn) error {
		for _, r := range records {
			if err := txn.PutProjectVault(r); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, p.View(func(txn persistence.IVaultReader) error {
		pv, err := txn.GetProjectVault(types.ProjectVaultKey{ProjectID: 2, AssetID: assetB})
		require.NoError(t, err)
		require.NotNil(t, pv)
		assert.Equal(t, uint64(7), pv.TotalDeposited)
		assert.Equal(t, uint64(1), pv.TotalReleased)

		missing, err := txn.GetProjectVault(types.ProjectVaultKey{ProjectID: 99, AssetID: assetA})
		require.NoError(t, err)
		assert.Nil(t, missing)

		list, err := txn.ListProjectVaults()
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, types.ProjectVaultKey{ProjectID: 2, AssetID: assetA}, list[0].Key())
		assert.Equal(t, types.ProjectVaultKey{ProjectID: 2, AssetID: assetB}, list[1].Key())
		assert.Equal(t, types.ProjectVaultKey{ProjectID: 10, AssetID: assetA}, list[2].Key())
		return nil
	}))

	key := types.ProjectVaultKey{ProjectID: 10, AssetID: assetA}
	require.NoError(t, p.Update(func(txn persistence.IVaultTxn) error {
		if err := txn.DeleteProjectVault(key); err != nil {
			return err
		}
		// Idempotent
		return txn.DeleteProjectVault(key)
	}))

	require.NoError(t, p.View(func(txn persistence.IVaultReader) error {
		pv, err := txn.GetProjectVault(key)
		require.NoError(t, err)
		assert.Nil(t, pv)

		list, err := txn.ListProjectVaults()
		require.NoError(t, err)
		assert.Len(t, list, 2)
		return nil
	}))
}

func testSignatureRecords(t *testing.T, p persistence.IVaultPersistence) {
	fp := crypto.Keccak256Hash([]byte("fingerprint"))
	rec := &types.UsedSignatureRecord{
		Fingerprint: fp,
		Consumed:    true,
		Operation:   types.OperationWithdraw,
		Signer:      common.HexToAddress("0x05"),
		ConsumedAt:  100,
	}

	require.NoError(t, p.Update(func(txn persistence.IVaultTxn) error {
		return txn.PutSignatureRecord(rec)
	}))

	require.NoError(t, p.View(func(txn persistence.IVaultReader) error {
		loaded, err := txn.GetSignatureRecord(fp)
		require.NoError(t, err)
		assert.Equal(t, rec, loaded)

		other, err := txn.GetSignatureRecord(crypto.Keccak256Hash([]byte("other")))
		require.NoError(t, err)
		assert.Nil(t, other)
		return nil
	}))

	require.NoError(t, p.Update(func(txn persistence.IVaultTxn) error {
		return txn.DeleteSignatureRecord(fp)
	}))

	require.NoError(t, p.View(func(txn persistence.IVaultReader) error {
		loaded, err := txn.GetSignatureRecord(fp)
		require.NoError(t, err)
		assert.Nil(t, loaded)
		return nil
	}))
}

func testRollbackOnError(t *testing.T, p persistence.IVaultPersistence) {
	boom := errors.New("boom")
	fp := crypto.Keccak256Hash([]byte("rollback"))
	key := types.ProjectVaultKey{ProjectID: 1, AssetID: assetA}

	err := p.Update(func(txn persistence.IVaultTxn) error {
		if err := txn.PutSignatureRecord(&types.UsedSignatureRecord{Fingerprint: fp, Consumed: true}); err != nil {
			return err
		}
		if err := txn.PutProjectVault(&types.ProjectVault{ProjectID: 1, AssetID: assetA, TotalDeposited: 1}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, p.View(func(txn persistence.IVaultReader) error {
		rec, err := txn.GetSignatureRecord(fp)
		require.NoError(t, err)
		assert.Nil(t, rec)

		pv, err := txn.GetProjectVault(key)
		require.NoError(t, err)
		assert.Nil(t, pv)
		return nil
	}))
}

func testReadYourWrites(t *testing.T, p persistence.IVaultPersistence) {
	key := types.ProjectVaultKey{ProjectID: 3, AssetID: assetB}
	require.NoError(t, p.Update(func(txn persistence.IVaultTxn) error {
		if err := txn.PutProjectVault(&types.ProjectVault{ProjectID: 3, AssetID: assetB, TotalDeposited: 11}); err != nil {
			return err
		}
		pv, err := txn.GetProjectVault(key)
		require.NoError(t, err)
		require.NotNil(t, pv)
		assert.Equal(t, uint64(11), pv.TotalDeposited)

		list, err := txn.ListProjectVaults()
		require.NoError(t, err)
		assert.Len(t, list, 1)
		return nil
	}))
}

func testReturnsCopies(t *testing.T, p persistence.IVaultPersistence) {
	auth := &types.VaultAuthority{Owner: common.HexToAddress("0x01"), Signers: []common.Address{common.HexToAddress("0x02")}}
	require.NoError(t, p.Update(func(txn persistence.IVaultTxn) error {
		return txn.PutAuthority(auth)
	}))
	auth.Signers[0] = common.HexToAddress("0x09")

	require.NoError(t, p.View(func(txn persistence.IVaultReader) error {
		loaded, err := txn.GetAuthority()
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0x02"), loaded.Signers[0])
		loaded.Signers[0] = common.HexToAddress("0x09")
		return nil
	}))

	require.NoError(t, p.View(func(txn persistence.IVaultReader) error {
		loaded, err := txn.GetAuthority()
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0x02"), loaded.Signers[0])
		return nil
	}))
}

// testConcurrentConsumption races check-and-mark transactions on one
// fingerprint; at most one may commit.
func testConcurrentConsumption(t *testing.T, p persistence.IVaultPersistence) {
	fp := crypto.Keccak256Hash([]byte("contended"))
	const workers = 8

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := p.Update(func(txn persistence.IVaultTxn) error {
				rec, err := txn.GetSignatureRecord(fp)
				if err != nil {
					return err
				}
				if rec != nil {
					return fmt.Errorf("already consumed")
				}
				return txn.PutSignatureRecord(&types.UsedSignatureRecord{Fingerprint: fp, Consumed: true, ConsumedAt: int64(i)})
			})
			if err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func testClose(t *testing.T, p persistence.IVaultPersistence) {
	require.NoError(t, p.HealthCheck())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "Close should be idempotent")

	assert.Error(t, p.HealthCheck())
	assert.Error(t, p.Update(func(txn persistence.IVaultTxn) error { return nil }))
	assert.Error(t, p.View(func(txn persistence.IVaultReader) error { return nil }))
}
