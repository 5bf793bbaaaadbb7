package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultDomain_CustodyAddress(t *testing.T) {
	d1 := VaultDomain{ChainID: 1, VaultAddress: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	d2 := VaultDomain{ChainID: 2, VaultAddress: d1.VaultAddress}

	require.Equal(t, d1.CustodyAddress(), d1.CustodyAddress())
	assert.NotEqual(t, d1.CustodyAddress(), d2.CustodyAddress())
	assert.NotEqual(t, common.Address{}, d1.CustodyAddress())
}

func TestProjectVaultKey_RoundTrip(t *testing.T) {
	key := ProjectVaultKey{ProjectID: 42, AssetID: common.HexToAddress("0xABCDEF1234567890ABCDEF1234567890ABCDEF12")}

	parsed, err := ParseProjectVaultKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	for _, bad := range []string{
		"",
		"42",
		"x:0xabcdef1234567890abcdef1234567890abcdef12",
		"12abc:0xabcdef1234567890abcdef1234567890abcdef12",
		"-1:0xabcdef1234567890abcdef1234567890abcdef12",
		"18446744073709551616:0xabcdef1234567890abcdef1234567890abcdef12",
		"42:nothex",
	} {
		_, err := ParseProjectVaultKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestProjectVault_Available(t *testing.T) {
	var nilVault *ProjectVault
	assert.Equal(t, uint64(0), nilVault.Available())

	pv := &ProjectVault{TotalDeposited: 100, TotalReleased: 30}
	assert.Equal(t, uint64(70), pv.Available())

	pv.TotalReleased = 100
	assert.Equal(t, uint64(0), pv.Available())
}

func TestVaultAuthority_Clone(t *testing.T) {
	va := &VaultAuthority{
		Owner:   common.HexToAddress("0x01"),
		Signers: []common.Address{common.HexToAddress("0x02")},
	}
	c := va.Clone()
	c.Signers[0] = common.HexToAddress("0x03")
	assert.Equal(t, common.HexToAddress("0x02"), va.Signers[0])
}
