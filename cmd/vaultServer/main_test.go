package main

import (
	"testing"

	"github.com/Layr-Labs/reward-vault-go/pkg/config"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testDomain = types.VaultDomain{ChainID: 31337, VaultAddress: common.HexToAddress("0x0000000000000000000000000000000000007a17")}

func TestBuildLedger_SeedsDevMints(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000de905")
	asset := common.HexToAddress("0x000000000000000000000000000000000000a55e")

	cfg := &config.VaultServerConfig{
		DevMints:    []string{account.Hex() + ":" + asset.Hex() + ":250"},
		Persistence: config.PersistenceConfig{Type: config.PersistenceTypeMemory},
	}
	l, err := buildLedger(cfg, testDomain, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, uint64(250), l.Balance(account, asset))
}

func TestBuildLedger_RejectsInvalidDevMint(t *testing.T) {
	for _, m := range []string{
		"nope",
		"0xabc:0xdef:1",
		"0x00000000000000000000000000000000000de905:0x000000000000000000000000000000000000a55e:lots",
	} {
		cfg := &config.VaultServerConfig{DevMints: []string{m}}
		_, err := buildLedger(cfg, testDomain, zap.NewNop())
		assert.ErrorContains(t, err, "invalid dev mint", m)
	}
}

func TestBuildLedger_WarnsWhenRecordsOutliveBalances(t *testing.T) {
	tests := []struct {
		name string
		typ  config.PersistenceType
		warn bool
	}{
		{"memory", config.PersistenceTypeMemory, false},
		{"default", "", false},
		{"badger", config.PersistenceTypeBadger, true},
		{"redis", config.PersistenceTypeRedis, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			cfg := &config.VaultServerConfig{Persistence: config.PersistenceConfig{Type: tt.typ}}

			assert.Equal(t, tt.warn, ledgerLostOnRestart(cfg))
			_, err := buildLedger(cfg, testDomain, zap.New(core))
			require.NoError(t, err)

			if tt.warn {
				require.Equal(t, 1, logs.Len())
				assert.Contains(t, logs.All()[0].Message, "lost on restart")
			} else {
				assert.Equal(t, 0, logs.Len())
			}
		})
	}
}
