package types

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultError_WrappedChains(t *testing.T) {
	wrapped := errors.Wrapf(ErrSignatureUsed, "fingerprint %s", "0xabc")
	assert.True(t, errors.Is(wrapped, ErrSignatureUsed))
	assert.False(t, errors.Is(wrapped, ErrInvalidSignature))

	stdWrapped := fmt.Errorf("outer: %w", wrapped)
	ve, ok := AsVaultError(stdWrapped)
	require.True(t, ok)
	assert.Equal(t, uint32(6004), ve.Code)
	assert.Contains(t, stdWrapped.Error(), "signature already used")
}

func TestVaultError_CodesUnique(t *testing.T) {
	seen := map[uint32]bool{}
	for i, e := range AllVaultErrors {
		assert.False(t, seen[e.Code], e.Name)
		seen[e.Code] = true
		assert.Equal(t, uint32(6000+i), e.Code)

		found, ok := VaultErrorByCode(e.Code)
		require.True(t, ok)
		assert.Same(t, e, found)
	}

	_, ok := VaultErrorByCode(1)
	assert.False(t, ok)
}

func TestAsVaultError_Plain(t *testing.T) {
	_, ok := AsVaultError(errors.New("boom"))
	assert.False(t, ok)
}
