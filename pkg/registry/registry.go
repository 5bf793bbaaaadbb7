// Package registry implements the signer set and ownership rules of a vault.
//
// Functions operate on a *types.VaultAuthority loaded from persistence and
// mutate it in place; the caller is responsible for persisting the result
// and for holding the authority lock while doing so.
package registry

import (
	"github.com/Layr-Labs/reward-vault-go/pkg/events"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// NewAuthority creates the initial authority record for owner
func NewAuthority(owner common.Address, maxSigners int, now int64) (*types.VaultAuthority, error) {
	if owner == (common.Address{}) {
		return nil, errors.Wrap(types.ErrInvalidParameter, "owner must not be the zero address")
	}
	if maxSigners <= 0 {
		maxSigners = types.DefaultMaxSigners
	}
	return &types.VaultAuthority{
		Owner:         owner,
		Signers:       make([]common.Address, 0, maxSigners),
		MaxSigners:    maxSigners,
		InitializedAt: now,
	}, nil
}

func indexOf(signers []common.Address, s common.Address) int {
	for i, existing := range signers {
		if existing == s {
			return i
		}
	}
	return -1
}

// IsAuthorizedSigner reports membership of s in the signer set
func IsAuthorizedSigner(auth *types.VaultAuthority, s common.Address) bool {
	if auth == nil {
		return false
	}
	return indexOf(auth.Signers, s) >= 0
}

// IsOwner reports whether caller owns the vault
func IsOwner(auth *types.VaultAuthority, caller common.Address) bool {
	return auth != nil && caller != (common.Address{}) && auth.Owner == caller
}

func capacity(auth *types.VaultAuthority) int {
	if auth.MaxSigners <= 0 {
		return types.DefaultMaxSigners
	}
	return auth.MaxSigners
}

// AddSigner appends s to the signer set
func AddSigner(auth *types.VaultAuthority, s common.Address) (events.Event, error) {
	if auth == nil {
		return nil, types.ErrNotInitialized
	}
	if s == (common.Address{}) {
		return nil, errors.Wrap(types.ErrInvalidParameter, "signer must not be the zero address")
	}
	if indexOf(auth.Signers, s) >= 0 {
		return nil, errors.Wrapf(types.ErrSignerAddedAlready, "signer %s", s.Hex())
	}
	if len(auth.Signers) >= capacity(auth) {
		return nil, errors.Wrapf(types.ErrTooManySigners, "capacity %d reached", capacity(auth))
	}
	auth.Signers = append(auth.Signers, s)
	return events.SignerAdded{Signer: s}, nil
}

// RemoveSigner deletes s from the signer set, keeping the order of the rest
func RemoveSigner(auth *types.VaultAuthority, s common.Address) (events.Event, error) {
	if auth == nil {
		return nil, types.ErrNotInitialized
	}
	i := indexOf(auth.Signers, s)
	if i < 0 {
		return nil, errors.Wrapf(types.ErrSignerNotExist, "signer %s", s.Hex())
	}
	auth.Signers = append(auth.Signers[:i], auth.Signers[i+1:]...)
	return events.SignerRemoved{Signer: s}, nil
}

// ConfigureSigner adds s when add is set, removes it otherwise
func ConfigureSigner(auth *types.VaultAuthority, s common.Address, add bool) (events.Event, error) {
	if add {
		return AddSigner(auth, s)
	}
	return RemoveSigner(auth, s)
}

// TransferOwnership replaces the owner
func TransferOwnership(auth *types.VaultAuthority, newOwner common.Address) (events.Event, error) {
	if auth == nil {
		return nil, types.ErrNotInitialized
	}
	if newOwner == (common.Address{}) {
		return nil, errors.Wrap(types.ErrInvalidParameter, "new owner must not be the zero address")
	}
	prev := auth.Owner
	auth.Owner = newOwner
	return events.OwnershipTransferred{PreviousOwner: prev, NewOwner: newOwner}, nil
}
