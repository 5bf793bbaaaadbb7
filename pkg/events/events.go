package events

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a domain event emitted after a state change commits
type Event interface {
	Name() string
}

// IEventSink receives events. Emit is fire-and-forget: sinks must not block
// the caller for long and report their own failures.
type IEventSink interface {
	Emit(ctx context.Context, event Event)
}

const (
	NameVaultInitialized     = "RewardVaultInitialized"
	NameSignerAdded          = "SignerAdded"
	NameSignerRemoved        = "SignerRemoved"
	NameOwnershipTransferred = "RewardVaultOwnershipTransferred"
	NameTokenDeposited       = "TokenDeposited"
	NameTokenWithdrawn       = "TokenWithdrawn"
	NameTokenClaimed         = "TokenClaimed"
)

type VaultInitialized struct {
	Owner common.Address `json:"owner"`
}

func (VaultInitialized) Name() string { return NameVaultInitialized }

type SignerAdded struct {
	Signer common.Address `json:"signer"`
}

func (SignerAdded) Name() string { return NameSignerAdded }

type SignerRemoved struct {
	Signer common.Address `json:"signer"`
}

func (SignerRemoved) Name() string { return NameSignerRemoved }

type OwnershipTransferred struct {
	PreviousOwner common.Address `json:"previousOwner"`
	NewOwner      common.Address `json:"newOwner"`
}

func (OwnershipTransferred) Name() string { return NameOwnershipTransferred }

type TokenDeposited struct {
	ProjectID uint64         `json:"projectId"`
	DepositID uint64         `json:"depositId"`
	AssetID   common.Address `json:"assetId"`
	Amount    uint64         `json:"amount"`
	Depositor common.Address `json:"depositor"`
}

func (TokenDeposited) Name() string { return NameTokenDeposited }

type TokenWithdrawn struct {
	ProjectID    uint64         `json:"projectId"`
	WithdrawalID uint64         `json:"withdrawalId"`
	Amount       uint64         `json:"amount"`
	AssetID      common.Address `json:"assetId"`
	Recipient    common.Address `json:"recipient"`
}

func (TokenWithdrawn) Name() string { return NameTokenWithdrawn }

type TokenClaimed struct {
	ProjectID uint64         `json:"projectId"`
	ClaimID   uint64         `json:"claimId"`
	Amount    uint64         `json:"amount"`
	AssetID   common.Address `json:"assetId"`
	Recipient common.Address `json:"recipient"`
}

func (TokenClaimed) Name() string { return NameTokenClaimed }
