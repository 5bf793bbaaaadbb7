package types

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultMaxSigners is the signer set capacity used when none is configured
const DefaultMaxSigners = 10

// custodySeed is mixed into the custody address derivation
const custodySeed = "reward_vault"

// Fingerprint identifies a consumed authorization
type Fingerprint = common.Hash

// VaultDomain binds signed messages to a single vault deployment
type VaultDomain struct {
	ChainID      uint64         `json:"chainId"`
	VaultAddress common.Address `json:"vaultAddress"`
}

// CustodyAddress derives the account that holds custodied funds for this deployment.
// Nobody holds a key for it; only the vault authorizes transfers out of it.
func (d VaultDomain) CustodyAddress() common.Address {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, d.ChainID)
	hash := crypto.Keccak256([]byte(custodySeed), buf, d.VaultAddress.Bytes())
	return common.BytesToAddress(hash[12:])
}

// VaultAuthority is the singleton record of who controls the vault
type VaultAuthority struct {
	// Owner may mutate the signer set and transfer ownership
	Owner common.Address `json:"owner"`

	// Signers authorize deposits, withdrawals and claims, in insertion order
	Signers []common.Address `json:"signers"`

	// MaxSigners bounds len(Signers)
	MaxSigners int `json:"maxSigners"`

	// InitializedAt is the unix time of the Initialize call
	InitializedAt int64 `json:"initializedAt"`
}

// Clone returns a deep copy so callers can mutate without touching stored state
func (va *VaultAuthority) Clone() *VaultAuthority {
	if va == nil {
		return nil
	}
	out := *va
	out.Signers = make([]common.Address, len(va.Signers))
	copy(out.Signers, va.Signers)
	return &out
}

// ProjectVaultKey addresses one (project, asset) custody record
type ProjectVaultKey struct {
	ProjectID uint64
	AssetID   common.Address
}

func (k ProjectVaultKey) String() string {
	return fmt.Sprintf("%d:%s", k.ProjectID, strings.ToLower(k.AssetID.Hex()))
}

// ParseProjectVaultKey is the inverse of ProjectVaultKey.String
func ParseProjectVaultKey(s string) (ProjectVaultKey, error) {
	id, asset, ok := strings.Cut(s, ":")
	if !ok {
		return ProjectVaultKey{}, fmt.Errorf("invalid project vault key %q", s)
	}
	projectID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return ProjectVaultKey{}, fmt.Errorf("invalid project id in key %q: %w", s, err)
	}
	if !common.IsHexAddress(asset) {
		return ProjectVaultKey{}, fmt.Errorf("invalid asset in key %q", s)
	}
	return ProjectVaultKey{ProjectID: projectID, AssetID: common.HexToAddress(asset)}, nil
}

// ProjectVault tracks what has been custodied for one project and asset
type ProjectVault struct {
	ProjectID uint64         `json:"projectId"`
	AssetID   common.Address `json:"assetId"`

	// TotalDeposited only ever grows; it is the sum of accepted deposits
	TotalDeposited uint64 `json:"totalDeposited"`

	// TotalReleased is the sum of executed withdrawals and claims
	TotalReleased uint64 `json:"totalReleased"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Key returns the storage key of the record
func (pv *ProjectVault) Key() ProjectVaultKey {
	return ProjectVaultKey{ProjectID: pv.ProjectID, AssetID: pv.AssetID}
}

// Available is the amount that may still be released for this project
func (pv *ProjectVault) Available() uint64 {
	if pv == nil || pv.TotalReleased >= pv.TotalDeposited {
		return 0
	}
	return pv.TotalDeposited - pv.TotalReleased
}

// Clone returns a copy of the record
func (pv *ProjectVault) Clone() *ProjectVault {
	if pv == nil {
		return nil
	}
	out := *pv
	return &out
}

// OperationType names the kind of operation that consumed an authorization
type OperationType string

const (
	OperationDeposit  OperationType = "deposit"
	OperationWithdraw OperationType = "withdraw"
	OperationClaim    OperationType = "claim"
	OperationAdmin    OperationType = "admin"
)

// UsedSignatureRecord marks an authorization as executed
type UsedSignatureRecord struct {
	Fingerprint Fingerprint    `json:"fingerprint"`
	Consumed    bool           `json:"consumed"`
	Operation   OperationType  `json:"operation"`
	Signer      common.Address `json:"signer"`
	ConsumedAt  int64          `json:"consumedAt"`
}

// Authorization is an off-chain signature by a registered signer over an operation message
type Authorization struct {
	Signer     common.Address `json:"signer"`
	Signature  hexutil.Bytes  `json:"signature"` // 64 bytes, r || s
	RecoveryID uint8          `json:"recoveryId"`
}

// DepositParam is the signed payload of a deposit
type DepositParam struct {
	ProjectID      uint64         `json:"projectId"`
	DepositID      uint64         `json:"depositId"`
	AssetID        common.Address `json:"assetId"`
	Amount         uint64         `json:"amount"`
	ExpirationTime int64          `json:"expirationTime"`
}

// WithdrawalParam is the signed payload of a withdrawal
type WithdrawalParam struct {
	ProjectID      uint64         `json:"projectId"`
	WithdrawalID   uint64         `json:"withdrawalId"`
	AssetID        common.Address `json:"assetId"`
	Amount         uint64         `json:"amount"`
	Recipient      common.Address `json:"recipient"`
	ExpirationTime int64          `json:"expirationTime"`
}

// ClaimParam is the signed payload of a claim
type ClaimParam struct {
	ProjectID      uint64         `json:"projectId"`
	ClaimID        uint64         `json:"claimId"`
	AssetID        common.Address `json:"assetId"`
	Amount         uint64         `json:"amount"`
	Recipient      common.Address `json:"recipient"`
	ExpirationTime int64          `json:"expirationTime"`
}

// AdminActionType enumerates owner-gated actions
type AdminActionType uint8

const (
	AdminActionAddSigner         AdminActionType = 1
	AdminActionRemoveSigner      AdminActionType = 2
	AdminActionTransferOwnership AdminActionType = 3
)

func (a AdminActionType) String() string {
	switch a {
	case AdminActionAddSigner:
		return "add_signer"
	case AdminActionRemoveSigner:
		return "remove_signer"
	case AdminActionTransferOwnership:
		return "transfer_ownership"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// AdminAction is what the owner signs to prove it issued an owner-gated call
type AdminAction struct {
	Action         AdminActionType `json:"action"`
	Target         common.Address  `json:"target"`
	Nonce          uint64          `json:"nonce"`
	ExpirationTime int64           `json:"expirationTime"`
}
