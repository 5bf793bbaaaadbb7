package vault

import (
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

type ConfigureSignerRequest struct {
	// Caller is the authenticated identity issuing the request
	Caller common.Address    `json:"caller"`
	Signer common.Address    `json:"signer"`
	Add    bool              `json:"add"`
	Proof  *types.AdminProof `json:"proof,omitempty"`
}

type TransferOwnershipRequest struct {
	Caller   common.Address    `json:"caller"`
	NewOwner common.Address    `json:"newOwner"`
	Proof    *types.AdminProof `json:"proof,omitempty"`
}

type DepositRequest struct {
	Param types.DepositParam `json:"param"`

	// Authorization is the co-signature of a registered signer
	Authorization types.Authorization `json:"authorization"`

	// DepositorAuthorization is the source account owner's signature over the
	// same deposit message. Its signer is the account funds are pulled from.
	DepositorAuthorization types.Authorization `json:"depositorAuthorization"`
}

type WithdrawRequest struct {
	Param         types.WithdrawalParam `json:"param"`
	Authorization types.Authorization   `json:"authorization"`
}

type ClaimRequest struct {
	Param         types.ClaimParam    `json:"param"`
	Authorization types.Authorization `json:"authorization"`
}

// OperationResult describes an executed deposit, withdrawal or claim
type OperationResult struct {
	Fingerprint  types.Fingerprint   `json:"fingerprint"`
	ProjectVault *types.ProjectVault `json:"projectVault"`
}
