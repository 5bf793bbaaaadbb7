package types

import "github.com/ethereum/go-ethereum/common"

// AdminProof is the owner's signature over an AdminAction. It authenticates
// owner-gated calls over transports that cannot otherwise identify the
// caller and is consumed like any other authorization.
type AdminProof struct {
	Action        AdminAction   `json:"action"`
	Authorization Authorization `json:"authorization"`
}

// InitializeRequestV1 is the body of POST /vault/initialize
type InitializeRequestV1 struct {
	Owner common.Address `json:"owner"`
}

// ConfigureSignerRequestV1 is the body of POST /vault/signers
type ConfigureSignerRequestV1 struct {
	Signer common.Address `json:"signer"`
	Add    bool           `json:"add"`
	Proof  AdminProof     `json:"proof"`
}

// TransferOwnershipRequestV1 is the body of POST /vault/ownership
type TransferOwnershipRequestV1 struct {
	NewOwner common.Address `json:"newOwner"`
	Proof    AdminProof     `json:"proof"`
}

// DepositRequestV1 is the body of POST /vault/deposit. The depositor proves
// control of the source account by signing the same deposit message.
type DepositRequestV1 struct {
	Param                  DepositParam  `json:"param"`
	Authorization          Authorization `json:"authorization"`
	DepositorAuthorization Authorization `json:"depositorAuthorization"`
}

// WithdrawRequestV1 is the body of POST /vault/withdraw
type WithdrawRequestV1 struct {
	Param         WithdrawalParam `json:"param"`
	Authorization Authorization   `json:"authorization"`
}

// ClaimRequestV1 is the body of POST /vault/claim
type ClaimRequestV1 struct {
	Param         ClaimParam    `json:"param"`
	Authorization Authorization `json:"authorization"`
}

// OperationResponse is returned by deposit, withdraw and claim
type OperationResponse struct {
	Fingerprint  Fingerprint   `json:"fingerprint"`
	ProjectVault *ProjectVault `json:"projectVault"`
}

// AuthorityResponse describes the vault deployment and its authority
type AuthorityResponse struct {
	Domain         VaultDomain     `json:"domain"`
	CustodyAddress common.Address  `json:"custodyAddress"`
	Authority      *VaultAuthority `json:"authority"`
}

type ProjectVaultsResponse struct {
	ProjectVaults []*ProjectVault `json:"projectVaults"`
}

type SignatureStatusResponse struct {
	Fingerprint Fingerprint          `json:"fingerprint"`
	Used        bool                 `json:"used"`
	Record      *UsedSignatureRecord `json:"record,omitempty"`
}

// ErrorResponse is the body of every non-2xx response. Code is 0 for
// failures that are not VaultErrors.
type ErrorResponse struct {
	Code      uint32 `json:"code"`
	Name      string `json:"name"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
