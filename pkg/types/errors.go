package types

import (
	"github.com/pkg/errors"
)

// VaultError is a caller-visible failure with a stable numeric code.
// Codes start at 6000 and keep the order in which the errors were introduced.
type VaultError struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"error"`
}

func (e *VaultError) Error() string {
	return e.Msg
}

func newVaultError(code uint32, name, msg string) *VaultError {
	return &VaultError{Code: code, Name: name, Msg: msg}
}

var (
	// Authorization errors
	ErrInvalidSignature      = newVaultError(6000, "InvalidSignature", "invalid signature")
	ErrExpiredSignature      = newVaultError(6001, "ExpiredSignature", "expired signature")
	ErrWithdrawTooMuch       = newVaultError(6002, "WithdrawTooMuch", "withdraw too much")
	ErrSigVerificationFailed = newVaultError(6003, "SigVerificationFailed", "signature verification failed")
	ErrSignatureUsed         = newVaultError(6004, "SignatureUsed", "signature already used")

	// Registry state errors
	ErrSignerAddedAlready = newVaultError(6005, "SignerAddedAlready", "signer added already")
	ErrSignerNotExist     = newVaultError(6006, "SignerNotExist", "signer does not exist")
	ErrTooManySigners     = newVaultError(6007, "TooManySigners", "signer set is full")

	// Preconditions
	ErrInvalidAmount      = newVaultError(6008, "InvalidAmount", "amount must be positive")
	ErrAlreadyInitialized = newVaultError(6009, "AlreadyInitialized", "vault already initialized")
	ErrNotInitialized     = newVaultError(6010, "NotInitialized", "vault not initialized")
	ErrInvalidParameter   = newVaultError(6011, "InvalidParameter", "invalid parameter")
)

// AllVaultErrors lists every registered error, ordered by code
var AllVaultErrors = []*VaultError{
	ErrInvalidSignature,
	ErrExpiredSignature,
	ErrWithdrawTooMuch,
	ErrSigVerificationFailed,
	ErrSignatureUsed,
	ErrSignerAddedAlready,
	ErrSignerNotExist,
	ErrTooManySigners,
	ErrInvalidAmount,
	ErrAlreadyInitialized,
	ErrNotInitialized,
	ErrInvalidParameter,
}

// AsVaultError extracts the VaultError at the root of a wrapped chain
func AsVaultError(err error) (*VaultError, bool) {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// VaultErrorByCode looks up a registered error, used by clients decoding responses
func VaultErrorByCode(code uint32) (*VaultError, bool) {
	for _, e := range AllVaultErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}
