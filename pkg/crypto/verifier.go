package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

/*
Signature verification for vault authorizations.

A signer produces a secp256k1 signature over keccak256(message), where message is one
of the canonical encodings in messages.go. The signature travels as 64 bytes (r || s)
plus a recovery id. The verifier recovers the public key, derives the Ethereum-style
address and compares it byte-for-byte with the claimed signer.

Recovery ids are accepted both raw (0/1) and with the legacy 27 offset (27/28).
Signatures with s in the upper half of the curve order are rejected so that every
authorization has exactly one valid encoding.
*/

const (
	// SignatureLength is the size of an r || s signature
	SignatureLength = 64

	legacyRecoveryOffset = 27
)

// NormalizeRecoveryID maps 27/28 to 0/1 and rejects anything else
func NormalizeRecoveryID(recoveryID uint8) (uint8, error) {
	if recoveryID >= legacyRecoveryOffset {
		recoveryID -= legacyRecoveryOffset
	}
	if recoveryID > 1 {
		return 0, fmt.Errorf("invalid recovery id %d", recoveryID)
	}
	return recoveryID, nil
}

// RecoverSigner recovers the address that produced sig over message.
// Every failure wraps types.ErrSigVerificationFailed.
func RecoverSigner(message []byte, sig []byte, recoveryID uint8) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, errors.Wrapf(types.ErrSigVerificationFailed,
			"invalid signature length: expected %d bytes, got %d", SignatureLength, len(sig))
	}

	v, err := NormalizeRecoveryID(recoveryID)
	if err != nil {
		return common.Address{}, errors.Wrap(types.ErrSigVerificationFailed, err.Error())
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if !ethcrypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, errors.Wrap(types.ErrSigVerificationFailed, "signature values out of range")
	}

	// Avoid modifying the caller's signature
	full := make([]byte, ethcrypto.SignatureLength)
	copy(full, sig)
	full[SignatureLength] = v

	digest := ethcrypto.Keccak256(message)
	pub, err := ethcrypto.SigToPub(digest, full)
	if err != nil || pub == nil {
		return common.Address{}, errors.Wrapf(types.ErrSigVerificationFailed, "failed to recover public key: %v", err)
	}

	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyErr checks that sig over message was produced by claimed
func VerifyErr(message []byte, claimed common.Address, sig []byte, recoveryID uint8) error {
	recovered, err := RecoverSigner(message, sig, recoveryID)
	if err != nil {
		return err
	}
	if recovered != claimed {
		return errors.Wrapf(types.ErrSigVerificationFailed,
			"recovered signer %s does not match claimed signer %s", recovered.Hex(), claimed.Hex())
	}
	return nil
}

// Verify reports whether sig over message was produced by claimed. It never panics.
func Verify(message []byte, claimed common.Address, sig []byte, recoveryID uint8) bool {
	return VerifyErr(message, claimed, sig, recoveryID) == nil
}

// VerifyAuthorization checks an Authorization against message
func VerifyAuthorization(message []byte, auth *types.Authorization) error {
	if auth == nil {
		return errors.Wrap(types.ErrSigVerificationFailed, "authorization is nil")
	}
	return VerifyErr(message, auth.Signer, auth.Signature, auth.RecoveryID)
}

// Sign produces the 64 byte signature and recovery id for message.
// Used by clients and tests; the vault itself never signs.
func Sign(message []byte, privateKey *ecdsa.PrivateKey) ([]byte, uint8, error) {
	if privateKey == nil {
		return nil, 0, fmt.Errorf("private key is nil")
	}
	sig, err := ethcrypto.Sign(ethcrypto.Keccak256(message), privateKey)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to sign message: %w", err)
	}
	return sig[:SignatureLength], sig[SignatureLength], nil
}

// SignAuthorization signs message and packages the result with the signer address
func SignAuthorization(message []byte, privateKey *ecdsa.PrivateKey) (*types.Authorization, error) {
	sig, v, err := Sign(message, privateKey)
	if err != nil {
		return nil, err
	}
	return &types.Authorization{
		Signer:     ethcrypto.PubkeyToAddress(privateKey.PublicKey),
		Signature:  sig,
		RecoveryID: v,
	}, nil
}
