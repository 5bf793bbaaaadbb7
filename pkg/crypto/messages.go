package crypto

import (
	"bytes"
	"encoding/binary"

	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Message tags keep the encodings of different operations disjoint
const (
	TagDeposit    byte = 0x01
	TagWithdrawal byte = 0x02
	TagClaim      byte = 0x03
	TagAdmin      byte = 0x10
)

const fingerprintDomain = "reward-vault/fingerprint"

// messageWriter packs fixed-width little-endian fields
type messageWriter struct {
	buf bytes.Buffer
}

func newMessage(tag byte, domain types.VaultDomain) *messageWriter {
	w := &messageWriter{}
	w.buf.WriteByte(tag)
	w.u64(domain.ChainID)
	w.address(domain.VaultAddress)
	return w
}

func (w *messageWriter) u8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *messageWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *messageWriter) i64(v int64) {
	w.u64(uint64(v))
}

func (w *messageWriter) address(a common.Address) {
	w.buf.Write(a.Bytes())
}

func (w *messageWriter) bytes() []byte {
	return w.buf.Bytes()
}

// DepositMessage encodes the bytes a signer signs to authorize a deposit
func DepositMessage(domain types.VaultDomain, p *types.DepositParam) []byte {
	w := newMessage(TagDeposit, domain)
	w.u64(p.ProjectID)
	w.u64(p.DepositID)
	w.address(p.AssetID)
	w.u64(p.Amount)
	w.i64(p.ExpirationTime)
	return w.bytes()
}

// WithdrawalMessage encodes the bytes a signer signs to authorize a withdrawal
func WithdrawalMessage(domain types.VaultDomain, p *types.WithdrawalParam) []byte {
	w := newMessage(TagWithdrawal, domain)
	w.u64(p.ProjectID)
	w.u64(p.WithdrawalID)
	w.address(p.AssetID)
	w.u64(p.Amount)
	w.address(p.Recipient)
	w.i64(p.ExpirationTime)
	return w.bytes()
}

// ClaimMessage encodes the bytes a signer signs to authorize a claim
func ClaimMessage(domain types.VaultDomain, p *types.ClaimParam) []byte {
	w := newMessage(TagClaim, domain)
	w.u64(p.ProjectID)
	w.u64(p.ClaimID)
	w.address(p.AssetID)
	w.u64(p.Amount)
	w.address(p.Recipient)
	w.i64(p.ExpirationTime)
	return w.bytes()
}

// AdminActionMessage encodes the bytes the owner signs for an owner-gated call
func AdminActionMessage(domain types.VaultDomain, a *types.AdminAction) []byte {
	w := newMessage(TagAdmin, domain)
	w.u8(uint8(a.Action))
	w.address(a.Target)
	w.u64(a.Nonce)
	w.i64(a.ExpirationTime)
	return w.bytes()
}

// Fingerprint derives the replay-guard key of a signed message.
// It depends only on the message, so re-signed or re-encoded signatures over
// the same parameters map to the same record.
func Fingerprint(message []byte) types.Fingerprint {
	return ethcrypto.Keccak256Hash([]byte(fingerprintDomain), ethcrypto.Keccak256(message))
}
