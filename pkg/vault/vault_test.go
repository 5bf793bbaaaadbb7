package vault

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Layr-Labs/reward-vault-go/pkg/clock"
	"github.com/Layr-Labs/reward-vault-go/pkg/crypto"
	"github.com/Layr-Labs/reward-vault-go/pkg/events"
	"github.com/Layr-Labs/reward-vault-go/pkg/ledger"
	"github.com/Layr-Labs/reward-vault-go/pkg/ledger/memoryLedger"
	"github.com/Layr-Labs/reward-vault-go/pkg/persistence/memory"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const t0 = int64(1_700_000_000)

var (
	assetA    = common.HexToAddress("0x000000000000000000000000000000000000a55e")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000be11e")
	testDom   = types.VaultDomain{ChainID: 31337, VaultAddress: common.HexToAddress("0x0000000000000000000000000000000000007a17")}
)

type testEnv struct {
	vault  *Vault
	ledger *memoryLedger.MemoryLedger
	clock  *clock.FixedClock
	sink   *events.MemorySink
	owner  *ecdsa.PrivateKey
	signer *ecdsa.PrivateKey

	depositorKey *ecdsa.PrivateKey
	depositor    common.Address
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return k
}

func addr(k *ecdsa.PrivateKey) common.Address {
	return ethcrypto.PubkeyToAddress(k.PublicKey)
}

// newTestEnv builds an initialized vault with one registered signer and a
// depositor holding 1000 units of assetA
func newTestEnv(t *testing.T, maxSigners int) *testEnv {
	t.Helper()

	l := memoryLedger.NewMemoryLedger()
	c := clock.NewFixedClockUnix(t0)
	sink := events.NewMemorySink()

	v, err := NewVault(&Config{Domain: testDom, MaxSigners: maxSigners}, memory.NewMemoryPersistence(), l, c, sink, zap.NewNop())
	require.NoError(t, err)
	l.Delegate(v.CustodyAddress(), testDom.VaultAddress)
	env := &testEnv{vault: v, ledger: l, clock: c, sink: sink, owner: newKey(t), signer: newKey(t), depositorKey: newKey(t)}
	env.depositor = addr(env.depositorKey)
	require.NoError(t, l.Mint(env.depositor, assetA, 1000))

	_, err = v.Initialize(context.Background(), addr(env.owner))
	require.NoError(t, err)
	_, err = v.ConfigureSigner(context.Background(), &ConfigureSignerRequest{Caller: addr(env.owner), Signer: addr(env.signer), Add: true})
	require.NoError(t, err)
	sink.Reset()
	return env
}

func (e *testEnv) depositReq(t *testing.T, signer *ecdsa.PrivateKey, p types.DepositParam) *DepositRequest {
	t.Helper()
	return depositReqFrom(t, signer, e.depositorKey, p)
}

// depositReqFrom builds a deposit co-signed by signer and consented to by depositorKey
func depositReqFrom(t *testing.T, signer, depositorKey *ecdsa.PrivateKey, p types.DepositParam) *DepositRequest {
	t.Helper()
	msg := crypto.DepositMessage(testDom, &p)
	auth, err := crypto.SignAuthorization(msg, signer)
	require.NoError(t, err)
	depAuth, err := crypto.SignAuthorization(msg, depositorKey)
	require.NoError(t, err)
	return &DepositRequest{Param: p, Authorization: *auth, DepositorAuthorization: *depAuth}
}

func (e *testEnv) withdrawReq(t *testing.T, signer *ecdsa.PrivateKey, p types.WithdrawalParam) *WithdrawRequest {
	t.Helper()
	auth, err := crypto.SignAuthorization(crypto.WithdrawalMessage(testDom, &p), signer)
	require.NoError(t, err)
	return &WithdrawRequest{Param: p, Authorization: *auth}
}

func (e *testEnv) deposit(t *testing.T, projectID, depositID, amount uint64) {
	t.Helper()
	_, err := e.vault.Deposit(context.Background(), e.depositReq(t, e.signer, types.DepositParam{
		ProjectID: projectID, DepositID: depositID, AssetID: assetA, Amount: amount, ExpirationTime: t0 + 10,
	}))
	require.NoError(t, err)
}

func withdrawal(id, amount uint64) types.WithdrawalParam {
	return types.WithdrawalParam{
		ProjectID: 1, WithdrawalID: id, AssetID: assetA, Amount: amount, Recipient: recipient, ExpirationTime: t0 + 10,
	}
}

func TestNewVault_Validation(t *testing.T) {
	l := memoryLedger.NewMemoryLedger()
	c := clock.NewSystemClock()
	store := memory.NewMemoryPersistence()

	_, err := NewVault(nil, store, l, c, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewVault(&Config{Domain: testDom}, nil, l, c, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewVault(&Config{Domain: types.VaultDomain{ChainID: 1}}, store, l, c, nil, zap.NewNop())
	assert.Error(t, err)

	v, err := NewVault(&Config{Domain: testDom}, store, l, c, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, testDom.CustodyAddress(), v.CustodyAddress())
	assert.Equal(t, testDom, v.Domain())
}

func TestVault_Initialize(t *testing.T) {
	v, err := NewVault(&Config{Domain: testDom}, memory.NewMemoryPersistence(), memoryLedger.NewMemoryLedger(), clock.NewFixedClockUnix(t0), events.NewMemorySink(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = v.GetAuthority(ctx)
	assert.ErrorIs(t, err, types.ErrNotInitialized)

	owner := common.HexToAddress("0x0000000000000000000000000000000000000001")
	auth, err := v.Initialize(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, owner, auth.Owner)
	assert.Empty(t, auth.Signers)
	assert.Equal(t, types.DefaultMaxSigners, auth.MaxSigners)
	assert.Equal(t, t0, auth.InitializedAt)

	_, err = v.Initialize(ctx, owner)
	assert.ErrorIs(t, err, types.ErrAlreadyInitialized)

	_, err = v.Initialize(ctx, common.Address{})
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

// Initialize with owner O, add S1, re-adding S1 fails
func TestScenario_SignerRegistry(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	auth, err := env.vault.GetAuthority(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{addr(env.signer)}, auth.Signers)

	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Caller: addr(env.owner), Signer: addr(env.signer), Add: true})
	assert.ErrorIs(t, err, types.ErrSignerAddedAlready)

	auth, err = env.vault.GetAuthority(ctx)
	require.NoError(t, err)
	assert.Len(t, auth.Signers, 1)
	assert.Empty(t, env.sink.Events())
}

func TestVault_ConfigureSigner_NotOwner(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	_, err := env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Caller: addr(env.signer), Signer: recipient, Add: true})
	assert.ErrorIs(t, err, types.ErrInvalidSignature)

	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Signer: recipient, Add: true})
	assert.ErrorIs(t, err, types.ErrInvalidSignature)
}

func TestVault_ConfigureSigner_RemoveAndCapacity(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	owner := addr(env.owner)
	env.deposit(t, 1, 1, 100)
	env.sink.Reset()

	second := newKey(t)
	_, err := env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Caller: owner, Signer: addr(second), Add: true})
	require.NoError(t, err)

	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Caller: owner, Signer: recipient, Add: true})
	assert.ErrorIs(t, err, types.ErrTooManySigners)

	auth, err := env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Caller: owner, Signer: addr(env.signer), Add: false})
	require.NoError(t, err)
	assert.Equal(t, []common.Address{addr(second)}, auth.Signers)

	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Caller: owner, Signer: addr(env.signer), Add: false})
	assert.ErrorIs(t, err, types.ErrSignerNotExist)

	evs := env.sink.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, events.SignerAdded{Signer: addr(second)}, evs[0])
	assert.Equal(t, events.SignerRemoved{Signer: addr(env.signer)}, evs[1])

	// A removed signer can no longer authorize withdrawals
	_, err = env.vault.Withdraw(ctx, env.withdrawReq(t, env.signer, withdrawal(1, 10)))
	assert.ErrorIs(t, err, types.ErrInvalidSignature)
}

func TestVault_AdminProof(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	newSigner := common.HexToAddress("0x0000000000000000000000000000000000005151")

	action := types.AdminAction{Action: types.AdminActionAddSigner, Target: newSigner, Nonce: 1, ExpirationTime: t0 + 10}
	auth, err := crypto.SignAuthorization(crypto.AdminActionMessage(testDom, &action), env.owner)
	require.NoError(t, err)
	proof := &types.AdminProof{Action: action, Authorization: *auth}

	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Signer: newSigner, Add: true, Proof: proof})
	require.NoError(t, err)

	// Replaying the proof after removing the signer again must fail
	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Caller: addr(env.owner), Signer: newSigner, Add: false})
	require.NoError(t, err)
	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Signer: newSigner, Add: true, Proof: proof})
	assert.ErrorIs(t, err, types.ErrSignatureUsed)

	// Proof for a different action
	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Signer: newSigner, Add: false, Proof: proof})
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	// Proof signed by a non-owner
	action.Nonce = 2
	bad, err := crypto.SignAuthorization(crypto.AdminActionMessage(testDom, &action), env.signer)
	require.NoError(t, err)
	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Signer: newSigner, Add: true, Proof: &types.AdminProof{Action: action, Authorization: *bad}})
	assert.ErrorIs(t, err, types.ErrInvalidSignature)

	// Expired proof
	action.Nonce = 3
	action.ExpirationTime = t0
	expired, err := crypto.SignAuthorization(crypto.AdminActionMessage(testDom, &action), env.owner)
	require.NoError(t, err)
	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Signer: newSigner, Add: true, Proof: &types.AdminProof{Action: action, Authorization: *expired}})
	assert.ErrorIs(t, err, types.ErrExpiredSignature)
}

func TestVault_TransferOwnership(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	newOwner := newKey(t)

	_, err := env.vault.TransferOwnership(ctx, &TransferOwnershipRequest{Caller: addr(env.signer), NewOwner: addr(newOwner)})
	assert.ErrorIs(t, err, types.ErrInvalidSignature)

	auth, err := env.vault.TransferOwnership(ctx, &TransferOwnershipRequest{Caller: addr(env.owner), NewOwner: addr(newOwner)})
	require.NoError(t, err)
	assert.Equal(t, addr(newOwner), auth.Owner)
	assert.Equal(t, events.OwnershipTransferred{PreviousOwner: addr(env.owner), NewOwner: addr(newOwner)}, env.sink.Last())

	// The previous owner lost its rights
	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Caller: addr(env.owner), Signer: recipient, Add: true})
	assert.ErrorIs(t, err, types.ErrInvalidSignature)
	_, err = env.vault.ConfigureSigner(ctx, &ConfigureSignerRequest{Caller: addr(newOwner), Signer: recipient, Add: true})
	assert.NoError(t, err)
}

// Deposit 100 of A to P1 at t0 expiring t0+10
func TestScenario_Deposit(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.vault.Deposit(ctx, env.depositReq(t, env.signer, types.DepositParam{
		ProjectID: 1, DepositID: 1, AssetID: assetA, Amount: 100, ExpirationTime: t0 + 10,
	}))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.ProjectVault.TotalDeposited)

	pv, err := env.vault.GetProjectVault(ctx, types.ProjectVaultKey{ProjectID: 1, AssetID: assetA})
	require.NoError(t, err)
	require.NotNil(t, pv)
	assert.Equal(t, uint64(100), pv.TotalDeposited)
	assert.Equal(t, t0, pv.CreatedAt)

	assert.Equal(t, uint64(900), env.ledger.Balance(env.depositor, assetA))
	assert.Equal(t, uint64(100), env.ledger.Balance(env.vault.CustodyAddress(), assetA))
	assert.Equal(t, events.TokenDeposited{ProjectID: 1, DepositID: 1, AssetID: assetA, Amount: 100, Depositor: env.depositor}, env.sink.Last())

	used, err := env.vault.IsSignatureUsed(ctx, res.Fingerprint)
	require.NoError(t, err)
	assert.True(t, used)
}

func TestVault_Deposit_Accumulates(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	amounts := []uint64{10, 20, 30}
	for i, amt := range amounts {
		env.deposit(t, 1, uint64(i+1), amt)
	}

	// Rejected deposit contributes nothing
	_, err := env.vault.Deposit(ctx, env.depositReq(t, env.signer, types.DepositParam{
		ProjectID: 1, DepositID: 4, AssetID: assetA, Amount: 5000, ExpirationTime: t0 + 10,
	}))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	pv, err := env.vault.GetProjectVault(ctx, types.ProjectVaultKey{ProjectID: 1, AssetID: assetA})
	require.NoError(t, err)
	assert.Equal(t, uint64(60), pv.TotalDeposited)

	assert.Len(t, env.ledger.Transfers(), 3)
}

func TestVault_Deposit_Rejections(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	outsider := newKey(t)

	base := types.DepositParam{ProjectID: 1, DepositID: 1, AssetID: assetA, Amount: 10, ExpirationTime: t0 + 10}

	zero := base
	zero.Amount = 0
	_, err := env.vault.Deposit(ctx, env.depositReq(t, env.signer, zero))
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = env.vault.Deposit(ctx, env.depositReq(t, outsider, base))
	assert.ErrorIs(t, err, types.ErrInvalidSignature)

	tampered := env.depositReq(t, env.signer, base)
	tampered.Param.Amount = 11
	_, err = env.vault.Deposit(ctx, tampered)
	assert.ErrorIs(t, err, types.ErrSigVerificationFailed)

	_, err = env.vault.Deposit(ctx, depositReqFrom(t, env.signer, newKey(t), base))
	assert.ErrorIs(t, err, ledger.ErrInvalidAccount)

	req := env.depositReq(t, env.signer, base)
	_, err = env.vault.Deposit(ctx, req)
	require.NoError(t, err)
	_, err = env.vault.Deposit(ctx, req)
	assert.ErrorIs(t, err, types.ErrSignatureUsed)

	pv, err := env.vault.GetProjectVault(ctx, types.ProjectVaultKey{ProjectID: 1, AssetID: assetA})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), pv.TotalDeposited)
}

func TestVault_Deposit_RequiresDepositorConsent(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	victim := newKey(t)
	require.NoError(t, env.ledger.Mint(addr(victim), assetA, 500))

	p := types.DepositParam{ProjectID: 1, DepositID: 1, AssetID: assetA, Amount: 500, ExpirationTime: t0 + 10}

	// A registered signer naming someone else's account as the source
	forged := depositReqFrom(t, env.signer, env.signer, p)
	forged.DepositorAuthorization.Signer = addr(victim)
	_, err := env.vault.Deposit(ctx, forged)
	assert.ErrorIs(t, err, types.ErrSigVerificationFailed)

	corrupt := depositReqFrom(t, env.signer, victim, p)
	corrupt.DepositorAuthorization.Signature = corrupt.DepositorAuthorization.Signature[:10]
	_, err = env.vault.Deposit(ctx, corrupt)
	assert.ErrorIs(t, err, types.ErrSigVerificationFailed)

	// Consent to a different deposit does not carry over
	other := p
	other.DepositID = 2
	mismatched := depositReqFrom(t, env.signer, victim, p)
	mismatched.DepositorAuthorization = depositReqFrom(t, env.signer, victim, other).DepositorAuthorization
	_, err = env.vault.Deposit(ctx, mismatched)
	assert.ErrorIs(t, err, types.ErrSigVerificationFailed)

	missing := env.depositReq(t, env.signer, p)
	missing.DepositorAuthorization = types.Authorization{}
	_, err = env.vault.Deposit(ctx, missing)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	assert.Equal(t, uint64(500), env.ledger.Balance(addr(victim), assetA))
	assert.Equal(t, uint64(0), env.ledger.Balance(env.vault.CustodyAddress(), assetA))
	assert.Empty(t, env.ledger.Transfers())

	pv, err := env.vault.GetProjectVault(ctx, types.ProjectVaultKey{ProjectID: 1, AssetID: assetA})
	require.NoError(t, err)
	assert.Nil(t, pv)

	// With the owner's consent the same deposit goes through
	_, err = env.vault.Deposit(ctx, depositReqFrom(t, env.signer, victim, p))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), env.ledger.Balance(addr(victim), assetA))
	assert.Equal(t, events.TokenDeposited{ProjectID: 1, DepositID: 1, AssetID: assetA, Amount: 500, Depositor: addr(victim)}, env.sink.Last())
}

// Withdraw 30 at t0+5 signed by S1, then replay it
func TestScenario_WithdrawAndReplay(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)
	env.sink.Reset()

	env.clock.Set(time.Unix(t0+5, 0))
	req := env.withdrawReq(t, env.signer, withdrawal(1, 30))

	res, err := env.vault.Withdraw(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), res.ProjectVault.Available())
	assert.Equal(t, uint64(30), env.ledger.Balance(recipient, assetA))
	assert.Equal(t, events.TokenWithdrawn{ProjectID: 1, WithdrawalID: 1, Amount: 30, AssetID: assetA, Recipient: recipient}, env.sink.Last())

	transfers := len(env.ledger.Transfers())
	_, err = env.vault.Withdraw(ctx, req)
	assert.ErrorIs(t, err, types.ErrSignatureUsed)
	assert.Len(t, env.ledger.Transfers(), transfers)
	assert.Equal(t, uint64(30), env.ledger.Balance(recipient, assetA))
	assert.Len(t, env.sink.Events(), 1)
}

// Withdraw signed by an identity not in signers
func TestScenario_WithdrawByNonSigner(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)

	_, err := env.vault.Withdraw(ctx, env.withdrawReq(t, newKey(t), withdrawal(1, 30)))
	assert.ErrorIs(t, err, types.ErrInvalidSignature)
	assert.Equal(t, uint64(0), env.ledger.Balance(recipient, assetA))

	// The owner is not a signer either
	_, err = env.vault.Withdraw(ctx, env.withdrawReq(t, env.owner, withdrawal(2, 30)))
	assert.ErrorIs(t, err, types.ErrInvalidSignature)
}

// Calls at exactly the expiration time fail
func TestScenario_ExpiredAtBoundary(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)

	env.clock.Advance(10 * time.Second)
	_, err := env.vault.Withdraw(ctx, env.withdrawReq(t, env.signer, withdrawal(1, 30)))
	assert.ErrorIs(t, err, types.ErrExpiredSignature)

	_, err = env.vault.Deposit(ctx, env.depositReq(t, env.signer, types.DepositParam{
		ProjectID: 1, DepositID: 2, AssetID: assetA, Amount: 1, ExpirationTime: t0 + 10,
	}))
	assert.ErrorIs(t, err, types.ErrExpiredSignature)

	p := types.ClaimParam{ProjectID: 1, ClaimID: 1, AssetID: assetA, Amount: 1, Recipient: recipient, ExpirationTime: t0 + 10}
	auth, err := crypto.SignAuthorization(crypto.ClaimMessage(testDom, &p), env.signer)
	require.NoError(t, err)
	_, err = env.vault.Claim(ctx, &ClaimRequest{Param: p, Authorization: *auth})
	assert.ErrorIs(t, err, types.ErrExpiredSignature)
}

func TestVault_Withdraw_SpendLimit(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)

	_, err := env.vault.Withdraw(ctx, env.withdrawReq(t, env.signer, withdrawal(1, 101)))
	assert.ErrorIs(t, err, types.ErrWithdrawTooMuch)

	_, err = env.vault.Withdraw(ctx, env.withdrawReq(t, env.signer, withdrawal(2, 100)))
	require.NoError(t, err)

	_, err = env.vault.Withdraw(ctx, env.withdrawReq(t, env.signer, withdrawal(3, 1)))
	assert.ErrorIs(t, err, types.ErrWithdrawTooMuch)

	// Unknown project
	p := withdrawal(4, 1)
	p.ProjectID = 2
	_, err = env.vault.Withdraw(ctx, env.withdrawReq(t, env.signer, p))
	assert.ErrorIs(t, err, types.ErrWithdrawTooMuch)

	pv, err := env.vault.GetProjectVault(ctx, types.ProjectVaultKey{ProjectID: 1, AssetID: assetA})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), pv.TotalDeposited)
	assert.Equal(t, uint64(100), pv.TotalReleased)
}

func TestVault_Withdraw_ZeroAmountAndBadInput(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)

	_, err := env.vault.Withdraw(ctx, env.withdrawReq(t, env.signer, withdrawal(1, 0)))
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	p := withdrawal(2, 1)
	p.Recipient = common.Address{}
	_, err = env.vault.Withdraw(ctx, env.withdrawReq(t, env.signer, p))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	req := env.withdrawReq(t, env.signer, withdrawal(3, 1))
	req.Authorization.Signature = req.Authorization.Signature[:10]
	_, err = env.vault.Withdraw(ctx, req)
	assert.ErrorIs(t, err, types.ErrSigVerificationFailed)

	_, err = env.vault.Withdraw(ctx, nil)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestVault_Withdraw_TransferFailureRollsBack(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)
	env.sink.Reset()

	env.ledger.FailNext(1, fmt.Errorf("%w: recipient frozen", ledger.ErrInvalidAccount))

	req := env.withdrawReq(t, env.signer, withdrawal(1, 30))
	_, err := env.vault.Withdraw(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrInvalidAccount)
	assert.Empty(t, env.sink.Events())

	pv, err := env.vault.GetProjectVault(ctx, types.ProjectVaultKey{ProjectID: 1, AssetID: assetA})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pv.TotalReleased)

	fp := crypto.Fingerprint(crypto.WithdrawalMessage(testDom, &req.Param))
	used, err := env.vault.IsSignatureUsed(ctx, fp)
	require.NoError(t, err)
	assert.False(t, used)

	// Retrying the same authorization now succeeds
	_, err = env.vault.Withdraw(ctx, req)
	require.NoError(t, err)
}

func TestVault_Deposit_TransferFailureRemovesNewRecord(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.ledger.FailNext(1, ledger.ErrUnauthorizedTransfer)

	_, err := env.vault.Deposit(ctx, env.depositReq(t, env.signer, types.DepositParam{
		ProjectID: 9, DepositID: 1, AssetID: assetA, Amount: 10, ExpirationTime: t0 + 10,
	}))
	assert.ErrorIs(t, err, ledger.ErrUnauthorizedTransfer)

	pv, err := env.vault.GetProjectVault(ctx, types.ProjectVaultKey{ProjectID: 9, AssetID: assetA})
	require.NoError(t, err)
	assert.Nil(t, pv)
}

func TestVault_Withdraw_CustodyShortfallIsWithdrawTooMuch(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)
	env.sink.Reset()

	env.ledger.FailNext(1, ledger.ErrInsufficientFunds)

	req := env.withdrawReq(t, env.signer, withdrawal(1, 30))
	_, err := env.vault.Withdraw(ctx, req)
	assert.ErrorIs(t, err, types.ErrWithdrawTooMuch)
	assert.Empty(t, env.sink.Events())

	pv, err := env.vault.GetProjectVault(ctx, types.ProjectVaultKey{ProjectID: 1, AssetID: assetA})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pv.TotalReleased)

	used, err := env.vault.IsSignatureUsed(ctx, crypto.Fingerprint(crypto.WithdrawalMessage(testDom, &req.Param)))
	require.NoError(t, err)
	assert.False(t, used)
}

func TestVault_Claim_CustodyShortfallIsWithdrawTooMuch(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)

	env.ledger.FailNext(1, ledger.ErrInsufficientFunds)

	p := types.ClaimParam{ProjectID: 1, ClaimID: 1, AssetID: assetA, Amount: 40, Recipient: recipient, ExpirationTime: t0 + 10}
	auth, err := crypto.SignAuthorization(crypto.ClaimMessage(testDom, &p), env.signer)
	require.NoError(t, err)
	_, err = env.vault.Claim(ctx, &ClaimRequest{Param: p, Authorization: *auth})
	assert.ErrorIs(t, err, types.ErrWithdrawTooMuch)

	pv, err := env.vault.GetProjectVault(ctx, types.ProjectVaultKey{ProjectID: 1, AssetID: assetA})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pv.TotalReleased)
}

func TestVault_Withdraw_AmbiguousTransferFailureStaysConsumed(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)

	boom := errors.New("ledger unavailable")
	env.ledger.FailNext(1, boom)

	req := env.withdrawReq(t, env.signer, withdrawal(1, 30))
	_, err := env.vault.Withdraw(ctx, req)
	assert.ErrorIs(t, err, boom)

	// The outcome is unknown so the release stays on the books
	pv, err := env.vault.GetProjectVault(ctx, types.ProjectVaultKey{ProjectID: 1, AssetID: assetA})
	require.NoError(t, err)
	assert.Equal(t, uint64(30), pv.TotalReleased)

	used, err := env.vault.IsSignatureUsed(ctx, crypto.Fingerprint(crypto.WithdrawalMessage(testDom, &req.Param)))
	require.NoError(t, err)
	assert.True(t, used)

	_, err = env.vault.Withdraw(ctx, req)
	assert.ErrorIs(t, err, types.ErrSignatureUsed)
}

func TestVault_Claim(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)
	env.sink.Reset()

	p := types.ClaimParam{ProjectID: 1, ClaimID: 7, AssetID: assetA, Amount: 40, Recipient: recipient, ExpirationTime: t0 + 10}
	auth, err := crypto.SignAuthorization(crypto.ClaimMessage(testDom, &p), env.signer)
	require.NoError(t, err)
	req := &ClaimRequest{Param: p, Authorization: *auth}

	res, err := env.vault.Claim(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), res.ProjectVault.Available())
	assert.Equal(t, events.TokenClaimed{ProjectID: 1, ClaimID: 7, Amount: 40, AssetID: assetA, Recipient: recipient}, env.sink.Last())

	_, err = env.vault.Claim(ctx, req)
	assert.ErrorIs(t, err, types.ErrSignatureUsed)

	rec, err := env.vault.GetSignatureRecord(ctx, res.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, types.OperationClaim, rec.Operation)
	assert.Equal(t, addr(env.signer), rec.Signer)

	// Claims and withdrawals with equal fields are distinct authorizations
	w := withdrawal(7, 40)
	_, err = env.vault.Withdraw(ctx, env.withdrawReq(t, env.signer, w))
	require.NoError(t, err)
}

func TestVault_ListProjectVaults(t *testing.T) {
	env := newTestEnv(t, 0)
	env.deposit(t, 3, 1, 10)
	env.deposit(t, 1, 2, 10)

	vaults, err := env.vault.ListProjectVaults(context.Background())
	require.NoError(t, err)
	require.Len(t, vaults, 2)
	assert.Equal(t, uint64(1), vaults[0].ProjectID)
	assert.Equal(t, uint64(3), vaults[1].ProjectID)
}

// Many goroutines present the same withdrawal; exactly one executes
func TestVault_ConcurrentReplay(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)

	req := env.withdrawReq(t, env.signer, withdrawal(1, 30))

	const workers = 16
	var ok, used atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.vault.Withdraw(ctx, req)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, types.ErrSignatureUsed):
				used.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(workers-1), used.Load())
	assert.Equal(t, uint64(30), env.ledger.Balance(recipient, assetA))
}

// Concurrent withdrawals on one project never exceed its deposits
func TestVault_ConcurrentSpendLimit(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.deposit(t, 1, 1, 100)

	reqs := make([]*WithdrawRequest, 20)
	for i := range reqs {
		reqs[i] = env.withdrawReq(t, env.signer, withdrawal(uint64(i+1), 10))
	}

	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(req *WithdrawRequest) {
			defer wg.Done()
			_, _ = env.vault.Withdraw(ctx, req)
		}(req)
	}
	wg.Wait()

	assert.Equal(t, uint64(100), env.ledger.Balance(recipient, assetA))
	pv, err := env.vault.GetProjectVault(ctx, types.ProjectVaultKey{ProjectID: 1, AssetID: assetA})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), pv.TotalReleased)
	assert.Equal(t, 0, env.vault.projectLocks.size())
}
