// Package vault coordinates every state-changing operation of a reward vault.
//
// A gated operation moves through expiration, amount and signature checks
// before a single persistence transaction re-checks signer membership,
// rejects replays, enforces the project spend limit and records the result.
// Only then is the external ledger asked to move funds. A failed transfer
// is compensated by restoring the records it touched.
//
// Locks are taken in a fixed order: authority, project vault, fingerprint.
// Signer set and ownership changes hold the authority lock exclusively, so
// gated operations always see a stable signer set.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/Layr-Labs/reward-vault-go/pkg/clock"
	"github.com/Layr-Labs/reward-vault-go/pkg/crypto"
	"github.com/Layr-Labs/reward-vault-go/pkg/events"
	"github.com/Layr-Labs/reward-vault-go/pkg/ledger"
	"github.com/Layr-Labs/reward-vault-go/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-go/pkg/registry"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config holds deployment parameters of a vault
type Config struct {
	Domain     types.VaultDomain
	MaxSigners int
}

// Vault is the coordinator. Exactly one instance exists per deployment and
// it must be the only writer of its persistence backend.
type Vault struct {
	domain     types.VaultDomain
	custody    common.Address
	maxSigners int

	store  persistence.IVaultPersistence
	ledger ledger.ILedger
	clock  clock.IClock
	sink   events.IEventSink
	logger *zap.Logger

	authorityMu      sync.RWMutex
	projectLocks     *keyedMutex
	fingerprintLocks *keyedMutex
}

// NewVault wires a coordinator from its collaborators
func NewVault(
	cfg *Config,
	store persistence.IVaultPersistence,
	l ledger.ILedger,
	c clock.IClock,
	sink events.IEventSink,
	logger *zap.Logger,
) (*Vault, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vault config cannot be nil")
	}
	if store == nil || l == nil || c == nil {
		return nil, fmt.Errorf("persistence, ledger and clock are required")
	}
	if cfg.Domain.VaultAddress == (common.Address{}) {
		return nil, fmt.Errorf("vault address cannot be the zero address")
	}
	if sink == nil {
		sink = events.NewLoggingSink(logger)
	}
	maxSigners := cfg.MaxSigners
	if maxSigners <= 0 {
		maxSigners = types.DefaultMaxSigners
	}

	return &Vault{
		domain:           cfg.Domain,
		custody:          cfg.Domain.CustodyAddress(),
		maxSigners:       maxSigners,
		store:            store,
		ledger:           l,
		clock:            c,
		sink:             sink,
		logger:           logger,
		projectLocks:     newKeyedMutex(),
		fingerprintLocks: newKeyedMutex(),
	}, nil
}

// Domain returns the domain all signed messages must be bound to
func (v *Vault) Domain() types.VaultDomain {
	return v.domain
}

// CustodyAddress is the ledger account holding custodied funds
func (v *Vault) CustodyAddress() common.Address {
	return v.custody
}

func (v *Vault) now() int64 {
	return v.clock.Now().Unix()
}

func checkExpiration(now, expiration int64) error {
	if now >= expiration {
		return errors.Wrapf(types.ErrExpiredSignature, "now %d, expired at %d", now, expiration)
	}
	return nil
}

// consumeFingerprint fails with ErrSignatureUsed if fp was consumed before and
// otherwise stages its record in txn
func consumeFingerprint(txn persistence.IVaultTxn, fp types.Fingerprint, op types.OperationType, signer common.Address, now int64) error {
	rec, err := txn.GetSignatureRecord(fp)
	if err != nil {
		return errors.Wrap(err, "failed to load signature record")
	}
	if rec != nil && rec.Consumed {
		return errors.Wrapf(types.ErrSignatureUsed, "fingerprint %s", fp.Hex())
	}
	return txn.PutSignatureRecord(&types.UsedSignatureRecord{
		Fingerprint: fp,
		Consumed:    true,
		Operation:   op,
		Signer:      signer,
		ConsumedAt:  now,
	})
}

func loadAuthority(txn persistence.IVaultReader) (*types.VaultAuthority, error) {
	auth, err := txn.GetAuthority()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load vault authority")
	}
	if auth == nil {
		return nil, types.ErrNotInitialized
	}
	return auth, nil
}

// Initialize creates the vault authority with owner and an empty signer set
func (v *Vault) Initialize(ctx context.Context, owner common.Address) (*types.VaultAuthority, error) {
	v.authorityMu.Lock()
	defer v.authorityMu.Unlock()

	auth, err := registry.NewAuthority(owner, v.maxSigners, v.now())
	if err != nil {
		return nil, err
	}

	err = v.store.Update(func(txn persistence.IVaultTxn) error {
		existing, err := txn.GetAuthority()
		if err != nil {
			return errors.Wrap(err, "failed to load vault authority")
		}
		if existing != nil {
			return types.ErrAlreadyInitialized
		}
		return txn.PutAuthority(auth)
	})
	if err != nil {
		return nil, err
	}

	v.logger.Sugar().Infow("Vault initialized",
		"owner", owner.Hex(),
		"vault", v.domain.VaultAddress.Hex(),
		"custody", v.custody.Hex(),
		"maxSigners", v.maxSigners,
	)
	v.sink.Emit(ctx, events.VaultInitialized{Owner: owner})
	return auth, nil
}

// adminCheck authenticates an owner-gated call. With a proof attached the
// caller is whoever signed it; the returned fingerprint must be consumed in
// the same transaction as the mutation.
func (v *Vault) adminCheck(caller common.Address, action types.AdminActionType, target common.Address, proof *types.AdminProof, now int64) (common.Address, *types.Fingerprint, error) {
	if proof == nil {
		if caller == (common.Address{}) {
			return caller, nil, errors.Wrap(types.ErrInvalidSignature, "caller is required")
		}
		return caller, nil, nil
	}

	if proof.Action.Action != action || proof.Action.Target != target {
		return caller, nil, errors.Wrapf(types.ErrInvalidParameter,
			"proof authorizes %s of %s, request is %s of %s",
			proof.Action.Action, proof.Action.Target.Hex(), action, target.Hex())
	}
	if err := checkExpiration(now, proof.Action.ExpirationTime); err != nil {
		return caller, nil, err
	}

	msg := crypto.AdminActionMessage(v.domain, &proof.Action)
	if err := crypto.VerifyAuthorization(msg, &proof.Authorization); err != nil {
		return caller, nil, err
	}
	signer := proof.Authorization.Signer
	if caller != (common.Address{}) && caller != signer {
		return caller, nil, errors.Wrapf(types.ErrInvalidSignature, "proof signed by %s, caller is %s", signer.Hex(), caller.Hex())
	}

	fp := crypto.Fingerprint(msg)
	return signer, &fp, nil
}

// mutateAuthority runs an owner-gated registry mutation
func (v *Vault) mutateAuthority(
	caller common.Address,
	action types.AdminActionType,
	target common.Address,
	proof *types.AdminProof,
	mutate func(auth *types.VaultAuthority) (events.Event, error),
) (*types.VaultAuthority, events.Event, error) {
	v.authorityMu.Lock()
	defer v.authorityMu.Unlock()

	now := v.now()
	caller, fp, err := v.adminCheck(caller, action, target, proof, now)
	if err != nil {
		return nil, nil, err
	}
	if fp != nil {
		unlock := v.fingerprintLocks.Lock(fp.Hex())
		defer unlock()
	}

	var updated *types.VaultAuthority
	var event events.Event
	err = v.store.Update(func(txn persistence.IVaultTxn) error {
		auth, err := loadAuthority(txn)
		if err != nil {
			return err
		}
		if !registry.IsOwner(auth, caller) {
			return errors.Wrapf(types.ErrInvalidSignature, "caller %s is not the owner", caller.Hex())
		}
		if fp != nil {
			if err := consumeFingerprint(txn, *fp, types.OperationAdmin, caller, now); err != nil {
				return err
			}
		}
		if event, err = mutate(auth); err != nil {
			return err
		}
		updated = auth
		return txn.PutAuthority(auth)
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, event, nil
}

// ConfigureSigner adds or removes a signer. Only the owner may call it.
func (v *Vault) ConfigureSigner(ctx context.Context, req *ConfigureSignerRequest) (*types.VaultAuthority, error) {
	if req == nil {
		return nil, errors.Wrap(types.ErrInvalidParameter, "request is nil")
	}
	action := types.AdminActionRemoveSigner
	if req.Add {
		action = types.AdminActionAddSigner
	}

	auth, event, err := v.mutateAuthority(req.Caller, action, req.Signer, req.Proof, func(auth *types.VaultAuthority) (events.Event, error) {
		return registry.ConfigureSigner(auth, req.Signer, req.Add)
	})
	if err != nil {
		return nil, err
	}

	v.logger.Sugar().Infow("Signer set updated", "signer", req.Signer.Hex(), "add", req.Add, "signers", len(auth.Signers))
	v.sink.Emit(ctx, event)
	return auth, nil
}

// TransferOwnership hands the vault to a new owner. Only the owner may call it.
func (v *Vault) TransferOwnership(ctx context.Context, req *TransferOwnershipRequest) (*types.VaultAuthority, error) {
	if req == nil {
		return nil, errors.Wrap(types.ErrInvalidParameter, "request is nil")
	}

	auth, event, err := v.mutateAuthority(req.Caller, types.AdminActionTransferOwnership, req.NewOwner, req.Proof, func(auth *types.VaultAuthority) (events.Event, error) {
		return registry.TransferOwnership(auth, req.NewOwner)
	})
	if err != nil {
		return nil, err
	}

	v.logger.Sugar().Infow("Vault ownership transferred", "newOwner", req.NewOwner.Hex())
	v.sink.Emit(ctx, event)
	return auth, nil
}

// Deposit pulls funds from the depositor into custody and credits the project
func (v *Vault) Deposit(ctx context.Context, req *DepositRequest) (*OperationResult, error) {
	if req == nil {
		return nil, errors.Wrap(types.ErrInvalidParameter, "request is nil")
	}
	p := req.Param
	now := v.now()

	if err := checkExpiration(now, p.ExpirationTime); err != nil {
		return nil, err
	}
	if p.Amount == 0 {
		return nil, types.ErrInvalidAmount
	}
	depositor := req.DepositorAuthorization.Signer
	if p.AssetID == (common.Address{}) || depositor == (common.Address{}) {
		return nil, errors.Wrap(types.ErrInvalidParameter, "asset and depositor are required")
	}

	msg := crypto.DepositMessage(v.domain, &p)
	if err := crypto.VerifyAuthorization(msg, &req.Authorization); err != nil {
		return nil, err
	}
	// The depositor consents to the pull by signing the same message
	if err := crypto.VerifyAuthorization(msg, &req.DepositorAuthorization); err != nil {
		return nil, errors.Wrap(err, "depositor authorization")
	}

	// Reject unknown source accounts before anything is committed
	exists, err := v.ledger.AccountExists(ctx, depositor, p.AssetID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up depositor account")
	}
	if !exists {
		return nil, errors.Wrapf(ledger.ErrInvalidAccount, "depositor %s holds no %s", depositor.Hex(), p.AssetID.Hex())
	}

	key := types.ProjectVaultKey{ProjectID: p.ProjectID, AssetID: p.AssetID}
	op := &gatedOperation{
		kind:        types.OperationDeposit,
		fingerprint: crypto.Fingerprint(msg),
		signer:      req.Authorization.Signer,
		key:         key,
		apply: func(existing *types.ProjectVault) (*types.ProjectVault, error) {
			return RecordDeposit(existing, key, p.Amount, now)
		},
		transfer: ledger.TransferRequest{
			AssetID:      p.AssetID,
			From:         depositor,
			To:           v.custody,
			Amount:       p.Amount,
			AuthorizedBy: depositor,
		},
		now: now,
	}
	pv, err := v.execute(ctx, op)
	if err != nil {
		return nil, err
	}

	v.logger.Sugar().Infow("Deposit executed",
		"projectId", p.ProjectID,
		"depositId", p.DepositID,
		"asset", p.AssetID.Hex(),
		"amount", p.Amount,
		"depositor", depositor.Hex(),
		"totalDeposited", pv.TotalDeposited,
	)
	v.sink.Emit(ctx, events.TokenDeposited{
		ProjectID: p.ProjectID,
		DepositID: p.DepositID,
		AssetID:   p.AssetID,
		Amount:    p.Amount,
		Depositor: depositor,
	})
	return &OperationResult{Fingerprint: op.fingerprint, ProjectVault: pv}, nil
}

// Withdraw releases project funds from custody to a recipient
func (v *Vault) Withdraw(ctx context.Context, req *WithdrawRequest) (*OperationResult, error) {
	if req == nil {
		return nil, errors.Wrap(types.ErrInvalidParameter, "request is nil")
	}
	p := req.Param
	msg := crypto.WithdrawalMessage(v.domain, &p)

	res, err := v.release(ctx, types.OperationWithdraw, msg, p.ProjectID, p.AssetID, p.Amount, p.Recipient, p.ExpirationTime, &req.Authorization)
	if err != nil {
		return nil, err
	}

	v.logger.Sugar().Infow("Withdrawal executed",
		"projectId", p.ProjectID,
		"withdrawalId", p.WithdrawalID,
		"asset", p.AssetID.Hex(),
		"amount", p.Amount,
		"recipient", p.Recipient.Hex(),
		"signer", req.Authorization.Signer.Hex(),
	)
	v.sink.Emit(ctx, events.TokenWithdrawn{
		ProjectID:    p.ProjectID,
		WithdrawalID: p.WithdrawalID,
		Amount:       p.Amount,
		AssetID:      p.AssetID,
		Recipient:    p.Recipient,
	})
	return res, nil
}

// Claim releases project funds to a claimant. Claims share the spend limit
// of withdrawals but have their own id space and message tag.
func (v *Vault) Claim(ctx context.Context, req *ClaimRequest) (*OperationResult, error) {
	if req == nil {
		return nil, errors.Wrap(types.ErrInvalidParameter, "request is nil")
	}
	p := req.Param
	msg := crypto.ClaimMessage(v.domain, &p)

	res, err := v.release(ctx, types.OperationClaim, msg, p.ProjectID, p.AssetID, p.Amount, p.Recipient, p.ExpirationTime, &req.Authorization)
	if err != nil {
		return nil, err
	}

	v.logger.Sugar().Infow("Claim executed",
		"projectId", p.ProjectID,
		"claimId", p.ClaimID,
		"asset", p.AssetID.Hex(),
		"amount", p.Amount,
		"recipient", p.Recipient.Hex(),
	)
	v.sink.Emit(ctx, events.TokenClaimed{
		ProjectID: p.ProjectID,
		ClaimID:   p.ClaimID,
		Amount:    p.Amount,
		AssetID:   p.AssetID,
		Recipient: p.Recipient,
	})
	return res, nil
}

func (v *Vault) release(
	ctx context.Context,
	kind types.OperationType,
	msg []byte,
	projectID uint64,
	asset common.Address,
	amount uint64,
	recipient common.Address,
	expiration int64,
	auth *types.Authorization,
) (*OperationResult, error) {
	now := v.now()

	if err := checkExpiration(now, expiration); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, types.ErrInvalidAmount
	}
	if asset == (common.Address{}) || recipient == (common.Address{}) {
		return nil, errors.Wrap(types.ErrInvalidParameter, "asset and recipient are required")
	}
	if err := crypto.VerifyAuthorization(msg, auth); err != nil {
		return nil, err
	}

	op := &gatedOperation{
		kind:        kind,
		fingerprint: crypto.Fingerprint(msg),
		signer:      auth.Signer,
		key:         types.ProjectVaultKey{ProjectID: projectID, AssetID: asset},
		apply: func(existing *types.ProjectVault) (*types.ProjectVault, error) {
			return RecordRelease(existing, amount, now)
		},
		transfer: ledger.TransferRequest{
			AssetID:      asset,
			From:         v.custody,
			To:           recipient,
			Amount:       amount,
			AuthorizedBy: v.domain.VaultAddress,
		},
		now: now,
	}
	pv, err := v.execute(ctx, op)
	if err != nil {
		return nil, err
	}
	return &OperationResult{Fingerprint: op.fingerprint, ProjectVault: pv}, nil
}

// gatedOperation is a signature-authorized change to one project vault
// followed by one ledger transfer
type gatedOperation struct {
	kind        types.OperationType
	fingerprint types.Fingerprint
	signer      common.Address
	key         types.ProjectVaultKey
	apply       func(existing *types.ProjectVault) (*types.ProjectVault, error)
	transfer    ledger.TransferRequest
	now         int64
}

// execute performs the stateful part of a gated operation. The signature has
// already been verified; membership is re-checked here under the locks.
func (v *Vault) execute(ctx context.Context, op *gatedOperation) (*types.ProjectVault, error) {
	v.authorityMu.RLock()
	defer v.authorityMu.RUnlock()

	unlockProject := v.projectLocks.Lock(op.key.String())
	defer unlockProject()

	unlockFingerprint := v.fingerprintLocks.Lock(op.fingerprint.Hex())
	defer unlockFingerprint()

	var previous, updated *types.ProjectVault
	err := v.store.Update(func(txn persistence.IVaultTxn) error {
		auth, err := loadAuthority(txn)
		if err != nil {
			return err
		}
		if !registry.IsAuthorizedSigner(auth, op.signer) {
			return errors.Wrapf(types.ErrInvalidSignature, "%s is not an authorized signer", op.signer.Hex())
		}
		if err := consumeFingerprint(txn, op.fingerprint, op.kind, op.signer, op.now); err != nil {
			return err
		}

		previous, err = txn.GetProjectVault(op.key)
		if err != nil {
			return errors.Wrap(err, "failed to load project vault")
		}
		if updated, err = op.apply(previous); err != nil {
			return err
		}
		return txn.PutProjectVault(updated)
	})
	if err != nil {
		return nil, err
	}

	if err := v.ledger.Transfer(ctx, op.transfer); err != nil {
		if !ledger.IsRejection(err) {
			// Funds may have moved; keep the records so the authorization cannot run again
			v.logger.Sugar().Errorw("Transfer outcome unknown; authorization remains consumed",
				"operation", op.kind,
				"fingerprint", op.fingerprint.Hex(),
				"project", op.key.String(),
				"error", err,
			)
			return nil, errors.Wrapf(err, "%s transfer outcome unknown", op.kind)
		}

		v.compensate(op, previous)
		if op.kind != types.OperationDeposit && errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, errors.Wrapf(types.ErrWithdrawTooMuch, "custody cannot cover %s of %d: %v", op.kind, op.transfer.Amount, err)
		}
		return nil, errors.Wrapf(err, "%s transfer failed", op.kind)
	}
	return updated, nil
}

// compensate undoes the records committed for op after the ledger rejected
// its transfer.
// If this fails too the fingerprint stays consumed, so the authorization can
// never execute twice.
func (v *Vault) compensate(op *gatedOperation, previous *types.ProjectVault) {
	err := v.store.Update(func(txn persistence.IVaultTxn) error {
		if err := txn.DeleteSignatureRecord(op.fingerprint); err != nil {
			return err
		}
		if previous == nil {
			return txn.DeleteProjectVault(op.key)
		}
		return txn.PutProjectVault(previous)
	})
	if err != nil {
		v.logger.Sugar().Errorw("Failed to compensate after transfer failure; authorization remains consumed",
			"operation", op.kind,
			"fingerprint", op.fingerprint.Hex(),
			"project", op.key.String(),
			"error", err,
		)
		return
	}
	v.logger.Sugar().Warnw("Transfer failed, operation rolled back",
		"operation", op.kind,
		"fingerprint", op.fingerprint.Hex(),
		"project", op.key.String(),
	)
}

// HealthCheck reports whether the persistence backend is usable
func (v *Vault) HealthCheck() error {
	return v.store.HealthCheck()
}

// GetAuthority returns the current authority record
func (v *Vault) GetAuthority(ctx context.Context) (*types.VaultAuthority, error) {
	var auth *types.VaultAuthority
	err := v.store.View(func(txn persistence.IVaultReader) error {
		var err error
		auth, err = loadAuthority(txn)
		return err
	})
	return auth, err
}

// GetProjectVault returns the record for key, or nil if nothing was deposited
func (v *Vault) GetProjectVault(ctx context.Context, key types.ProjectVaultKey) (*types.ProjectVault, error) {
	var pv *types.ProjectVault
	err := v.store.View(func(txn persistence.IVaultReader) error {
		var err error
		pv, err = txn.GetProjectVault(key)
		return err
	})
	return pv, err
}

// ListProjectVaults returns every project vault ordered by project, then asset
func (v *Vault) ListProjectVaults(ctx context.Context) ([]*types.ProjectVault, error) {
	var vaults []*types.ProjectVault
	err := v.store.View(func(txn persistence.IVaultReader) error {
		var err error
		vaults, err = txn.ListProjectVaults()
		return err
	})
	return vaults, err
}

// GetSignatureRecord returns the consumption record for fp or nil
func (v *Vault) GetSignatureRecord(ctx context.Context, fp types.Fingerprint) (*types.UsedSignatureRecord, error) {
	var rec *types.UsedSignatureRecord
	err := v.store.View(func(txn persistence.IVaultReader) error {
		var err error
		rec, err = txn.GetSignatureRecord(fp)
		return err
	})
	return rec, err
}

// IsSignatureUsed reports whether fp has been consumed
func (v *Vault) IsSignatureUsed(ctx context.Context, fp types.Fingerprint) (bool, error) {
	rec, err := v.GetSignatureRecord(ctx, fp)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Consumed, nil
}
