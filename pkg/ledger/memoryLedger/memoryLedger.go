package memoryLedger

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/Layr-Labs/reward-vault-go/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
)

type accountKey struct {
	account common.Address
	asset   common.Address
}

// MemoryLedger is a thread-safe in-memory ILedger. Custody accounts listed in
// delegates may be debited by their delegate instead of themselves.
type MemoryLedger struct {
	mu        sync.Mutex
	balances  map[accountKey]uint64
	delegates map[common.Address]common.Address
	transfers []ledger.TransferRequest

	// failNext makes the next n transfers fail with failErr
	failNext int
	failErr  error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:  make(map[accountKey]uint64),
		delegates: make(map[common.Address]common.Address),
	}
}

// Mint credits amount of asset to account
func (l *MemoryLedger) Mint(account, asset common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := accountKey{account, asset}
	cur := l.balances[k]
	if cur > math.MaxUint64-amount {
		return fmt.Errorf("mint overflows balance of %s", account.Hex())
	}
	l.balances[k] = cur + amount
	return nil
}

// Delegate lets authority authorize transfers out of account
func (l *MemoryLedger) Delegate(account, authority common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delegates[account] = authority
}

// Balance returns the current balance of account for asset
func (l *MemoryLedger) Balance(account, asset common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[accountKey{account, asset}]
}

// Transfers returns a copy of every successful transfer in order
func (l *MemoryLedger) Transfers() []ledger.TransferRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ledger.TransferRequest, len(l.transfers))
	copy(out, l.transfers)
	return out
}

// FailNext makes the next n transfers return err
func (l *MemoryLedger) FailNext(n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = n
	l.failErr = err
}

func (l *MemoryLedger) Transfer(ctx context.Context, req ledger.TransferRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failNext > 0 {
		l.failNext--
		return l.failErr
	}

	if req.Amount == 0 {
		return fmt.Errorf("%w: zero amount", ledger.ErrInvalidAccount)
	}
	if req.From == (common.Address{}) || req.To == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ledger.ErrInvalidAccount)
	}
	if req.AuthorizedBy != req.From && l.delegates[req.From] != req.AuthorizedBy {
		return ledger.ErrUnauthorizedTransfer
	}

	from := accountKey{req.From, req.AssetID}
	to := accountKey{req.To, req.AssetID}
	if l.balances[from] < req.Amount {
		return fmt.Errorf("%w: have %d, need %d", ledger.ErrInsufficientFunds, l.balances[from], req.Amount)
	}
	if req.From != req.To && l.balances[to] > math.MaxUint64-req.Amount {
		return fmt.Errorf("%w: transfer overflows balance of %s", ledger.ErrInvalidAccount, req.To.Hex())
	}

	l.balances[from] -= req.Amount
	l.balances[to] += req.Amount
	l.transfers = append(l.transfers, req)
	return nil
}

func (l *MemoryLedger) AccountExists(_ context.Context, account, asset common.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.balances[accountKey{account, asset}]
	return ok, nil
}
