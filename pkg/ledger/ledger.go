// Package ledger abstracts the external token ledger that actually moves
// balances between accounts. The vault only authorizes and accounts; every
// transfer goes through an ILedger.
package ledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientFunds is returned when the source account balance is too low
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAccount is returned for malformed or missing accounts
	ErrInvalidAccount = errors.New("invalid account")

	// ErrUnauthorizedTransfer is returned when authorizedBy does not control the source account
	ErrUnauthorizedTransfer = errors.New("transfer not authorized by account owner")
)

// TransferRequest moves Amount of AssetID from From to To. AuthorizedBy must
// control From.
type TransferRequest struct {
	AssetID      common.Address
	From         common.Address
	To           common.Address
	Amount       uint64
	AuthorizedBy common.Address
}

// ILedger is the external ledger collaborator
type ILedger interface {
	// Transfer executes the transfer atomically or not at all
	Transfer(ctx context.Context, req TransferRequest) error

	// AccountExists reports whether account holds a balance record for asset
	AccountExists(ctx context.Context, account common.Address, asset common.Address) (bool, error)
}

// IsRejection reports whether err is one of the failures for which a ledger
// guarantees that nothing moved. Any other error leaves the outcome unknown.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAccount) ||
		errors.Is(err, ErrUnauthorizedTransfer)
}
