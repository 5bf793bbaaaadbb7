package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRejection(t *testing.T) {
	for _, err := range []error{
		ErrInsufficientFunds,
		fmt.Errorf("%w: have 0, need 30", ErrInsufficientFunds),
		ErrInvalidAccount,
		ErrUnauthorizedTransfer,
	} {
		assert.True(t, IsRejection(err), err.Error())
	}

	for _, err := range []error{
		nil,
		context.DeadlineExceeded,
		errors.New("connection reset"),
	} {
		assert.False(t, IsRejection(err), "%v", err)
	}
}
