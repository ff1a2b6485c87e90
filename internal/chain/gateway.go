package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReceiptNotFound is returned when receipt polling exhausts its attempts.
var ErrReceiptNotFound = errors.New("receipt not found")

// SendRequest describes a state-changing submission to a ledger.
type SendRequest struct {
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasPrice *big.Int
	Gas      uint64
}

// Gateway is the remote-procedure facade of one ledger. Implementations must
// treat Send as unlock-then-submit: the sending account is unlocked
// immediately before each submission.
type Gateway interface {
	// Call performs a synchronous read against a contract.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	// Send submits a state-changing transaction and returns its hash.
	Send(ctx context.Context, req SendRequest) (common.Hash, error)
	// WaitReceipt polls for the receipt of a submitted transaction on a
	// fixed interval up to a bounded number of attempts, returning
	// ErrReceiptNotFound when they are exhausted.
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	// Balance returns the base-currency balance of an account.
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
}
