package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"valuebridge/internal/chain"
)

// ErrEventNotFound is returned when a receipt lacks an expected event log.
var ErrEventNotFound = errors.New("event log not found")

// TxOpts fixes the sending account and gas settings for a binding's
// state-changing calls.
type TxOpts struct {
	From     common.Address
	GasPrice *big.Int
	Gas      uint64
}

// BoundContract ties an ABI to a deployed address on one ledger and provides
// the call / transact / receipt-event machinery shared by all bindings.
type BoundContract struct {
	gw      chain.Gateway
	address common.Address
	abi     abi.ABI
	opts    TxOpts
	logger  *zap.Logger
}

// NewBoundContract builds a binding for a deployed contract.
func NewBoundContract(gw chain.Gateway, address common.Address, contractABI abi.ABI, opts TxOpts, logger *zap.Logger) *BoundContract {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoundContract{
		gw:      gw,
		address: address,
		abi:     contractABI,
		opts:    opts,
		logger:  logger,
	}
}

// Address returns the deployed contract address.
func (b *BoundContract) Address() common.Address {
	return b.address
}

// Call performs a read-only method call and returns the unpacked outputs.
func (b *BoundContract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := b.gw.Call(ctx, b.address, data)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := b.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// Transact submits a state-changing method call and waits for its receipt.
// A mined-but-reverted transaction is returned as an error alongside the
// receipt so callers can still record the hash.
func (b *BoundContract) Transact(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	txHash, err := b.gw.Send(ctx, chain.SendRequest{
		From:     b.opts.From,
		To:       b.address,
		Data:     data,
		GasPrice: b.opts.GasPrice,
		Gas:      b.opts.Gas,
	})
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	b.logger.Debug("transaction submitted",
		zap.String("method", method),
		zap.String("contract", b.address.Hex()),
		zap.String("tx_hash", txHash.Hex()),
	)

	receipt, err := b.gw.WaitReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, fmt.Errorf("%s reverted: %s", method, txHash.Hex())
	}
	return receipt, nil
}

// EventFromReceipt finds the named event emitted by this contract in the
// receipt and returns its decoded fields.
func (b *BoundContract) EventFromReceipt(receipt *types.Receipt, eventName string) (map[string]interface{}, error) {
	event, ok := b.abi.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("abi has no event %s", eventName)
	}

	for _, log := range receipt.Logs {
		if log.Address != b.address || len(log.Topics) == 0 || log.Topics[0] != event.ID {
			continue
		}

		fields := make(map[string]interface{})
		if len(log.Data) > 0 {
			if err := b.abi.UnpackIntoMap(fields, eventName, log.Data); err != nil {
				return nil, fmt.Errorf("unpack event %s: %w", eventName, err)
			}
		}

		indexed := indexedArguments(event.Inputs)
		if len(indexed) > 0 {
			if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
				return nil, fmt.Errorf("parse topics %s: %w", eventName, err)
			}
		}
		return fields, nil
	}
	return nil, fmt.Errorf("receipt %s: %w: %s", receipt.TxHash.Hex(), ErrEventNotFound, eventName)
}

func indexedArguments(inputs abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(inputs))
	for _, arg := range inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
