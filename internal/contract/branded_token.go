package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"valuebridge/internal/chain"
)

// BrandedToken binds a deployed branded token contract.
type BrandedToken struct {
	bound *BoundContract
	gw    chain.Gateway
}

// NewBrandedToken builds a branded token binding. TxOpts fix the gas
// settings only; transfer and claim choose their sender per call.
func NewBrandedToken(gw chain.Gateway, address common.Address, opts TxOpts, logger *zap.Logger) (*BrandedToken, error) {
	parsed, err := BrandedTokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse branded token abi: %w", err)
	}
	return &BrandedToken{
		bound: NewBoundContract(gw, address, parsed, opts, logger),
		gw:    gw,
	}, nil
}

// Address returns the token contract address.
func (t *BrandedToken) Address() common.Address {
	return t.bound.Address()
}

// BalanceOf reads the on-chain token balance of an account.
func (t *BrandedToken) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	values, err := t.bound.Call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned %T", values[0])
	}
	return amount, nil
}

// Unclaimed reads the minted-but-unclaimed amount for a beneficiary.
func (t *BrandedToken) Unclaimed(ctx context.Context, beneficiary common.Address) (*big.Int, error) {
	values, err := t.bound.Call(ctx, "unclaimed", beneficiary)
	if err != nil {
		return nil, err
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unclaimed returned %T", values[0])
	}
	return amount, nil
}

// Claim credits minted tokens to the beneficiary, sent from the binding's
// configured operations account.
func (t *BrandedToken) Claim(ctx context.Context, beneficiary common.Address) (*types.Receipt, error) {
	return t.bound.Transact(ctx, "claim", beneficiary)
}

// Transfer moves tokens from the given sender to the recipient. The sender
// account must be node-managed; it is unlocked as part of the send.
func (t *BrandedToken) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) (*types.Receipt, error) {
	data, err := t.bound.abi.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("pack transfer: %w", err)
	}

	txHash, err := t.gw.Send(ctx, chain.SendRequest{
		From:     from,
		To:       t.bound.Address(),
		Data:     data,
		GasPrice: t.bound.opts.GasPrice,
		Gas:      t.bound.opts.Gas,
	})
	if err != nil {
		return nil, fmt.Errorf("send transfer: %w", err)
	}

	receipt, err := t.gw.WaitReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, fmt.Errorf("transfer reverted: %s", txHash.Hex())
	}
	return receipt, nil
}
