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

// ValueGateway binds the value-ledger gateway contract: the escrow side of
// staking and unstaking, and the value-side token registrar.
type ValueGateway struct {
	*Admin
	bound *BoundContract
}

// NewValueGateway builds the value gateway binding.
func NewValueGateway(gw chain.Gateway, address common.Address, opts TxOpts, logger *zap.Logger) (*ValueGateway, error) {
	parsed, err := ValueGatewayABI()
	if err != nil {
		return nil, fmt.Errorf("parse value gateway abi: %w", err)
	}
	admin, err := NewAdmin(gw, address, opts, logger)
	if err != nil {
		return nil, err
	}
	return &ValueGateway{
		Admin: admin,
		bound: NewBoundContract(gw, address, parsed, opts, logger),
	}, nil
}

// Address returns the deployed gateway address.
func (g *ValueGateway) Address() common.Address {
	return g.bound.Address()
}

// ProcessStaking advances the value-side escrow for a confirmed staking
// intent. The returned fields are the decoded ProcessedStake event.
func (g *ValueGateway) ProcessStaking(ctx context.Context, stakingIntentHash common.Hash) (*types.Receipt, map[string]interface{}, error) {
	receipt, err := g.bound.Transact(ctx, "processStaking", stakingIntentHash)
	if err != nil {
		return receipt, nil, err
	}
	fields, err := g.bound.EventFromReceipt(receipt, "ProcessedStake")
	if err != nil {
		return receipt, nil, err
	}
	return receipt, fields, nil
}

// ProcessUnstaking releases the value-side escrow for a confirmed redemption
// intent. The returned fields are the decoded ProcessedUnstake event.
func (g *ValueGateway) ProcessUnstaking(ctx context.Context, redemptionIntentHash common.Hash) (*types.Receipt, map[string]interface{}, error) {
	receipt, err := g.bound.Transact(ctx, "processUnstaking", redemptionIntentHash)
	if err != nil {
		return receipt, nil, err
	}
	fields, err := g.bound.EventFromReceipt(receipt, "ProcessedUnstake")
	if err != nil {
		return receipt, nil, err
	}
	return receipt, fields, nil
}

// RegisterUtilityToken records a branded token on the value-side registrar.
func (g *ValueGateway) RegisterUtilityToken(
	ctx context.Context,
	symbol string,
	name string,
	conversionRate *big.Int,
	conversionRateDecimals uint8,
	requester common.Address,
	token common.Address,
	checkUUID common.Hash,
) (*types.Receipt, map[string]interface{}, error) {
	receipt, err := g.bound.Transact(ctx, "registerUtilityToken",
		symbol, name, conversionRate, conversionRateDecimals, requester, token, checkUUID)
	if err != nil {
		return receipt, nil, err
	}
	fields, err := g.bound.EventFromReceipt(receipt, "UtilityTokenRegistered")
	if err != nil {
		return receipt, nil, err
	}
	return receipt, fields, nil
}
