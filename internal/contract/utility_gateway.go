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

// UtilityGateway binds the utility-ledger gateway contract: minting and
// redemption processing plus the utility-side token registrar.
type UtilityGateway struct {
	*Admin
	bound *BoundContract
}

// NewUtilityGateway builds the utility gateway binding.
func NewUtilityGateway(gw chain.Gateway, address common.Address, opts TxOpts, logger *zap.Logger) (*UtilityGateway, error) {
	parsed, err := UtilityGatewayABI()
	if err != nil {
		return nil, fmt.Errorf("parse utility gateway abi: %w", err)
	}
	admin, err := NewAdmin(gw, address, opts, logger)
	if err != nil {
		return nil, err
	}
	return &UtilityGateway{
		Admin: admin,
		bound: NewBoundContract(gw, address, parsed, opts, logger),
	}, nil
}

// Address returns the deployed gateway address.
func (g *UtilityGateway) Address() common.Address {
	return g.bound.Address()
}

// ProcessMinting mints utility-side tokens for a confirmed staking intent.
// The returned fields are the decoded ProcessedMint event, which carries the
// minted token address needed by the claim stage.
func (g *UtilityGateway) ProcessMinting(ctx context.Context, stakingIntentHash common.Hash) (*types.Receipt, map[string]interface{}, error) {
	receipt, err := g.bound.Transact(ctx, "processMinting", stakingIntentHash)
	if err != nil {
		return receipt, nil, err
	}
	fields, err := g.bound.EventFromReceipt(receipt, "ProcessedMint")
	if err != nil {
		return receipt, nil, err
	}
	return receipt, fields, nil
}

// ProcessRedeeming burns utility-side tokens for a confirmed redemption
// intent. The returned fields are the decoded ProcessedRedemption event.
func (g *UtilityGateway) ProcessRedeeming(ctx context.Context, redemptionIntentHash common.Hash) (*types.Receipt, map[string]interface{}, error) {
	receipt, err := g.bound.Transact(ctx, "processRedeeming", redemptionIntentHash)
	if err != nil {
		return receipt, nil, err
	}
	fields, err := g.bound.EventFromReceipt(receipt, "ProcessedRedemption")
	if err != nil {
		return receipt, nil, err
	}
	return receipt, fields, nil
}

// RegisterBrandedToken records a proposed branded token on the utility-side
// registrar. The returned fields are the decoded RegisteredBrandedToken
// event with the registered token address and uuid.
func (g *UtilityGateway) RegisterBrandedToken(
	ctx context.Context,
	symbol string,
	name string,
	conversionRate *big.Int,
	conversionRateDecimals uint8,
	requester common.Address,
	token common.Address,
	checkUUID common.Hash,
) (*types.Receipt, map[string]interface{}, error) {
	receipt, err := g.bound.Transact(ctx, "registerBrandedToken",
		symbol, name, conversionRate, conversionRateDecimals, requester, token, checkUUID)
	if err != nil {
		return receipt, nil, err
	}
	fields, err := g.bound.EventFromReceipt(receipt, "RegisteredBrandedToken")
	if err != nil {
		return receipt, nil, err
	}
	return receipt, fields, nil
}

// TokenByUUID resolves a registered token uuid to its contract address.
func (g *UtilityGateway) TokenByUUID(ctx context.Context, uuid common.Hash) (common.Address, error) {
	values, err := g.bound.Call(ctx, "token", uuid)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}
