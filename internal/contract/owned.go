package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"valuebridge/internal/chain"
)

// Ownable is the ownership capability of an admin-controlled contract.
type Ownable interface {
	GetOwner(ctx context.Context) (common.Address, error)
	InitiateOwnershipTransfer(ctx context.Context, proposedOwner common.Address) (*types.Receipt, error)
}

// OpsManaged is the operations-address capability layered on ownership.
type OpsManaged interface {
	Ownable
	GetOpsAddress(ctx context.Context) (common.Address, error)
	SetOpsAddress(ctx context.Context, ops common.Address) (*types.Receipt, error)
}

// Admin implements Ownable and OpsManaged for any admin-controlled contract
// address. Concrete bindings compose one instead of inheriting from it.
type Admin struct {
	bound *BoundContract
}

// NewAdmin builds the admin capability for a deployed contract.
func NewAdmin(gw chain.Gateway, address common.Address, opts TxOpts, logger *zap.Logger) (*Admin, error) {
	parsed, err := OwnedABI()
	if err != nil {
		return nil, fmt.Errorf("parse owned abi: %w", err)
	}
	return &Admin{bound: NewBoundContract(gw, address, parsed, opts, logger)}, nil
}

func (a *Admin) GetOwner(ctx context.Context) (common.Address, error) {
	values, err := a.bound.Call(ctx, "getOwner")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

func (a *Admin) InitiateOwnershipTransfer(ctx context.Context, proposedOwner common.Address) (*types.Receipt, error) {
	return a.bound.Transact(ctx, "initiateOwnershipTransfer", proposedOwner)
}

func (a *Admin) GetOpsAddress(ctx context.Context) (common.Address, error) {
	values, err := a.bound.Call(ctx, "getOpsAddress")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

func (a *Admin) SetOpsAddress(ctx context.Context, ops common.Address) (*types.Receipt, error) {
	return a.bound.Transact(ctx, "setOpsAddress", ops)
}

func asAddress(v interface{}) (common.Address, error) {
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("value is not an address (%T)", v)
	}
	return addr, nil
}
