package pipeline

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"valuebridge/internal/model"
)

// ValueLedger is the value-side gateway surface the workflows need.
type ValueLedger interface {
	ProcessStaking(ctx context.Context, stakingIntentHash common.Hash) (*types.Receipt, map[string]interface{}, error)
	ProcessUnstaking(ctx context.Context, redemptionIntentHash common.Hash) (*types.Receipt, map[string]interface{}, error)
	RegisterUtilityToken(ctx context.Context, symbol, name string, conversionRate *big.Int, conversionRateDecimals uint8, requester, token common.Address, checkUUID common.Hash) (*types.Receipt, map[string]interface{}, error)
}

// UtilityLedger is the utility-side gateway surface the workflows need.
type UtilityLedger interface {
	ProcessMinting(ctx context.Context, stakingIntentHash common.Hash) (*types.Receipt, map[string]interface{}, error)
	ProcessRedeeming(ctx context.Context, redemptionIntentHash common.Hash) (*types.Receipt, map[string]interface{}, error)
	RegisterBrandedToken(ctx context.Context, symbol, name string, conversionRate *big.Int, conversionRateDecimals uint8, requester, token common.Address, checkUUID common.Hash) (*types.Receipt, map[string]interface{}, error)
}

// TokenClaimer is the minted-token surface the claim stage needs.
type TokenClaimer interface {
	Claim(ctx context.Context, beneficiary common.Address) (*types.Receipt, error)
}

// ResolveTokenFunc resolves a registered token uuid to a claimable binding.
type ResolveTokenFunc func(ctx context.Context, uuid common.Hash) (TokenClaimer, error)

// StakeAndMintDeps wires the stake-and-mint workflow.
type StakeAndMintDeps struct {
	Value   ValueLedger
	Utility UtilityLedger
	Resolve ResolveTokenFunc
	// StakerAccount is the facilitator's own staking account; intents from
	// any other staker are rejected before stage 1.
	StakerAccount common.Address
}

// NewStakeAndMint builds the stake-and-mint workflow: advance the value-side
// escrow, mint on the utility side, then claim for the beneficiary. Intents
// have independent business keys, so runs may overlap freely.
func NewStakeAndMint(deps StakeAndMintDeps) Workflow {
	return Workflow{
		Name:     model.WorkflowStakeAndMint,
		Parallel: true,
		Guard: func(intent model.SettlementIntent) error {
			if intent.Staker != deps.StakerAccount {
				return fmt.Errorf("staker %s is not the facilitator account %s",
					intent.Staker.Hex(), deps.StakerAccount.Hex())
			}
			return nil
		},
		Stages: []Stage{
			processStakingStage{value: deps.Value},
			processMintingStage{utility: deps.Utility},
			claimStage{resolve: deps.Resolve},
		},
	}
}

type processStakingStage struct {
	value ValueLedger
}

func (processStakingStage) Name() string { return "processStaking" }

func (s processStakingStage) Execute(ctx context.Context, intent model.SettlementIntent, _ []model.StageResult) model.StageResult {
	receipt, fields, err := s.value.ProcessStaking(ctx, intent.Key)
	if err != nil {
		result := stageFailure(err)
		result.Receipt = receipt
		return result
	}
	return model.StageResult{Success: true, Receipt: receipt, Outputs: fields}
}

type processMintingStage struct {
	utility UtilityLedger
}

func (processMintingStage) Name() string { return "processMinting" }

func (s processMintingStage) Execute(ctx context.Context, intent model.SettlementIntent, _ []model.StageResult) model.StageResult {
	receipt, fields, err := s.utility.ProcessMinting(ctx, intent.Key)
	if err != nil {
		result := stageFailure(err)
		result.Receipt = receipt
		return result
	}
	return model.StageResult{Success: true, Receipt: receipt, Outputs: fields}
}

type claimStage struct {
	resolve ResolveTokenFunc
}

func (claimStage) Name() string { return "claim" }

func (s claimStage) Execute(ctx context.Context, intent model.SettlementIntent, _ []model.StageResult) model.StageResult {
	token, err := s.resolve(ctx, intent.UUID)
	if err != nil {
		return stageFailure(err)
	}
	receipt, err := token.Claim(ctx, intent.Beneficiary)
	if err != nil {
		result := stageFailure(err)
		result.Receipt = receipt
		return result
	}
	return model.StageResult{Success: true, Receipt: receipt}
}
