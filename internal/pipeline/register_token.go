package pipeline

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"valuebridge/internal/model"
)

// RegisterTokenDeps wires the register-branded-token workflow.
type RegisterTokenDeps struct {
	Value   ValueLedger
	Utility UtilityLedger
}

// NewRegisterToken builds the register-branded-token workflow: register the
// proposal on the utility-side registrar, then mirror it on the value side
// using the token address stage 1 returned. Single-flight, like
// redeem-and-unstake.
func NewRegisterToken(deps RegisterTokenDeps) Workflow {
	return Workflow{
		Name:     model.WorkflowRegisterToken,
		Parallel: false,
		Stages: []Stage{
			registerBrandedTokenStage{utility: deps.Utility},
			registerUtilityTokenStage{value: deps.Value},
		},
	}
}

type registerBrandedTokenStage struct {
	utility UtilityLedger
}

func (registerBrandedTokenStage) Name() string { return "registerBrandedToken" }

func (s registerBrandedTokenStage) Execute(ctx context.Context, intent model.SettlementIntent, _ []model.StageResult) model.StageResult {
	receipt, fields, err := s.utility.RegisterBrandedToken(ctx,
		intent.Symbol,
		intent.TokenName,
		intent.ConversionRate,
		intent.ConversionRateDecimals,
		intent.Requester,
		intent.Token,
		intent.UUID,
	)
	if err != nil {
		result := stageFailure(err)
		result.Receipt = receipt
		return result
	}
	return model.StageResult{Success: true, Receipt: receipt, Outputs: fields}
}

type registerUtilityTokenStage struct {
	value ValueLedger
}

func (registerUtilityTokenStage) Name() string { return "registerUtilityToken" }

func (s registerUtilityTokenStage) Execute(ctx context.Context, intent model.SettlementIntent, prior []model.StageResult) model.StageResult {
	// The value side registers the token address the utility-side
	// registrar actually accepted, not the proposed one.
	raw, ok := findOutput(prior, "_token")
	if !ok {
		return stageFailure(fmt.Errorf("registerBrandedToken outputs: %w: _token", errMissingOutput))
	}
	token, ok := raw.(common.Address)
	if !ok {
		return stageFailure(fmt.Errorf("registerBrandedToken output _token is %T", raw))
	}

	receipt, fields, err := s.value.RegisterUtilityToken(ctx,
		intent.Symbol,
		intent.TokenName,
		intent.ConversionRate,
		intent.ConversionRateDecimals,
		intent.Requester,
		token,
		intent.UUID,
	)
	if err != nil {
		result := stageFailure(err)
		result.Receipt = receipt
		return result
	}
	return model.StageResult{Success: true, Receipt: receipt, Outputs: fields}
}
