package pipeline

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"valuebridge/internal/model"
)

// RedeemAndUnstakeDeps wires the redeem-and-unstake workflow.
type RedeemAndUnstakeDeps struct {
	Value   ValueLedger
	Utility UtilityLedger
	// RedeemerAccount is the facilitator's own redemption account; intents
	// from any other redeemer are rejected before stage 1.
	RedeemerAccount common.Address
}

// NewRedeemAndUnstake builds the redeem-and-unstake workflow: burn on the
// utility side, then release the value-side escrow. The workflow runs
// single-flight; a second concurrent intent reports busy.
func NewRedeemAndUnstake(deps RedeemAndUnstakeDeps) Workflow {
	return Workflow{
		Name:     model.WorkflowRedeemAndUnstake,
		Parallel: false,
		Guard: func(intent model.SettlementIntent) error {
			if intent.Redeemer != deps.RedeemerAccount {
				return fmt.Errorf("redeemer %s is not the facilitator account %s",
					intent.Redeemer.Hex(), deps.RedeemerAccount.Hex())
			}
			return nil
		},
		Stages: []Stage{
			processRedeemingStage{utility: deps.Utility},
			processUnstakingStage{value: deps.Value},
		},
	}
}

type processRedeemingStage struct {
	utility UtilityLedger
}

func (processRedeemingStage) Name() string { return "processRedeeming" }

func (s processRedeemingStage) Execute(ctx context.Context, intent model.SettlementIntent, _ []model.StageResult) model.StageResult {
	receipt, fields, err := s.utility.ProcessRedeeming(ctx, intent.Key)
	if err != nil {
		result := stageFailure(err)
		result.Receipt = receipt
		return result
	}
	return model.StageResult{Success: true, Receipt: receipt, Outputs: fields}
}

type processUnstakingStage struct {
	value ValueLedger
}

func (processUnstakingStage) Name() string { return "processUnstaking" }

func (s processUnstakingStage) Execute(ctx context.Context, intent model.SettlementIntent, _ []model.StageResult) model.StageResult {
	receipt, fields, err := s.value.ProcessUnstaking(ctx, intent.Key)
	if err != nil {
		result := stageFailure(err)
		result.Receipt = receipt
		return result
	}
	return model.StageResult{Success: true, Receipt: receipt, Outputs: fields}
}
