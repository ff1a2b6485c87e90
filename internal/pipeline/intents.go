package pipeline

import (
	"fmt"

	"valuebridge/internal/model"
)

// IntentFromEvent builds the settlement intent for a dispatched trigger
// event, mapping the event name onto its workflow.
func IntentFromEvent(ev model.RawEvent) (model.SettlementIntent, error) {
	switch ev.Name {
	case model.EventStakingIntentConfirmed:
		return stakeAndMintIntent(ev)
	case model.EventRedemptionIntentConfirmed:
		return redeemAndUnstakeIntent(ev)
	case model.EventProposedBrandedToken:
		return registerTokenIntent(ev)
	default:
		return model.SettlementIntent{}, fmt.Errorf("event %s triggers no workflow", ev.Name)
	}
}

func stakeAndMintIntent(ev model.RawEvent) (model.SettlementIntent, error) {
	hash, err := ev.FieldHash("_stakingIntentHash")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	staker, err := ev.FieldAddress("_staker")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	beneficiary, err := ev.FieldAddress("_beneficiary")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	uuid, err := ev.FieldHash("_uuid")
	if err != nil {
		return model.SettlementIntent{}, err
	}

	return model.SettlementIntent{
		Workflow:    model.WorkflowStakeAndMint,
		Key:         hash,
		Staker:      staker,
		Beneficiary: beneficiary,
		UUID:        uuid,
	}, nil
}

func redeemAndUnstakeIntent(ev model.RawEvent) (model.SettlementIntent, error) {
	hash, err := ev.FieldHash("_redemptionIntentHash")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	redeemer, err := ev.FieldAddress("_redeemer")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	beneficiary, err := ev.FieldAddress("_beneficiary")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	uuid, err := ev.FieldHash("_uuid")
	if err != nil {
		return model.SettlementIntent{}, err
	}

	return model.SettlementIntent{
		Workflow:    model.WorkflowRedeemAndUnstake,
		Key:         hash,
		Redeemer:    redeemer,
		Beneficiary: beneficiary,
		UUID:        uuid,
	}, nil
}

func registerTokenIntent(ev model.RawEvent) (model.SettlementIntent, error) {
	symbol, err := ev.FieldString("_symbol")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	name, err := ev.FieldString("_name")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	conversionRate, err := ev.FieldBig("_conversionRate")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	conversionRateDecimals, err := ev.FieldUint8("_conversionRateDecimals")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	requester, err := ev.FieldAddress("_requester")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	token, err := ev.FieldAddress("_token")
	if err != nil {
		return model.SettlementIntent{}, err
	}
	uuid, err := ev.FieldHash("_uuid")
	if err != nil {
		return model.SettlementIntent{}, err
	}

	return model.SettlementIntent{
		Workflow:               model.WorkflowRegisterToken,
		Key:                    uuid,
		Requester:              requester,
		Token:                  token,
		UUID:                   uuid,
		Symbol:                 symbol,
		TokenName:              name,
		ConversionRate:         conversionRate,
		ConversionRateDecimals: conversionRateDecimals,
	}, nil
}
