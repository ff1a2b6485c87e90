package model

// Trigger event names, matching the contract ABI declarations.
const (
	EventStakingIntentConfirmed    = "StakingIntentConfirmed"
	EventRedemptionIntentConfirmed = "RedemptionIntentConfirmed"
	EventProposedBrandedToken      = "ProposedBrandedToken"
)
