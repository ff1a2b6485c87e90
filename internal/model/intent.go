package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Workflow names. Each one maps to a fixed stage sequence.
const (
	WorkflowStakeAndMint     = "stake_and_mint"
	WorkflowRedeemAndUnstake = "redeem_and_unstake"
	WorkflowRegisterToken    = "register_branded_token"
)

// SettlementIntent is the confirmed unit of work a settlement run operates
// on. It is built once from a dispatched event and passed by value through
// the stage sequence; stages never mutate it.
type SettlementIntent struct {
	Workflow string `json:"workflow"`

	// Key is the business key the run is idempotent on: the staking or
	// redemption intent hash, or the proposed token uuid.
	Key common.Hash `json:"key"`

	Staker      common.Address `json:"staker,omitempty"`
	Redeemer    common.Address `json:"redeemer,omitempty"`
	Beneficiary common.Address `json:"beneficiary,omitempty"`
	Requester   common.Address `json:"requester,omitempty"`

	UUID common.Hash `json:"uuid,omitempty"`

	// Token proposal parameters, set for register-branded-token only.
	Symbol                 string         `json:"symbol,omitempty"`
	TokenName              string         `json:"token_name,omitempty"`
	ConversionRate         *big.Int       `json:"conversion_rate,omitempty"`
	ConversionRateDecimals uint8          `json:"conversion_rate_decimals,omitempty"`
	Token                  common.Address `json:"token,omitempty"`
}
