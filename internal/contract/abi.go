package contract

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const valueGatewayABIJSON = `[
  {
    "inputs": [{"internalType": "bytes32", "name": "_stakingIntentHash", "type": "bytes32"}],
    "name": "processStaking",
    "outputs": [{"internalType": "address", "name": "stakeAddress", "type": "address"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "_redemptionIntentHash", "type": "bytes32"}],
    "name": "processUnstaking",
    "outputs": [{"internalType": "address", "name": "stakeAddress", "type": "address"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "string", "name": "_symbol", "type": "string"},
      {"internalType": "string", "name": "_name", "type": "string"},
      {"internalType": "uint256", "name": "_conversionRate", "type": "uint256"},
      {"internalType": "uint8", "name": "_conversionRateDecimals", "type": "uint8"},
      {"internalType": "address", "name": "_requester", "type": "address"},
      {"internalType": "address", "name": "_token", "type": "address"},
      {"internalType": "bytes32", "name": "_checkUuid", "type": "bytes32"}
    ],
    "name": "registerUtilityToken",
    "outputs": [{"internalType": "bytes32", "name": "uuid", "type": "bytes32"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "_stakingIntentHash", "type": "bytes32"},
      {"indexed": false, "internalType": "bytes32", "name": "_uuid", "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "_staker", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "_amountST", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "_amountUT", "type": "uint256"}
    ],
    "name": "ProcessedStake",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "_redemptionIntentHash", "type": "bytes32"},
      {"indexed": false, "internalType": "bytes32", "name": "_uuid", "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "_redeemer", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "_amountST", "type": "uint256"}
    ],
    "name": "ProcessedUnstake",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "_uuid", "type": "bytes32"},
      {"indexed": false, "internalType": "string", "name": "_symbol", "type": "string"},
      {"indexed": false, "internalType": "address", "name": "_requester", "type": "address"}
    ],
    "name": "UtilityTokenRegistered",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "_redemptionIntentHash", "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "_redeemer", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "_beneficiary", "type": "address"},
      {"indexed": false, "internalType": "bytes32", "name": "_uuid", "type": "bytes32"}
    ],
    "name": "RedemptionIntentConfirmed",
    "type": "event"
  }
]`

const utilityGatewayABIJSON = `[
  {
    "inputs": [{"internalType": "bytes32", "name": "_stakingIntentHash", "type": "bytes32"}],
    "name": "processMinting",
    "outputs": [{"internalType": "address", "name": "tokenAddress", "type": "address"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "_redemptionIntentHash", "type": "bytes32"}],
    "name": "processRedeeming",
    "outputs": [{"internalType": "address", "name": "tokenAddress", "type": "address"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "string", "name": "_symbol", "type": "string"},
      {"internalType": "string", "name": "_name", "type": "string"},
      {"internalType": "uint256", "name": "_conversionRate", "type": "uint256"},
      {"internalType": "uint8", "name": "_conversionRateDecimals", "type": "uint8"},
      {"internalType": "address", "name": "_requester", "type": "address"},
      {"internalType": "address", "name": "_token", "type": "address"},
      {"internalType": "bytes32", "name": "_checkUuid", "type": "bytes32"}
    ],
    "name": "registerBrandedToken",
    "outputs": [{"internalType": "bytes32", "name": "registeredUuid", "type": "bytes32"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "_uuid", "type": "bytes32"}],
    "name": "token",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "_stakingIntentHash", "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "_staker", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "_beneficiary", "type": "address"},
      {"indexed": false, "internalType": "bytes32", "name": "_uuid", "type": "bytes32"}
    ],
    "name": "StakingIntentConfirmed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "string", "name": "_symbol", "type": "string"},
      {"indexed": false, "internalType": "string", "name": "_name", "type": "string"},
      {"indexed": false, "internalType": "uint256", "name": "_conversionRate", "type": "uint256"},
      {"indexed": false, "internalType": "uint8", "name": "_conversionRateDecimals", "type": "uint8"},
      {"indexed": true, "internalType": "address", "name": "_requester", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "_token", "type": "address"},
      {"indexed": false, "internalType": "bytes32", "name": "_uuid", "type": "bytes32"}
    ],
    "name": "ProposedBrandedToken",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "_stakingIntentHash", "type": "bytes32"},
      {"indexed": false, "internalType": "bytes32", "name": "_uuid", "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "_token", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "_beneficiary", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "_amount", "type": "uint256"}
    ],
    "name": "ProcessedMint",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "_redemptionIntentHash", "type": "bytes32"},
      {"indexed": false, "internalType": "bytes32", "name": "_uuid", "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "_redeemer", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "_amount", "type": "uint256"}
    ],
    "name": "ProcessedRedemption",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "_uuid", "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "_token", "type": "address"},
      {"indexed": false, "internalType": "string", "name": "_symbol", "type": "string"},
      {"indexed": false, "internalType": "address", "name": "_requester", "type": "address"}
    ],
    "name": "RegisteredBrandedToken",
    "type": "event"
  }
]`

const brandedTokenABIJSON = `[
  {
    "inputs": [{"internalType": "address", "name": "_beneficiary", "type": "address"}],
    "name": "claim",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "_to", "type": "address"},
      {"internalType": "uint256", "name": "_value", "type": "uint256"}
    ],
    "name": "transfer",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "_owner", "type": "address"}],
    "name": "balanceOf",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "_beneficiary", "type": "address"}],
    "name": "unclaimed",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "symbol",
    "outputs": [{"internalType": "string", "name": "", "type": "string"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const ownedABIJSON = `[
  {
    "inputs": [],
    "name": "getOwner",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "_proposedOwner", "type": "address"}],
    "name": "initiateOwnershipTransfer",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getOpsAddress",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "_opsAddress", "type": "address"}],
    "name": "setOpsAddress",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	valueGatewayABI       abi.ABI
	valueGatewayABIOnce   sync.Once
	valueGatewayABIErr    error
	utilityGatewayABI     abi.ABI
	utilityGatewayABIOnce sync.Once
	utilityGatewayABIErr  error
	brandedTokenABI       abi.ABI
	brandedTokenABIOnce   sync.Once
	brandedTokenABIErr    error
	ownedABI              abi.ABI
	ownedABIOnce          sync.Once
	ownedABIErr           error
)

// ValueGatewayABI returns the parsed value-ledger gateway ABI.
func ValueGatewayABI() (abi.ABI, error) {
	valueGatewayABIOnce.Do(func() {
		valueGatewayABI, valueGatewayABIErr = abi.JSON(strings.NewReader(valueGatewayABIJSON))
	})
	return valueGatewayABI, valueGatewayABIErr
}

// UtilityGatewayABI returns the parsed utility-ledger gateway ABI.
func UtilityGatewayABI() (abi.ABI, error) {
	utilityGatewayABIOnce.Do(func() {
		utilityGatewayABI, utilityGatewayABIErr = abi.JSON(strings.NewReader(utilityGatewayABIJSON))
	})
	return utilityGatewayABI, utilityGatewayABIErr
}

// BrandedTokenABI returns the parsed branded token ABI.
func BrandedTokenABI() (abi.ABI, error) {
	brandedTokenABIOnce.Do(func() {
		brandedTokenABI, brandedTokenABIErr = abi.JSON(strings.NewReader(brandedTokenABIJSON))
	})
	return brandedTokenABI, brandedTokenABIErr
}

// OwnedABI returns the parsed owned/ops-managed ABI fragment shared by all
// admin-controlled contracts.
func OwnedABI() (abi.ABI, error) {
	ownedABIOnce.Do(func() {
		ownedABI, ownedABIErr = abi.JSON(strings.NewReader(ownedABIJSON))
	})
	return ownedABI, ownedABIErr
}
