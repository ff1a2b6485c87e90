package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransferRequest is a branded-token transfer between two holders.
type TransferRequest struct {
	Symbol string         `json:"symbol"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

// TransferTicket is the immediate, optimistic response to a transfer: the
// sender's cached balance has been debited and the chain submission is in
// flight under the given correlation id.
type TransferTicket struct {
	TransactionUUID string `json:"transaction_uuid"`
}

// TransferOutcome is the terminal state of an asynchronous transfer.
type TransferOutcome struct {
	TransactionUUID string `json:"transaction_uuid"`
	TxHash          string `json:"tx_hash,omitempty"`
	Success         bool   `json:"success"`
	ErrCode         string `json:"err_code,omitempty"`
}
