package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RawEvent is a decoded contract event as delivered by the chain gateway.
// The same ID may be delivered more than once: a reorg can replace the event
// in a different block (Removed=false, new payload) or retract it entirely
// (Removed=true).
type RawEvent struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Address     string                 `json:"address"`
	BlockNumber uint64                 `json:"block_number"`
	TxHash      string                 `json:"tx_hash"`
	LogIndex    uint                   `json:"log_index"`
	Removed     bool                   `json:"removed"`
	Fields      map[string]interface{} `json:"fields"`
}

// EventID builds the reorg-stable identifier for a log entry. The block hash
// is deliberately excluded so a replaced event keeps the same ID.
func EventID(txHash string, logIndex uint) string {
	return fmt.Sprintf("%s-%d", txHash, logIndex)
}

// FieldHash returns a 32-byte field by its ABI parameter name.
func (e RawEvent) FieldHash(name string) (common.Hash, error) {
	v, ok := e.Fields[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("event %s: missing field %s", e.Name, name)
	}
	switch typed := v.(type) {
	case common.Hash:
		return typed, nil
	case [32]byte:
		return common.BytesToHash(typed[:]), nil
	case []byte:
		return common.BytesToHash(typed), nil
	case string:
		return common.HexToHash(typed), nil
	default:
		return common.Hash{}, fmt.Errorf("event %s: field %s is not a hash (%T)", e.Name, name, v)
	}
}

// FieldAddress returns an address field by its ABI parameter name.
func (e RawEvent) FieldAddress(name string) (common.Address, error) {
	v, ok := e.Fields[name]
	if !ok {
		return common.Address{}, fmt.Errorf("event %s: missing field %s", e.Name, name)
	}
	switch typed := v.(type) {
	case common.Address:
		return typed, nil
	case string:
		if !common.IsHexAddress(typed) {
			return common.Address{}, fmt.Errorf("event %s: field %s is not an address: %s", e.Name, name, typed)
		}
		return common.HexToAddress(typed), nil
	default:
		return common.Address{}, fmt.Errorf("event %s: field %s is not an address (%T)", e.Name, name, v)
	}
}

// FieldBig returns an integer field by its ABI parameter name.
func (e RawEvent) FieldBig(name string) (*big.Int, error) {
	v, ok := e.Fields[name]
	if !ok {
		return nil, fmt.Errorf("event %s: missing field %s", e.Name, name)
	}
	switch typed := v.(type) {
	case *big.Int:
		return typed, nil
	case uint8:
		return big.NewInt(int64(typed)), nil
	case uint64:
		return new(big.Int).SetUint64(typed), nil
	case string:
		out, ok := new(big.Int).SetString(typed, 10)
		if !ok {
			return nil, fmt.Errorf("event %s: field %s is not an integer: %s", e.Name, name, typed)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("event %s: field %s is not an integer (%T)", e.Name, name, v)
	}
}

// FieldString returns a string field by its ABI parameter name.
func (e RawEvent) FieldString(name string) (string, error) {
	v, ok := e.Fields[name]
	if !ok {
		return "", fmt.Errorf("event %s: missing field %s", e.Name, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("event %s: field %s is not a string (%T)", e.Name, name, v)
	}
	return s, nil
}

// FieldUint8 returns a uint8 field by its ABI parameter name.
func (e RawEvent) FieldUint8(name string) (uint8, error) {
	v, ok := e.Fields[name]
	if !ok {
		return 0, fmt.Errorf("event %s: missing field %s", e.Name, name)
	}
	switch typed := v.(type) {
	case uint8:
		return typed, nil
	case *big.Int:
		if !typed.IsUint64() || typed.Uint64() > 255 {
			return 0, fmt.Errorf("event %s: field %s out of uint8 range", e.Name, name)
		}
		return uint8(typed.Uint64()), nil
	default:
		return 0, fmt.Errorf("event %s: field %s is not a uint8 (%T)", e.Name, name, v)
	}
}
