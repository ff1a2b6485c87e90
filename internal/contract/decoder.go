package contract

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"valuebridge/internal/model"
)

// EventDecoder turns raw chain logs into RawEvents using the gateway ABIs.
type EventDecoder struct {
	abis   []abi.ABI
	events map[common.Hash]decoderEntry
}

type decoderEntry struct {
	abi   abi.ABI
	event abi.Event
}

// NewEventDecoder builds a decoder over the given ABIs. Later ABIs win on
// topic collisions, which cannot happen for distinct event signatures.
func NewEventDecoder(abis ...abi.ABI) *EventDecoder {
	events := make(map[common.Hash]decoderEntry)
	for _, contractABI := range abis {
		for _, event := range contractABI.Events {
			events[event.ID] = decoderEntry{abi: contractABI, event: event}
		}
	}
	return &EventDecoder{abis: abis, events: events}
}

// NewTriggerDecoder builds a decoder for the workflow trigger events emitted
// by the value and utility gateways.
func NewTriggerDecoder() (*EventDecoder, error) {
	valueABI, err := ValueGatewayABI()
	if err != nil {
		return nil, err
	}
	utilityABI, err := UtilityGatewayABI()
	if err != nil {
		return nil, err
	}
	return NewEventDecoder(valueABI, utilityABI), nil
}

// Topics returns the topic0 hashes of the named events, for log filtering.
func (d *EventDecoder) Topics(names ...string) []common.Hash {
	topics := make([]common.Hash, 0, len(names))
	for topic, entry := range d.events {
		for _, name := range names {
			if entry.event.Name == name {
				topics = append(topics, topic)
			}
		}
	}
	return topics
}

// CanDecode checks whether the log's topic0 maps to a known event.
func (d *EventDecoder) CanDecode(log types.Log) bool {
	if len(log.Topics) == 0 {
		return false
	}
	_, ok := d.events[log.Topics[0]]
	return ok
}

// Decode converts a chain log into a RawEvent with ABI-decoded fields keyed
// by the contract's declared parameter names.
func (d *EventDecoder) Decode(log types.Log) (model.RawEvent, error) {
	if len(log.Topics) == 0 {
		return model.RawEvent{}, fmt.Errorf("log %s has no topics", log.TxHash.Hex())
	}
	entry, ok := d.events[log.Topics[0]]
	if !ok {
		return model.RawEvent{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	fields := make(map[string]interface{})
	if len(log.Data) > 0 {
		if err := entry.abi.UnpackIntoMap(fields, entry.event.Name, log.Data); err != nil {
			return model.RawEvent{}, fmt.Errorf("unpack %s: %w", entry.event.Name, err)
		}
	}

	indexed := indexedArguments(entry.event.Inputs)
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
			return model.RawEvent{}, fmt.Errorf("parse topics %s: %w", entry.event.Name, err)
		}
	}

	return model.RawEvent{
		ID:          model.EventID(log.TxHash.Hex(), log.Index),
		Name:        entry.event.Name,
		Address:     log.Address.Hex(),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    log.Index,
		Removed:     log.Removed,
		Fields:      fields,
	}, nil
}
