package watch

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"valuebridge/internal/contract"
	"valuebridge/internal/model"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 105, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch", "checkpoint.json")
	store := NewCheckpointStore(path, true)

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("empty load: ok=%v err=%v", ok, err)
	}

	if err := store.Save(42); err != nil {
		t.Fatalf("save: %v", err)
	}

	cp, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load after save: ok=%v err=%v", ok, err)
	}
	if cp.LastSeenBlock != 42 {
		t.Fatalf("last seen %d, want 42", cp.LastSeenBlock)
	}
}

func TestCheckpointDisabled(t *testing.T) {
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "never.json"), false)
	if err := store.Save(7); err != nil {
		t.Fatalf("disabled save: %v", err)
	}
	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("disabled load: ok=%v err=%v", ok, err)
	}
}

var watchedAddr = common.HexToAddress("0x0000000000000000000000000000000000000909")

// stakingConfirmedLog builds a chain log carrying a StakingIntentConfirmed
// event for the decoder under test.
func stakingConfirmedLog(t *testing.T, decoder *contract.EventDecoder, block uint64, index uint, removed bool) types.Log {
	t.Helper()
	topics := decoder.Topics(model.EventStakingIntentConfirmed)
	if len(topics) != 1 {
		t.Fatalf("trigger decoder knows %d StakingIntentConfirmed topics", len(topics))
	}

	staker := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	beneficiary := common.HexToAddress("0x0000000000000000000000000000000000000b01")
	uuid := common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000c01")

	data := make([]byte, 0, 96)
	data = append(data, common.LeftPadBytes(staker.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(beneficiary.Bytes(), 32)...)
	data = append(data, uuid.Bytes()...)

	return types.Log{
		Address:     watchedAddr,
		Topics:      []common.Hash{topics[0], common.HexToHash("0xabc")},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash("0xfeed"),
		Index:       index,
		Removed:     removed,
	}
}

type fakeSubscription struct {
	errs chan error
}

func (s *fakeSubscription) Unsubscribe()      {}
func (s *fakeSubscription) Err() <-chan error { return s.errs }

type fakeSource struct {
	mu         sync.Mutex
	latest     uint64
	logs       []types.Log
	filterFrom []uint64
	subs       int
	liveSink   chan<- types.Log
	subErrs    chan error
	subscribed chan struct{}
}

func (s *fakeSource) LatestBlockNumber(context.Context) (uint64, error) {
	return s.latest, nil
}

func (s *fakeSource) FilterLogs(_ context.Context, fromBlock, toBlock uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterFrom = append(s.filterFrom, fromBlock)
	out := make([]types.Log, 0)
	for _, log := range s.logs {
		if log.BlockNumber >= fromBlock && log.BlockNumber <= toBlock {
			out = append(out, log)
		}
	}
	return out, nil
}

func (s *fakeSource) SubscribeLogs(_ context.Context, _ []common.Address, _ []common.Hash, sink chan<- types.Log) (ethereum.Subscription, error) {
	s.mu.Lock()
	s.subs++
	s.liveSink = sink
	s.subErrs = make(chan error, 1)
	s.mu.Unlock()
	if s.subscribed != nil {
		s.subscribed <- struct{}{}
	}
	return &fakeSubscription{errs: s.subErrs}, nil
}

func (s *fakeSource) subscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.RawEvent
	errs   []error
	gotOne chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{gotOne: make(chan struct{}, 16)}
}

func (r *recordingSink) OnEvent(ev model.RawEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.gotOne <- struct{}{}
}

func (r *recordingSink) OnSubscriptionError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recordingSink) all() []model.RawEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.RawEvent, len(r.events))
	copy(out, r.events)
	return out
}

func triggerDecoder(t *testing.T) *contract.EventDecoder {
	t.Helper()
	decoder, err := contract.NewTriggerDecoder()
	if err != nil {
		t.Fatalf("trigger decoder: %v", err)
	}
	return decoder
}

func TestBackfillForwardsAndDeduplicates(t *testing.T) {
	decoder := triggerDecoder(t)
	ev := stakingConfirmedLog(t, decoder, 3, 0, false)
	alien := types.Log{
		Address:     watchedAddr,
		Topics:      []common.Hash{common.HexToHash("0xdead")},
		BlockNumber: 4,
		TxHash:      common.HexToHash("0xbeef"),
	}

	source := &fakeSource{latest: 10, logs: []types.Log{ev, alien, ev}}
	sink := newRecordingSink()
	w := NewWatcher(RunConfig{
		Addresses: []common.Address{watchedAddr},
		BatchSize: 100,
	}, source, decoder, sink, nil)

	if err := w.backfill(context.Background()); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("forwarded %d events, want 1", len(events))
	}
	got := events[0]
	if got.Name != model.EventStakingIntentConfirmed {
		t.Fatalf("event name %s", got.Name)
	}
	if got.ID != model.EventID(ev.TxHash.Hex(), ev.Index) {
		t.Fatalf("event id %s", got.ID)
	}
	if _, err := got.FieldAddress("_staker"); err != nil {
		t.Fatalf("decoded fields missing staker: %v", err)
	}
	if hash, err := got.FieldHash("_stakingIntentHash"); err != nil || hash != ev.Topics[1] {
		t.Fatalf("indexed field: hash=%s err=%v", hash.Hex(), err)
	}
}

func TestBackfillResumesFromCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := NewCheckpointStore(path, true).Save(5); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	decoder := triggerDecoder(t)
	source := &fakeSource{latest: 10}
	w := NewWatcher(RunConfig{
		Addresses:         []common.Address{watchedAddr},
		BatchSize:         100,
		CheckpointPath:    path,
		CheckpointEnabled: true,
	}, source, decoder, newRecordingSink(), nil)

	if err := w.backfill(context.Background()); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if len(source.filterFrom) != 1 || source.filterFrom[0] != 6 {
		t.Fatalf("filter from %v, want [6]", source.filterFrom)
	}

	// The batch advances the checkpoint to the latest block.
	cp, ok, err := NewCheckpointStore(path, true).Load()
	if err != nil || !ok {
		t.Fatalf("reload checkpoint: ok=%v err=%v", ok, err)
	}
	if cp.LastSeenBlock != 10 {
		t.Fatalf("checkpoint %d, want 10", cp.LastSeenBlock)
	}
}

func TestFollowForwardsLiveAndResubscribes(t *testing.T) {
	decoder := triggerDecoder(t)
	source := &fakeSource{latest: 0, subscribed: make(chan struct{}, 4)}
	sink := newRecordingSink()
	w := NewWatcher(RunConfig{
		Addresses:    []common.Address{watchedAddr},
		BatchSize:    100,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}, source, decoder, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- w.follow(ctx) }()

	<-source.subscribed
	source.liveSink <- stakingConfirmedLog(t, decoder, 12, 1, false)
	select {
	case <-sink.gotOne:
	case <-time.After(2 * time.Second):
		t.Fatalf("live event not forwarded")
	}

	// A dropped subscription is reported and reopened.
	source.subErrs <- errors.New("connection reset")
	select {
	case <-source.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatalf("no resubscription after failure")
	}
	if source.subscriptionCount() != 2 {
		t.Fatalf("subscriptions %d, want 2", source.subscriptionCount())
	}
	sink.mu.Lock()
	reported := len(sink.errs)
	sink.mu.Unlock()
	if reported != 1 {
		t.Fatalf("subscription errors reported %d, want 1", reported)
	}

	cancel()
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("follow returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("follow did not stop on cancel")
	}
}

func TestLiveRetractionDoesNotAdvanceCheckpoint(t *testing.T) {
	decoder := triggerDecoder(t)
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	source := &fakeSource{latest: 0, subscribed: make(chan struct{}, 1)}
	sink := newRecordingSink()
	w := NewWatcher(RunConfig{
		Addresses:         []common.Address{watchedAddr},
		BatchSize:         100,
		CheckpointPath:    path,
		CheckpointEnabled: true,
	}, source, decoder, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.follow(ctx) }()
	<-source.subscribed

	source.liveSink <- stakingConfirmedLog(t, decoder, 12, 1, false)
	<-sink.gotOne
	// A retraction at a later block must not move the checkpoint past
	// blocks whose replacement logs were never seen.
	source.liveSink <- stakingConfirmedLog(t, decoder, 15, 1, true)
	select {
	case <-sink.gotOne:
	case <-time.After(2 * time.Second):
		t.Fatalf("retraction not forwarded")
	}

	cp, ok, err := NewCheckpointStore(path, true).Load()
	if err != nil || !ok {
		t.Fatalf("reload checkpoint: ok=%v err=%v", ok, err)
	}
	if cp.LastSeenBlock != 12 {
		t.Fatalf("checkpoint %d, want 12", cp.LastSeenBlock)
	}
}

func TestLiveRetractionReachesSink(t *testing.T) {
	decoder := triggerDecoder(t)
	source := &fakeSource{latest: 0, subscribed: make(chan struct{}, 1)}
	sink := newRecordingSink()
	w := NewWatcher(RunConfig{
		Addresses: []common.Address{watchedAddr},
		BatchSize: 100,
	}, source, decoder, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.follow(ctx) }()
	<-source.subscribed

	source.liveSink <- stakingConfirmedLog(t, decoder, 12, 1, false)
	<-sink.gotOne
	source.liveSink <- stakingConfirmedLog(t, decoder, 12, 1, true)
	select {
	case <-sink.gotOne:
	case <-time.After(2 * time.Second):
		t.Fatalf("retraction not forwarded")
	}

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("forwarded %d events, want 2", len(events))
	}
	if events[0].ID != events[1].ID {
		t.Fatalf("retraction id %s differs from original %s", events[1].ID, events[0].ID)
	}
	if events[0].Removed || !events[1].Removed {
		t.Fatalf("removed flags: %v %v", events[0].Removed, events[1].Removed)
	}
}
