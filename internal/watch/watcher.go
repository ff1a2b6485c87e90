package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"valuebridge/internal/contract"
	"valuebridge/internal/model"
)

// Source is the log surface of one ledger.
type Source interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, sink chan<- types.Log) (ethereum.Subscription, error)
}

// Sink receives decoded events and subscription interruptions. The
// confirmation queue implements it.
type Sink interface {
	OnEvent(ev model.RawEvent)
	OnSubscriptionError(err error)
}

// RunConfig holds runtime settings for one ledger watcher.
type RunConfig struct {
	// FromBlock is where backfill starts on a cold start; a saved
	// checkpoint advances past it.
	FromBlock         uint64
	Addresses         []common.Address
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	// Backlog sizes the live subscription channel.
	Backlog int
}

// Watcher tails one ledger's gateway contracts: it backfills missed trigger
// events from the checkpoint, then follows the live log subscription,
// decoding each log and handing it to the sink.
type Watcher struct {
	cfg        RunConfig
	source     Source
	decoder    *contract.EventDecoder
	sink       Sink
	logger     *zap.Logger
	topics     []common.Hash
	checkpoint *CheckpointStore
	seen       map[string]struct{}
}

// NewWatcher builds a watcher with its dependencies. The decoder determines
// which events are forwarded; everything else is dropped.
func NewWatcher(cfg RunConfig, source Source, decoder *contract.EventDecoder, sink Sink, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = 256
	}
	return &Watcher{
		cfg:        cfg,
		source:     source,
		decoder:    decoder,
		sink:       sink,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		seen:       make(map[string]struct{}),
	}
}

// Run backfills then follows the live subscription until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.source == nil {
		return fmt.Errorf("source is nil")
	}
	if w.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if len(w.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}

	if err := w.backfill(ctx); err != nil {
		return err
	}
	return w.follow(ctx)
}

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange cuts an inclusive block range into batches of at most
// batchSize blocks, sized to what FilterLogs accepts in one call.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d precedes from block %d", to, from)
	}

	var ranges []BlockRange
	for start := from; ; start += batchSize {
		end := start + batchSize - 1
		if end >= to || end < start {
			end = to
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
	}
}

func (w *Watcher) backfill(ctx context.Context) error {
	from := w.cfg.FromBlock
	cp, ok, err := w.checkpoint.Load()
	if err != nil {
		return err
	}
	if ok && cp.LastSeenBlock >= from {
		from = cp.LastSeenBlock + 1
		w.logger.Info("resume from checkpoint", zap.Uint64("last_seen", cp.LastSeenBlock), zap.Uint64("from", from))
	}

	latest, err := w.source.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	if from > latest {
		w.logger.Info("nothing to backfill", zap.Uint64("from", from), zap.Uint64("latest", latest))
		return nil
	}

	ranges, err := SplitRange(from, latest, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logs, err := w.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		forwarded := 0
		for _, log := range logs {
			if w.forwardBackfill(log) {
				forwarded++
			}
		}

		if err := w.checkpoint.Save(blockRange.To); err != nil {
			return err
		}
		w.logger.Info("backfill batch complete",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("events", forwarded),
		)
	}

	return nil
}

func (w *Watcher) follow(ctx context.Context) error {
	logs := make(chan types.Log, w.cfg.Backlog)

	var sub ethereum.Subscription
	subscribe := func(ctx context.Context) error {
		var err error
		sub, err = w.source.SubscribeLogs(ctx, w.cfg.Addresses, w.topicFilter(), logs)
		if err != nil {
			w.logger.Warn("subscribe failed", zap.Error(err))
		}
		return err
	}
	if err := withRetry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, subscribe); err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	defer func() { sub.Unsubscribe() }()

	w.logger.Info("following live logs", zap.Int("addresses", len(w.cfg.Addresses)))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				return nil
			}
			w.sink.OnSubscriptionError(err)
			sub.Unsubscribe()
			if retryErr := withRetry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, subscribe); retryErr != nil {
				return fmt.Errorf("resubscribe logs: %w", retryErr)
			}
		case log := <-logs:
			w.forward(log)
			if log.Removed {
				// A retraction at block N says nothing about having
				// seen N's replacement logs; advancing the checkpoint
				// here would skip them after a restart.
				continue
			}
			if err := w.checkpoint.Save(log.BlockNumber); err != nil {
				w.logger.Warn("checkpoint save failed", zap.Error(err))
			}
		}
	}
}

// forwardBackfill forwards a backfilled log, dropping exact duplicates from
// overlapping ranges. Only backfill dedups: a live redelivery of a known id
// is how a reorg replaces or retracts an event, and must reach the sink.
func (w *Watcher) forwardBackfill(log types.Log) bool {
	ev, ok := w.decode(log)
	if !ok {
		return false
	}
	if _, dup := w.seen[ev.ID]; dup {
		return false
	}
	w.seen[ev.ID] = struct{}{}
	w.sink.OnEvent(ev)
	return true
}

func (w *Watcher) forward(log types.Log) bool {
	ev, ok := w.decode(log)
	if !ok {
		return false
	}
	w.sink.OnEvent(ev)
	return true
}

func (w *Watcher) decode(log types.Log) (model.RawEvent, bool) {
	if !w.decoder.CanDecode(log) {
		return model.RawEvent{}, false
	}
	ev, err := w.decoder.Decode(log)
	if err != nil {
		w.logger.Warn("undecodable log",
			zap.String("tx_hash", log.TxHash.Hex()),
			zap.Uint("log_index", log.Index),
			zap.Error(err),
		)
		return model.RawEvent{}, false
	}
	return ev, true
}

func (w *Watcher) topicFilter() []common.Hash {
	if w.topics == nil {
		w.topics = w.decoder.Topics(
			model.EventStakingIntentConfirmed,
			model.EventRedemptionIntentConfirmed,
			model.EventProposedBrandedToken,
		)
	}
	return w.topics
}

func (w *Watcher) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = w.source.FilterLogs(ctx, fromBlock, toBlock, w.cfg.Addresses, w.topicFilter())
		if err != nil {
			w.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}
