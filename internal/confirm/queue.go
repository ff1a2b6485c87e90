package confirm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"valuebridge/internal/metrics"
	"valuebridge/internal/model"
	"valuebridge/internal/notify"
)

// Processor is the async function invoked once per confirmed event.
type Processor func(ctx context.Context, ev model.RawEvent) error

// Config holds queue settings.
type Config struct {
	// Delay is the confirmation grace period between first (or latest)
	// sighting of an event id and its dispatch.
	Delay time.Duration
	// Buffer is the inbound channel capacity.
	Buffer int
}

// Queue shields the settlement pipeline from chain-reorganization noise: it
// de-duplicates events by id, waits out a confirmation delay, discards
// retracted events, and guarantees at most one pending dispatch per id.
//
// All state is owned by the single goroutine running Run; OnEvent and
// OnSubscriptionError only hand messages to it.
type Queue struct {
	cfg       Config
	processor Processor
	notifier  notify.Notifier
	logger    *zap.Logger
	metrics   *metrics.Metrics

	events chan model.RawEvent
	errs   chan error
	fired  chan firing
	done   chan string
	quit   chan struct{}

	pending map[string]*pendingIntent
	// seq is bumped on every schedule so a firing can never match a
	// pendingIntent created after it, even for the same id. Owned by
	// the Run goroutine.
	seq uint64
}

type pendingIntent struct {
	latest     model.RawEvent
	timer      *time.Timer
	gen        uint64
	dispatched bool
}

type firing struct {
	id  string
	gen uint64
}

// NewQueue builds a confirmation queue. SetProcessor must be called before
// Run.
func NewQueue(cfg Config, notifier notify.Notifier, m *metrics.Metrics, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 30 * time.Second
	}
	return &Queue{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		events:   make(chan model.RawEvent, cfg.Buffer),
		errs:     make(chan error, 16),
		fired:    make(chan firing, cfg.Buffer),
		done:     make(chan string, cfg.Buffer),
		quit:     make(chan struct{}),
		pending:  make(map[string]*pendingIntent),
	}
}

// SetProcessor registers the dispatch target.
func (q *Queue) SetProcessor(fn Processor) {
	q.processor = fn
}

// OnEvent accepts a raw event from the subscription. Safe to call from any
// goroutine; delivery order into the dispatcher is preserved per caller.
func (q *Queue) OnEvent(ev model.RawEvent) {
	select {
	case q.events <- ev:
	case <-q.quit:
	}
}

// OnSubscriptionError reports a subscription failure. The subscription
// itself is supervised by its owner; the queue only logs and notifies.
func (q *Queue) OnSubscriptionError(err error) {
	select {
	case q.errs <- err:
	case <-q.quit:
	}
}

// Run consumes messages until the context is cancelled. It must be called
// exactly once.
func (q *Queue) Run(ctx context.Context) error {
	if q.processor == nil {
		return fmt.Errorf("confirm: processor not set")
	}
	defer close(q.quit)
	defer q.stopAllTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-q.events:
			q.handleEvent(ev)
		case err := <-q.errs:
			q.logger.Warn("subscription error", zap.Error(err))
			q.notifier.Publish(notify.Notification{
				Topics:    []string{"confirm.subscription"},
				Publisher: "confirm",
				Kind:      notify.KindError,
				Payload:   map[string]interface{}{"error": err.Error()},
			})
		case f := <-q.fired:
			q.dispatch(ctx, f)
		case id := <-q.done:
			delete(q.pending, id)
		}
	}
}

func (q *Queue) handleEvent(ev model.RawEvent) {
	p, known := q.pending[ev.ID]

	if known && p.dispatched {
		// Dispatch already handed to the processor; it cannot be
		// recalled. The id frees up once the processor completes.
		q.logger.Debug("event for in-flight id ignored",
			zap.String("id", ev.ID), zap.Bool("removed", ev.Removed))
		return
	}

	switch {
	case !known && ev.Removed:
		// Retraction for an id we never queued.
		q.logger.Debug("retraction for unknown id", zap.String("id", ev.ID))

	case !known:
		q.metrics.EventsReceived.WithLabelValues(ev.Name).Inc()
		p = &pendingIntent{latest: ev}
		q.pending[ev.ID] = p
		q.schedule(ev.ID, p)
		q.logger.Info("event queued",
			zap.String("id", ev.ID),
			zap.String("event", ev.Name),
			zap.Uint64("block", ev.BlockNumber),
			zap.Duration("delay", q.cfg.Delay),
		)

	case ev.Removed:
		p.timer.Stop()
		delete(q.pending, ev.ID)
		q.metrics.EventsDiscarded.WithLabelValues(ev.Name).Inc()
		q.logger.Info("event discarded by reorg", zap.String("id", ev.ID), zap.String("event", ev.Name))
		q.notifier.Publish(notify.Notification{
			Topics:    []string{"confirm." + ev.Name},
			Publisher: "confirm",
			Kind:      notify.KindInfo,
			Payload:   map[string]interface{}{"id": ev.ID, "discarded": true},
		})

	default:
		// Payload changed, typically replaced in a different block.
		// Cancel first so the id never has two live dispatches.
		p.timer.Stop()
		p.latest = ev
		q.schedule(ev.ID, p)
		q.metrics.EventsReplaced.WithLabelValues(ev.Name).Inc()
		q.logger.Info("event rescheduled",
			zap.String("id", ev.ID),
			zap.String("event", ev.Name),
			zap.Uint64("block", ev.BlockNumber),
		)
	}
}

func (q *Queue) schedule(id string, p *pendingIntent) {
	q.seq++
	p.gen = q.seq
	gen := p.gen
	p.timer = time.AfterFunc(q.cfg.Delay, func() {
		select {
		case q.fired <- firing{id: id, gen: gen}:
		case <-q.quit:
		}
	})
}

func (q *Queue) dispatch(ctx context.Context, f firing) {
	p, ok := q.pending[f.id]
	if !ok || p.gen != f.gen || p.dispatched {
		// Stale timer: the intent was rescheduled or discarded after
		// this firing was queued.
		return
	}
	p.dispatched = true
	ev := p.latest

	q.metrics.EventsDispatched.WithLabelValues(ev.Name).Inc()
	q.notifier.Publish(notify.Notification{
		Topics:    []string{"confirm." + ev.Name},
		Publisher: "confirm",
		Kind:      notify.KindEventReceived,
		Payload:   map[string]interface{}{"id": ev.ID, "block": ev.BlockNumber},
	})

	go func() {
		if err := q.processor(ctx, ev); err != nil {
			// Failures end here: the pipeline decides retryability,
			// the queue's job stops at "dispatched once".
			q.logger.Warn("processor failed",
				zap.String("id", ev.ID),
				zap.String("event", ev.Name),
				zap.Error(err),
			)
			q.notifier.Publish(notify.Notification{
				Topics:    []string{"confirm." + ev.Name},
				Publisher: "confirm",
				Kind:      notify.KindError,
				Payload:   map[string]interface{}{"id": ev.ID, "error": err.Error()},
			})
		}
		select {
		case q.done <- ev.ID:
		case <-q.quit:
		}
	}()
}

func (q *Queue) stopAllTimers() {
	for _, p := range q.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
}
