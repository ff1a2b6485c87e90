package notify

import (
	"sync"

	"go.uber.org/zap"
)

// Notification kinds.
const (
	KindInfo          = "info"
	KindError         = "error"
	KindEventReceived = "event_received"
)

// Notification is a fire-and-forget observability message. Publishing one
// must never fail the caller.
type Notification struct {
	Topics    []string               `json:"topics"`
	Publisher string                 `json:"publisher"`
	Kind      string                 `json:"kind"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Notifier publishes notifications off the critical path.
type Notifier interface {
	Publish(n Notification)
}

// LogEmitter writes notifications to the process log.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter builds a notifier backed by the given logger.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Publish(n Notification) {
	fields := []zap.Field{
		zap.Strings("topics", n.Topics),
		zap.String("publisher", n.Publisher),
		zap.Any("payload", n.Payload),
	}
	switch n.Kind {
	case KindError:
		e.logger.Warn("notification", fields...)
	default:
		e.logger.Info("notification", fields...)
	}
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Publish(Notification) {}

// Recorder collects notifications for inspection in tests.
type Recorder struct {
	mu   sync.Mutex
	seen []Notification
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(n Notification) {
	r.mu.Lock()
	r.seen = append(r.seen, n)
	r.mu.Unlock()
}

// All returns a copy of everything published so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.seen))
	copy(out, r.seen)
	return out
}
