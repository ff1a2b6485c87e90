package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide counters for the facilitator.
type Metrics struct {
	EventsReceived   *prometheus.CounterVec
	EventsReplaced   *prometheus.CounterVec
	EventsDiscarded  *prometheus.CounterVec
	EventsDispatched *prometheus.CounterVec

	StagesCompleted *prometheus.CounterVec
	StagesFailed    *prometheus.CounterVec
	RunsFinished    *prometheus.CounterVec

	TransfersInitiated prometheus.Counter
	TransfersSettled   prometheus.Counter
	TransfersReverted  prometheus.Counter
}

// New registers the facilitator metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuebridge",
			Name:      "events_received_total",
			Help:      "Raw trigger events received from the chain gateway.",
		}, []string{"event"}),
		EventsReplaced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuebridge",
			Name:      "events_replaced_total",
			Help:      "Queued events replaced by a changed payload before dispatch.",
		}, []string{"event"}),
		EventsDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuebridge",
			Name:      "events_discarded_total",
			Help:      "Queued events discarded after a reorg retraction.",
		}, []string{"event"}),
		EventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuebridge",
			Name:      "events_dispatched_total",
			Help:      "Confirmed events handed to the settlement pipeline.",
		}, []string{"event"}),
		StagesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuebridge",
			Name:      "stages_completed_total",
			Help:      "Settlement stages that completed successfully.",
		}, []string{"workflow", "stage"}),
		StagesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuebridge",
			Name:      "stages_failed_total",
			Help:      "Settlement stages that failed and aborted their run.",
		}, []string{"workflow", "stage"}),
		RunsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuebridge",
			Name:      "runs_finished_total",
			Help:      "Settlement runs by terminal status.",
		}, []string{"workflow", "status"}),
		TransfersInitiated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "valuebridge",
			Name:      "transfers_initiated_total",
			Help:      "Optimistic transfers accepted for async submission.",
		}),
		TransfersSettled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "valuebridge",
			Name:      "transfers_settled_total",
			Help:      "Transfers whose chain submission confirmed.",
		}),
		TransfersReverted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "valuebridge",
			Name:      "transfers_reverted_total",
			Help:      "Transfers compensated after a failed chain submission.",
		}),
	}
}

// NewNop returns metrics registered on a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
