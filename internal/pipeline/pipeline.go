package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"valuebridge/internal/audit"
	"valuebridge/internal/chain"
	"valuebridge/internal/contract"
	"valuebridge/internal/metrics"
	"valuebridge/internal/model"
	"valuebridge/internal/notify"
)

// Stage is one remote-call step of a workflow. Execute runs only when every
// prior stage succeeded; prior carries their results in order.
type Stage interface {
	Name() string
	Execute(ctx context.Context, intent model.SettlementIntent, prior []model.StageResult) model.StageResult
}

// GuardFunc authorizes an intent before any stage runs. A non-nil error
// short-circuits the whole run; it is not a stage failure.
type GuardFunc func(intent model.SettlementIntent) error

// Workflow is an ordered stage sequence for one settlement kind.
type Workflow struct {
	Name     string
	Parallel bool
	Guard    GuardFunc
	Stages   []Stage
}

// Runner executes a workflow's stages for confirmed intents, stopping at the
// first failing stage and reporting exactly where it stopped. Completed
// stages are committed ledger state and are never rolled back.
type Runner struct {
	wf       Workflow
	notifier notify.Notifier
	metrics  *metrics.Metrics
	sink     audit.Sink
	logger   *zap.Logger
	slot     chan struct{}
}

// NewRunner builds a runner for a workflow. Non-parallel workflows get a
// single execution slot; a second concurrent run reports busy instead of
// interleaving.
func NewRunner(wf Workflow, notifier notify.Notifier, m *metrics.Metrics, sink audit.Sink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if sink == nil {
		sink = audit.Discard{}
	}

	r := &Runner{
		wf:       wf,
		notifier: notifier,
		metrics:  m,
		sink:     sink,
		logger:   logger.With(zap.String("workflow", wf.Name)),
	}
	if !wf.Parallel {
		r.slot = make(chan struct{}, 1)
	}
	return r
}

// Run settles one intent. The returned result is terminal for this
// invocation; resubmission is an operator decision, the stages themselves
// are idempotent on the intent's business key.
func (r *Runner) Run(ctx context.Context, intent model.SettlementIntent) model.RunResult {
	started := time.Now().UTC()
	result := model.RunResult{Workflow: r.wf.Name, Key: intent.Key.Hex()}

	if r.wf.Guard != nil {
		if err := r.wf.Guard(intent); err != nil {
			r.logger.Warn("intent rejected", zap.String("key", result.Key), zap.Error(err))
			result.Status = model.RunRejected
			result.ErrCode = model.ErrCodeUnauthorized
			r.finish(result, started)
			return result
		}
	}

	if r.slot != nil {
		select {
		case r.slot <- struct{}{}:
			defer func() { <-r.slot }()
		default:
			r.logger.Warn("run refused, workflow busy", zap.String("key", result.Key))
			result.Status = model.RunBusy
			result.ErrCode = model.ErrCodeBusy
			r.finish(result, started)
			return result
		}
	}

	for _, stage := range r.wf.Stages {
		r.notifyStage(stage.Name(), "start", result.Key, "")

		stageResult := stage.Execute(ctx, intent, result.Stages)
		stageResult.Stage = stage.Name()
		if stageResult.Receipt != nil {
			stageResult.TxHash = stageResult.Receipt.TxHash.Hex()
		}
		result.Stages = append(result.Stages, stageResult)

		if !stageResult.Success {
			r.metrics.StagesFailed.WithLabelValues(r.wf.Name, stage.Name()).Inc()
			r.notifyStage(stage.Name(), "error", result.Key, stageResult.ErrCode)
			r.logger.Error("stage failed",
				zap.String("key", result.Key),
				zap.String("stage", stage.Name()),
				zap.String("err_code", stageResult.ErrCode),
				zap.Error(stageResult.Err),
			)
			result.Status = model.RunFailed
			result.FailedStage = stage.Name()
			result.ErrCode = stageResult.ErrCode
			r.finish(result, started)
			return result
		}

		r.metrics.StagesCompleted.WithLabelValues(r.wf.Name, stage.Name()).Inc()
		r.notifyStage(stage.Name(), "done", result.Key, "")
		r.logger.Info("stage done",
			zap.String("key", result.Key),
			zap.String("stage", stage.Name()),
			zap.String("tx_hash", stageResult.TxHash),
		)
	}

	result.Status = model.RunSuccess
	r.finish(result, started)
	return result
}

func (r *Runner) finish(result model.RunResult, started time.Time) {
	r.metrics.RunsFinished.WithLabelValues(r.wf.Name, result.Status).Inc()
	record := model.RunRecord{
		Workflow:    result.Workflow,
		Key:         result.Key,
		Status:      result.Status,
		FailedStage: result.FailedStage,
		ErrCode:     result.ErrCode,
		Stages:      result.Stages,
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
	}
	if err := r.sink.Record(record); err != nil {
		r.logger.Warn("audit record failed", zap.String("key", result.Key), zap.Error(err))
	}
}

func (r *Runner) notifyStage(stage, transition, key, errCode string) {
	payload := map[string]interface{}{"key": key}
	kind := notify.KindInfo
	if transition == "error" {
		kind = notify.KindError
		payload["err_code"] = errCode
	}
	r.notifier.Publish(notify.Notification{
		Topics:    []string{r.wf.Name + "." + stage + "." + transition},
		Publisher: "pipeline",
		Kind:      kind,
		Payload:   payload,
	})
}

// errMissingOutput marks a stage input that a prior stage should have
// produced but did not.
var errMissingOutput = errors.New("missing stage output")

// classify maps a stage error onto the error taxonomy. Receipt exhaustion
// and a missing expected event log get their own codes; everything else from
// the gateway is a remote-call failure.
func classify(err error) string {
	switch {
	case errors.Is(err, chain.ErrReceiptNotFound):
		return model.ErrCodeReceiptNotFound
	case errors.Is(err, contract.ErrEventNotFound), errors.Is(err, errMissingOutput):
		return model.ErrCodeMissingEventLog
	default:
		return model.ErrCodeRemoteCall
	}
}

func stageFailure(err error) model.StageResult {
	return model.StageResult{Success: false, ErrCode: classify(err), Err: err}
}

// findOutput looks up a named output across the prior stage results, most
// recent first.
func findOutput(prior []model.StageResult, name string) (interface{}, bool) {
	for i := len(prior) - 1; i >= 0; i-- {
		if prior[i].Outputs == nil {
			continue
		}
		if v, ok := prior[i].Outputs[name]; ok {
			return v, true
		}
	}
	return nil, false
}
