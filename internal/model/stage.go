package model

import (
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// Error codes surfaced in results and API responses.
const (
	ErrCodeValidation        = "invalid_request"
	ErrCodeUnauthorized      = "unauthorized_actor"
	ErrCodeRemoteCall        = "remote_call_failed"
	ErrCodeReceiptNotFound   = "receipt_not_found"
	ErrCodeMissingEventLog   = "missing_event_log"
	ErrCodeBusy              = "workflow_busy"
	ErrCodeInsufficientFunds = "insufficient_funds"
	ErrCodeInsufficientGas   = "insufficient_gas"
)

// StageResult is the outcome of one settlement stage. Outputs carries decoded
// event-log fields the next stage depends on.
type StageResult struct {
	Stage   string                 `json:"stage"`
	Success bool                   `json:"success"`
	Receipt *types.Receipt         `json:"-"`
	TxHash  string                 `json:"tx_hash,omitempty"`
	Outputs map[string]interface{} `json:"-"`
	ErrCode string                 `json:"err_code,omitempty"`
	Err     error                  `json:"-"`
}

// Run statuses.
const (
	RunSuccess  = "success"
	RunRejected = "rejected"
	RunBusy     = "busy"
	RunFailed   = "failed"
)

// RunResult reports where a settlement run ended. Completed stages are never
// rolled back; on failure the caller learns exactly which stage stopped the
// run.
type RunResult struct {
	Workflow    string        `json:"workflow"`
	Key         string        `json:"key"`
	Status      string        `json:"status"`
	FailedStage string        `json:"failed_stage,omitempty"`
	ErrCode     string        `json:"err_code,omitempty"`
	Stages      []StageResult `json:"stages"`
}

// Succeeded reports whether every stage completed.
func (r RunResult) Succeeded() bool {
	return r.Status == RunSuccess
}

// RunRecord is the audit representation of a finished settlement run.
type RunRecord struct {
	Workflow    string        `json:"workflow"`
	Key         string        `json:"key"`
	Status      string        `json:"status"`
	FailedStage string        `json:"failed_stage,omitempty"`
	ErrCode     string        `json:"err_code,omitempty"`
	Stages      []StageResult `json:"stages"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}
