package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"valuebridge/internal/model"
)

// PostgresSink upserts run records into Postgres, keyed by workflow and
// business key so an operator resubmission overwrites the failed attempt.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to Postgres and ensures the runs table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("audit dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	s := &PostgresSink{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS settlement_runs (
			workflow     text NOT NULL,
			key          text NOT NULL,
			status       text NOT NULL,
			failed_stage text,
			err_code     text,
			stages       jsonb NOT NULL,
			started_at   timestamptz NOT NULL,
			finished_at  timestamptz NOT NULL,
			PRIMARY KEY (workflow, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure settlement_runs: %w", err)
	}
	return nil
}

// Record upserts one finished run.
func (s *PostgresSink) Record(record model.RunRecord) error {
	stages, err := json.Marshal(record.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}

	_, err = s.pool.Exec(context.Background(), `
		INSERT INTO settlement_runs (
			workflow, key, status, failed_stage, err_code, stages, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (workflow, key)
		DO UPDATE SET
			status = EXCLUDED.status,
			failed_stage = EXCLUDED.failed_stage,
			err_code = EXCLUDED.err_code,
			stages = EXCLUDED.stages,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`,
		record.Workflow,
		record.Key,
		record.Status,
		nullable(record.FailedStage),
		nullable(record.ErrCode),
		stages,
		record.StartedAt,
		record.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run %s/%s: %w", record.Workflow, record.Key, err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
