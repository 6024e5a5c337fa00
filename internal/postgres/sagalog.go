package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mennohie/wdm-project-group-9/internal/checkout"
)

const sagaLogDDL = `
CREATE TABLE IF NOT EXISTS saga_log (
	id             BIGSERIAL PRIMARY KEY,
	order_id       TEXT        NOT NULL,
	correlation_id TEXT        NOT NULL,
	step           TEXT        NOT NULL,
	state          TEXT        NOT NULL,
	detail         TEXT        NOT NULL DEFAULT '',
	trace_id       TEXT        NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS saga_log_correlation_idx ON saga_log (correlation_id);
`

// SagaLogRepo appends checkout saga transitions to saga_log.
type SagaLogRepo struct {
	DB *pgxpool.Pool
}

var _ checkout.Journal = (*SagaLogRepo)(nil)

func (r *SagaLogRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.Exec(ctx, sagaLogDDL); err != nil {
		return fmt.Errorf("saga_log schema: %w", err)
	}
	return nil
}

func (r *SagaLogRepo) Append(ctx context.Context, e checkout.Entry) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO saga_log (order_id, correlation_id, step, state, detail, trace_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.OrderID, e.CorrelationID, e.Step, string(e.State), e.Detail, e.TraceID, e.At)
	return err
}
