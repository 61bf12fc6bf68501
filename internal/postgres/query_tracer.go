package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/edulane/billing/internal/logger"
	"github.com/edulane/billing/internal/types"
	"github.com/jmoiron/sqlx"
)

// SlowQueryThreshold is the duration above which a query is logged as a
// warning. Ledger commits hold a row lock for their whole duration.
var SlowQueryThreshold = 250 * time.Millisecond

// QueryTracer times one statement and logs it with the tenant and request
// it ran for
type QueryTracer struct {
	logger *logger.Logger
	query  string
	params interface{}
	start  time.Time
	fields []interface{}
}

func NewQueryTracer(ctx context.Context, logger *logger.Logger, query string, params interface{}, txID string) *QueryTracer {
	fields := []interface{}{
		"tenant_id", types.GetTenantID(ctx),
		"request_id", types.GetRequestID(ctx),
	}
	if txID != "" {
		fields = append(fields, "tx_id", txID)
	}

	return &QueryTracer{
		logger: logger,
		query:  query,
		params: params,
		start:  time.Now(),
		fields: fields,
	}
}

// Done logs the outcome. A missing row is a result, not a failure.
func (qt *QueryTracer) Done(err error) {
	elapsed := time.Since(qt.start)
	fields := append(qt.fields,
		"duration_ms", elapsed.Milliseconds(),
		"query", qt.query,
		"params", fmt.Sprintf("%+v", qt.params),
	)

	switch {
	case err != nil && !IsNoRows(err):
		qt.logger.Errorw("database query failed", append(fields, "error", err.Error())...)
	case elapsed > SlowQueryThreshold:
		qt.logger.Warnw("slow database query", fields...)
	default:
		qt.logger.Debugw("database query completed", fields...)
	}
}

// TracedQuerier traces every statement run through the wrapped Querier
type TracedQuerier struct {
	Querier
	logger *logger.Logger
	txID   string
}

func NewTracedQuerier(q Querier, logger *logger.Logger, txID string) *TracedQuerier {
	return &TracedQuerier{
		Querier: q,
		logger:  logger,
		txID:    txID,
	}
}

func (tq *TracedQuerier) trace(ctx context.Context, query string, params interface{}) *QueryTracer {
	return NewQueryTracer(ctx, tq.logger, query, params, tq.txID)
}

func (tq *TracedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	tracer := tq.trace(ctx, query, args)
	result, err := tq.Querier.ExecContext(ctx, query, args...)
	tracer.Done(err)
	return result, err
}

func (tq *TracedQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	tracer := tq.trace(ctx, query, args)
	rows, err := tq.Querier.QueryContext(ctx, query, args...)
	tracer.Done(err)
	return rows, err
}

// QueryRowxContext only traces the dispatch, the row error is known once
// scanned
func (tq *TracedQuerier) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	tracer := tq.trace(ctx, query, args)
	row := tq.Querier.QueryRowxContext(ctx, query, args...)
	tracer.Done(row.Err())
	return row
}

func (tq *TracedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	tracer := tq.trace(ctx, query, args)
	err := tq.Querier.GetContext(ctx, dest, query, args...)
	tracer.Done(err)
	return err
}

func (tq *TracedQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	tracer := tq.trace(ctx, query, args)
	err := tq.Querier.SelectContext(ctx, dest, query, args...)
	tracer.Done(err)
	return err
}

func (tq *TracedQuerier) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	tracer := tq.trace(ctx, query, arg)
	result, err := tq.Querier.NamedExecContext(ctx, query, arg)
	tracer.Done(err)
	return result, err
}
