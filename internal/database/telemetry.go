package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracedPool wraps a pgx pool so every repository call shows up as a
// child span. It implements DatabasePool.
type TracedPool struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewTracedPool creates a new traced database pool.
func NewTracedPool(pool *pgxpool.Pool) *TracedPool {
	return &TracedPool{
		pool:   pool,
		tracer: otel.Tracer("adpulse/db"),
	}
}

func (db *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := db.start(ctx, "db.query", sql)
	defer span.End()

	rows, err := db.pool.Query(ctx, sql, args...)
	db.finish(span, err)
	return rows, err
}

func (db *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := db.start(ctx, "db.query_row", sql)
	defer span.End()

	return db.pool.QueryRow(ctx, sql, args...)
}

func (db *TracedPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := db.start(ctx, "db.exec", sql)
	defer span.End()

	tag, err := db.pool.Exec(ctx, sql, args...)
	db.finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	return tag, err
}

func (db *TracedPool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	ctx, span := db.start(ctx, "db.send_batch", "")
	defer span.End()

	span.SetAttributes(attribute.Int("db.batch_len", b.Len()))
	return db.pool.SendBatch(ctx, b)
}

func (db *TracedPool) start(ctx context.Context, name, sql string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("db.system", "postgresql")}
	if sql != "" {
		attrs = append(attrs, attribute.String("db.statement", sql))
	}
	return db.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (db *TracedPool) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
