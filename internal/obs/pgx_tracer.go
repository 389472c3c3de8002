package obs

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type queryStartKey struct{}

type queryStart struct {
	span trace.Span
	sql  string
	at   time.Time
}

// PGXTracer wraps each query in a span and logs queries slower than
// SlowQuery.
type PGXTracer struct {
	SlowQuery time.Duration
	Logger    zerolog.Logger
}

func (t PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	sql := truncateSQL(data.SQL)
	ctx, span := otel.Tracer("db.pgx").Start(ctx, "pgx."+operation(sql), trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", sql),
	)
	return context.WithValue(ctx, queryStartKey{}, queryStart{span: span, sql: sql, at: time.Now()})
}

func (t PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	if data.Err != nil && data.Err != pgx.ErrNoRows {
		start.span.RecordError(data.Err)
		start.span.SetStatus(codes.Error, "query failed")
	}
	start.span.End()
	if took := time.Since(start.at); t.SlowQuery > 0 && took >= t.SlowQuery {
		t.Logger.Warn().Str("sql", start.sql).Dur("took", took).Msg("slow query")
	}
}

func operation(sql string) string {
	if fields := strings.Fields(sql); len(fields) > 0 {
		return strings.ToLower(fields[0])
	}
	return "query"
}

func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > 300 {
		return trimmed[:300] + "..."
	}
	return trimmed
}
