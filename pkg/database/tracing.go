package database

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront/pkg/logger"
)

const tracerName = "github.com/utafrali/storefront/pkg/database"

// maxStatementAttr bounds the statement recorded on spans and slow-query logs.
const maxStatementAttr = 512

// QueryTracer is a pgx.QueryTracer that opens a client span per query and
// logs queries slower than SlowThreshold. A zero threshold disables the log.
type QueryTracer struct {
	tracer        trace.Tracer
	logger        *slog.Logger
	slowThreshold time.Duration
	now           func() time.Time
}

var _ pgx.QueryTracer = (*QueryTracer)(nil)

// NewQueryTracer creates a tracer over the global tracer provider. logger
// may be nil when slow-query logging is off.
func NewQueryTracer(logger *slog.Logger, slowThreshold time.Duration) *QueryTracer {
	return &QueryTracer{
		tracer:        otel.Tracer(tracerName),
		logger:        logger,
		slowThreshold: slowThreshold,
		now:           time.Now,
	}
}

type queryKey struct{}

type queryState struct {
	span      trace.Span
	statement string
	start     time.Time
}

// TraceQueryStart implements pgx.QueryTracer.
func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	stmt := truncate(strings.TrimSpace(data.SQL), maxStatementAttr)
	op := operation(stmt)
	ctx, span := t.tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.statement", stmt),
		),
	)
	return context.WithValue(ctx, queryKey{}, &queryState{span: span, statement: stmt, start: t.now()})
}

// TraceQueryEnd implements pgx.QueryTracer.
func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	st, ok := ctx.Value(queryKey{}).(*queryState)
	if !ok {
		return
	}
	if data.Err != nil {
		st.span.RecordError(data.Err)
		st.span.SetStatus(codes.Error, data.Err.Error())
	} else {
		st.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	st.span.End()

	elapsed := t.now().Sub(st.start)
	if t.slowThreshold <= 0 || t.logger == nil || elapsed < t.slowThreshold {
		return
	}
	attrs := []any{
		slog.String("statement", st.statement),
		slog.Duration("duration", elapsed),
	}
	if data.Err != nil {
		attrs = append(attrs, slog.String("error", data.Err.Error()))
	}
	logger.WithContext(ctx, t.logger).WarnContext(ctx, "slow query", attrs...)
}

// operation is the leading SQL keyword, e.g. SELECT.
func operation(stmt string) string {
	if i := strings.IndexFunc(stmt, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' || r == '(' }); i > 0 {
		return strings.ToUpper(stmt[:i])
	}
	if stmt == "" {
		return "QUERY"
	}
	return strings.ToUpper(stmt)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
