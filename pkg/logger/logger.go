// Package logger builds the service's JSON slog loggers and carries
// request-scoped fields through context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type contextKey int

const (
	correlationIDKey contextKey = iota
	sessionIDKey
	loggerKey
)

// ctxFields are copied from context onto loggers by WithContext.
var ctxFields = []struct {
	key  contextKey
	attr string
}{
	{correlationIDKey, "correlation_id"},
	{sessionIDKey, "session_id"},
}

// New creates a JSON logger for the named service writing to stdout.
func New(serviceName, level string) *slog.Logger {
	return NewWithWriter(serviceName, level, os.Stdout)
}

// NewWithWriter creates a JSON logger writing to w. Durations are written as
// fractional milliseconds.
func NewWithWriter(serviceName, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   lvl == slog.LevelDebug,
		ReplaceAttr: durationsAsMillis,
	})
	return slog.New(h).With(slog.String("service", serviceName))
}

func durationsAsMillis(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.Float64(a.Key+"_ms", float64(a.Value.Duration())/float64(time.Millisecond))
	}
	return a
}

// ParseLevel maps a textual level to slog.Level. Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func stringFrom(ctx context.Context, key contextKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// WithCorrelationID returns a context carrying the request correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation ID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, correlationIDKey)
}

// WithSessionID returns a context carrying the storefront session ID.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the storefront session ID, or "".
func SessionIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, sessionIDKey)
}

// NewContext stores a request-scoped logger.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the request-scoped logger, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext adds the correlation, session and trace identifiers found in
// ctx to l.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	attrs := make([]any, 0, len(ctxFields)+2)
	for _, f := range ctxFields {
		if v := stringFrom(ctx, f.key); v != "" {
			attrs = append(attrs, slog.String(f.attr, v))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
