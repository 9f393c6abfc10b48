package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/pkg/logger"
)

// HeaderCorrelationID carries the request correlation ID in both directions.
const HeaderCorrelationID = "X-Correlation-ID"

// RequestLogging assigns a correlation ID and logs one line per request.
// Server errors log at error level, client errors at warn, health checks and
// scrapes at debug.
func RequestLogging(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get(HeaderCorrelationID)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			w.Header().Set(HeaderCorrelationID, correlationID)

			info := &requestInfo{}
			ctx := logger.WithCorrelationID(r.Context(), correlationID)
			ctx = context.WithValue(ctx, requestInfoKey{}, info)
			rec := record(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", rec.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
				slog.String("correlation_id", correlationID),
			}
			if info.sessionID != "" {
				attrs = append(attrs, slog.String("session_id", info.sessionID))
			}
			if rec.loginRequired() {
				attrs = append(attrs, slog.Bool("login_required", true))
			}

			l.LogAttrs(ctx, requestLevel(r.URL.Path, rec.Status()), "http request", attrs...)
		})
	}
}

// requestInfo collects values resolved by inner middleware for the access log.
type requestInfo struct {
	sessionID string
}

type requestInfoKey struct{}

// noteSessionID hands the session ID back to RequestLogging, which runs
// outside the Session middleware.
func noteSessionID(ctx context.Context, id string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.sessionID = id
	}
}

func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case strings.HasPrefix(path, "/health/"), path == "/metrics":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// RequestLogger stores a logger carrying the request's correlation, session
// and trace identifiers in context for logger.FromContext. Mount it after
// Session and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.NewContext(r.Context(), logger.WithContext(r.Context(), base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
