package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront/pkg/logger"
)

// DefaultSessionCookie is the cookie that carries the storefront session ID.
const DefaultSessionCookie = "sf_session"

// SessionConfig configures the session cookie.
type SessionConfig struct {
	CookieName string
	MaxAge     time.Duration
	Secure     bool
	Domain     string
}

// Session reads the session cookie, issuing a fresh random ID when it is
// missing or malformed, and stores the ID in the request context.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultSessionCookie
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					id = parsed.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
			}

			// Refresh on every response so active sessions slide forward.
			setSessionCookie(w, cfg, id)

			noteSessionID(r.Context(), id)
			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("storefront.session_id", id))

			ctx := logger.WithSessionID(r.Context(), id)
			ctx = context.WithValue(ctx, sessionConfigKey{}, cfg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type sessionConfigKey struct{}

func setSessionCookie(w http.ResponseWriter, cfg SessionConfig, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    id,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReissueSession replaces the session cookie queued on w with id and returns
// r carrying the new ID. Call it before the response is written; outside the
// Session middleware it returns r unchanged.
func ReissueSession(w http.ResponseWriter, r *http.Request, id string) *http.Request {
	cfg, ok := r.Context().Value(sessionConfigKey{}).(SessionConfig)
	if !ok {
		return r
	}

	prefix := cfg.CookieName + "="
	var kept []string
	for _, c := range w.Header().Values("Set-Cookie") {
		if !strings.HasPrefix(c, prefix) {
			kept = append(kept, c)
		}
	}
	w.Header().Del("Set-Cookie")
	for _, c := range kept {
		w.Header().Add("Set-Cookie", c)
	}
	setSessionCookie(w, cfg, id)

	noteSessionID(r.Context(), id)
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("storefront.session_id", id))
	return r.WithContext(logger.WithSessionID(r.Context(), id))
}

// SessionIDFromContext returns the session ID set by Session.
func SessionIDFromContext(ctx context.Context) string {
	return logger.SessionIDFromContext(ctx)
}

// ClientIP returns the caller's address without the port. Mount chi's RealIP
// ahead of it to honour proxy headers.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
