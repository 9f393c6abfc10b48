package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/i18n"
	"github.com/utafrali/storefront/internal/storefront"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
)

// HeaderLoginRequired tells the UI to open its login prompt.
const HeaderLoginRequired = middleware.HeaderLoginRequired

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type ctxKey struct{}

// Handler serves the storefront API for the session bound to each request.
type Handler struct {
	registry *storefront.Registry
	catalog  *i18n.Catalog
	logger   *slog.Logger
}

// NewHandler creates a storefront HTTP handler.
func NewHandler(registry *storefront.Registry, catalog *i18n.Catalog, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, catalog: catalog, logger: logger}
}

// loadStorefront resolves the session from the cookie ID set by
// middleware.Session and hydrates it on first use.
func (h *Handler) loadStorefront(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.SessionIDFromContext(r.Context())
		sf, err := h.registry.Get(r.Context(), id, middleware.ClientIP(r))
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, sf)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func storefrontFrom(r *http.Request) *storefront.Storefront {
	sf, _ := r.Context().Value(ctxKey{}).(*storefront.Storefront)
	return sf
}

// flagLogin sets the login-required header when the session was invalidated
// while serving this request. It must run before the status is written.
func flagLogin(w http.ResponseWriter, r *http.Request) {
	if sf := storefrontFrom(r); sf != nil && sf.TakeLoginRequired() {
		w.Header().Set(HeaderLoginRequired, "true")
	}
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	flagLogin(w, r)
	httputil.WriteData(w, status, data)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	flagLogin(w, r)
	httputil.WriteError(w, r, err, h.logger)
}

func (h *Handler) noContent(w http.ResponseWriter, r *http.Request) {
	flagLogin(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates a JSON body into dst.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := httputil.DecodeJSON(r, dst); err != nil {
		logger.FromContext(r.Context()).DebugContext(r.Context(), "rejected request body", slog.String("error", err.Error()))
		h.fail(w, r, err)
		return false
	}
	return true
}

// decodeOnly decodes a JSON body without validating it, for inputs the
// stores validate themselves.
func decodeOnly(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.InvalidInput("request body must be valid JSON")
	}
	return nil
}
