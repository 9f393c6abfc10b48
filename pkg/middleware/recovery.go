package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
)

// Recovery turns a handler panic into a logged 500 envelope. Aborted
// handlers keep panicking so net/http can drop the connection.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
						panic(rec)
					}
					logger.WithContext(r.Context(), l).ErrorContext(r.Context(), "panic recovered",
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)

					status, body := httputil.Problem(r, apperrors.Internal(nil))
					httputil.WriteJSON(w, status, body)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
