package middleware

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
)

// RegisterPprof mounts chi's profiler under /debug behind an IP allowlist.
func RegisterPprof(r chi.Router, allowed []string, logger *slog.Logger) {
	r.With(IPAllowlist(allowed, logger)).Mount("/debug", chimw.Profiler())
}

// parsePrefixes accepts CIDRs and bare addresses. Invalid entries are logged
// and skipped.
func parsePrefixes(entries []string, logger *slog.Logger) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		logger.Warn("invalid allowlist entry, skipping", slog.String("entry", e))
	}
	return prefixes
}

// IPAllowlist rejects callers whose address is outside every allowed prefix
// with 403. An empty list denies everyone.
func IPAllowlist(allowed []string, logger *slog.Logger) func(http.Handler) http.Handler {
	prefixes := parsePrefixes(allowed, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := ClientIP(r)
			if addr, err := netip.ParseAddr(host); err == nil {
				addr = addr.Unmap()
				for _, p := range prefixes {
					if p.Contains(addr) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			logger.Warn("access denied by IP allowlist",
				slog.String("ip", host),
				slog.String("path", r.URL.Path),
			)
			httputil.WriteError(w, r, apperrors.Forbidden("access restricted by IP allowlist"), logger)
		})
	}
}
