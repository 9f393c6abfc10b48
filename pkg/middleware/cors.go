package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists exact origins such as "https://shop.example.com".
	// "*" allows any origin.
	AllowedOrigins []string

	// AllowedMethods defaults to GET, POST, PUT, PATCH, DELETE, OPTIONS.
	AllowedMethods []string

	// AllowedHeaders defaults to Accept, Accept-Language, Content-Type and
	// the correlation header.
	AllowedHeaders []string

	// ExposedHeaders are readable by browser code on actual responses.
	ExposedHeaders []string

	// MaxAge is the preflight cache lifetime in seconds. Defaults to 3600.
	MaxAge int

	// AllowCredentials lets the browser send the session cookie. With a
	// wildcard the request origin is echoed, since "*" is not valid then.
	AllowCredentials bool

	// Environment "development" allows any origin when AllowedOrigins is
	// empty. An explicit list is always enforced.
	Environment string
}

// DefaultCORSConfig returns a permissive configuration for local development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type", HeaderCorrelationID},
		ExposedHeaders: []string{HeaderCorrelationID, HeaderLoginRequired},
		MaxAge:         3600,
		Environment:    "development",
	}
}

type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]struct{}
	credentials bool
	methods     string
	headers     string
	exposed     string
	maxAge      string
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	def := DefaultCORSConfig()
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = def.AllowedMethods
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = def.AllowedHeaders
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = def.MaxAge
	}

	p := corsPolicy{
		anyOrigin:   cfg.Environment == "development" && len(cfg.AllowedOrigins) == 0,
		origins:     make(map[string]struct{}, len(cfg.AllowedOrigins)),
		credentials: cfg.AllowCredentials,
		methods:     strings.Join(cfg.AllowedMethods, ", "),
		headers:     strings.Join(cfg.AllowedHeaders, ", "),
		exposed:     strings.Join(cfg.ExposedHeaders, ", "),
		maxAge:      strconv.Itoa(cfg.MaxAge),
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			p.anyOrigin = true
			continue
		}
		p.origins[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin and
// whether the response varies by origin. An empty value means not allowed.
func (p corsPolicy) allowOrigin(origin string) (value string, vary bool) {
	if _, ok := p.origins[origin]; ok && origin != "" {
		return origin, true
	}
	if !p.anyOrigin {
		return "", origin != ""
	}
	if p.credentials && origin != "" {
		return origin, true
	}
	return "*", false
}

// CORS returns middleware that applies the Cross-Origin Resource Sharing
// policy. Preflight requests are answered with 204 and never reach next.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			allowed, vary := p.allowOrigin(r.Header.Get("Origin"))
			if vary {
				h.Add("Vary", "Origin")
			}

			preflight := r.Method == http.MethodOptions
			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				if p.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if preflight {
					h.Set("Access-Control-Allow-Methods", p.methods)
					h.Set("Access-Control-Allow-Headers", p.headers)
					h.Set("Access-Control-Max-Age", p.maxAge)
				} else if p.exposed != "" {
					h.Set("Access-Control-Expose-Headers", p.exposed)
				}
			}

			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
