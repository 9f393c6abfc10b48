package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute labels requests chi could not route, keeping path
// cardinality bounded.
const unmatchedRoute = "unmatched"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15},
		},
		[]string{"service", "method", "path"},
	)

	httpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
		[]string{"service"},
	)

	loginRequiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_login_required_total",
			Help: "Responses that told the UI to prompt for login after the backend rejected the session token",
		},
		[]string{"service", "path"},
	)
)

// PrometheusMetrics returns middleware that collects HTTP metrics labelled by
// chi route pattern.
func PrometheusMetrics(serviceName string) func(next http.Handler) http.Handler {
	inFlight := httpRequestsInFlight.WithLabelValues(serviceName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			inFlight.Inc()
			defer inFlight.Dec()

			rec := record(w)
			next.ServeHTTP(rec, r)

			route := routePattern(r)
			if route == "" {
				route = unmatchedRoute
			}

			httpRequestsTotal.WithLabelValues(serviceName, r.Method, route, strconv.Itoa(rec.Status())).Inc()
			httpRequestDuration.WithLabelValues(serviceName, r.Method, route).Observe(time.Since(start).Seconds())
			if rec.loginRequired() {
				loginRequiredTotal.WithLabelValues(serviceName, route).Inc()
			}
		})
	}
}
