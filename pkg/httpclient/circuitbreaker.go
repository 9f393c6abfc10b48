package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// MaxRequests is the number of trial requests let through while half-open.
	MaxRequests uint32

	// Interval clears the counts periodically while closed.
	Interval time.Duration

	// Timeout is how long the breaker stays open.
	Timeout time.Duration

	// FailureRatio trips the breaker once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitBreakerConfig returns the defaults used for upstream APIs.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// FallbackFunc replaces the result of a call rejected by an open breaker.
type FallbackFunc func(ctx context.Context, err error) (*http.Response, error)

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = gobreaker.ErrOpenState

// ErrTooManyRequests is returned when a half-open breaker is saturated.
var ErrTooManyRequests = gobreaker.ErrTooManyRequests

// UpstreamStatusError records a 5xx answer against the breaker. The caller
// still receives the response itself.
type UpstreamStatusError struct {
	Status int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storefront_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_circuit_breaker_rejected_total",
		Help: "Calls rejected by an open or saturated circuit breaker",
	}, []string{"name", "fallback"})
)

// CircuitBreakerClient guards a Doer with a circuit breaker.
type CircuitBreakerClient struct {
	next     Doer
	cb       *gobreaker.CircuitBreaker[*http.Response]
	logger   *slog.Logger
	fallback FallbackFunc
	name     string
}

// NewCircuitBreakerClient wraps next. Transport errors and 5xx responses
// count as failures; a canceled caller context does not.
func NewCircuitBreakerClient(next Doer, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= cfg.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	breakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))

	return &CircuitBreakerClient{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker[*http.Response](settings),
		logger: logger,
		name:   cfg.Name,
	}
}

// WithFallback returns a copy that calls fn instead of returning
// ErrCircuitOpen or ErrTooManyRequests.
func (c *CircuitBreakerClient) WithFallback(fn FallbackFunc) *CircuitBreakerClient {
	cpy := *c
	cpy.fallback = fn
	return &cpy
}

// Do sends req through the breaker. A 5xx response is returned to the caller
// with its body buffered, so the upstream error message can still be read.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.cb.Execute(func() (*http.Response, error) {
		resp, err := c.next.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, &UpstreamStatusError{Status: resp.StatusCode}
	})

	var statusErr *UpstreamStatusError
	switch {
	case err == nil:
		return resp, nil
	case errors.As(err, &statusErr) && resp != nil:
		return resp, nil
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrTooManyRequests):
		breakerRejected.WithLabelValues(c.name, fmt.Sprint(c.fallback != nil)).Inc()
		if c.fallback == nil {
			return nil, err
		}
		c.logger.WarnContext(ctx, "circuit breaker rejected call, using fallback",
			slog.String("breaker", c.name),
			slog.String("url", req.URL.Redacted()),
		)
		return c.fallback(ctx, err)
	default:
		return nil, err
	}
}

// Get performs a GET through the breaker.
func (c *CircuitBreakerClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// State returns the current breaker state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}

// Check reports an open breaker without calling upstream. It fits a
// readiness check for a dependency that must not be hammered while down.
func (c *CircuitBreakerClient) Check(context.Context) error {
	if c.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
	}
	return nil
}
