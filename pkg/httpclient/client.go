// Package httpclient is the outbound HTTP stack: a retrying client, a circuit
// breaker around it, and the mapping of backend error bodies to AppErrors.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/utafrali/storefront/pkg/logger"
)

// HeaderCorrelationID is forwarded so backend logs line up with ours.
const HeaderCorrelationID = "X-Correlation-ID"

// Doer executes an outbound HTTP request. Both Client and CircuitBreakerClient
// satisfy it so callers can be wired with or without a breaker.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
	UserAgent       string
}

// DefaultConfig returns defaults for calls to the storefront backend.
func DefaultConfig() Config {
	return Config{
		Timeout:         15 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 50,
		UserAgent:       "storefront/1.0",
	}
}

// Client retries transient failures and stamps outbound requests with the
// correlation ID and trace context of the caller.
type Client struct {
	hc  *http.Client
	cfg Config
}

// New creates a client with its own pooled transport.
func New(cfg Config) *Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return NewWithHTTPClient(&http.Client{Transport: transport, Timeout: cfg.Timeout}, cfg)
}

// NewWithHTTPClient wraps an existing *http.Client, e.g. one bound to an httptest server.
func NewWithHTTPClient(hc *http.Client, cfg Config) *Client {
	return &Client{hc: hc, cfg: cfg}
}

// Do sends req, retrying network errors, 429 and 5xx other than 501. A body
// is only resent when req.GetBody can rewind it.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	c.stamp(ctx, req)

	retries := c.cfg.MaxRetries
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		retries = 0
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.hc.Do(req)
		if attempt >= retries || !shouldRetry(resp, err) {
			if err != nil {
				return nil, fmt.Errorf("%s %s failed after %d attempt(s): %w", req.Method, req.URL.Redacted(), attempt+1, err)
			}
			return resp, nil
		}

		wait := c.backoff(attempt, resp)
		if resp != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			_ = resp.Body.Close()
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}
	}
}

func (c *Client) stamp(ctx context.Context, req *http.Request) {
	if c.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" && req.Header.Get(HeaderCorrelationID) == "" {
		req.Header.Set(HeaderCorrelationID, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// backoff doubles from RetryWaitMin, capped at RetryWaitMax. A Retry-After in
// seconds wins when it is within the cap.
func (c *Client) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
			if d := time.Duration(secs) * time.Second; d <= c.cfg.RetryWaitMax {
				return d
			}
		}
	}
	return min(c.cfg.RetryWaitMin<<attempt, c.cfg.RetryWaitMax)
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return isRetryableError(err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true
	case resp.StatusCode == http.StatusNotImplemented:
		return false
	default:
		return resp.StatusCode >= http.StatusInternalServerError
	}
}

// Get performs a GET with retry.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// Post performs a POST with retry.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create POST request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, req)
}

func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
