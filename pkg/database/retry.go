package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Retry is the startup retry policy for storage connections.
type Retry struct {
	Attempts int
	BaseWait time.Duration
	// Jitter is the +/- fraction applied to each wait.
	Jitter float64
}

// DefaultRetry waits roughly 1s then 2s between three attempts.
func DefaultRetry() Retry {
	return Retry{Attempts: 3, BaseWait: time.Second, Jitter: 0.25}
}

func (r Retry) backoff(attempt int) time.Duration {
	base := r.BaseWait << max(attempt, 0)
	spread := float64(base) * r.Jitter * (2*rand.Float64() - 1) // #nosec G404 -- jitter only
	return base + time.Duration(spread)
}

// Do runs fn until it succeeds, returns an error retryable rejects, or the
// attempts are used up. A nil retryable retries every error.
func (r Retry) Do(ctx context.Context, logger *slog.Logger, op string, retryable func(error) bool, fn func(context.Context) error) error {
	attempts := max(r.Attempts, 1)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		wait := r.backoff(attempt)
		if logger != nil {
			logger.Warn(op+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", attempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", op, attempts, err)
}

// transientPatterns catch driver errors that arrive without a typed cause.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"server closed the connection unexpectedly",
}

// IsTransient reports whether err looks like a lost or refused connection
// rather than a rejected statement.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return false
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || pgconn.SafeToRetry(err) {
		return true
	}
	msg := err.Error()
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
