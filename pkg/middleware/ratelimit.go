package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/utafrali/storefront/pkg/httputil"
)

// CodeRateLimited is the error code of a 429 response.
const CodeRateLimited = "RATE_LIMITED"

// Limiter decides whether key may make another request. When it may not,
// retryAfter says how long to wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// RateLimitConfig configures a limiter: a sustained RPS with Burst headroom.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	// TTL is how long an idle client is remembered by the local limiter.
	TTL time.Duration
}

// window is the fixed window that admits Burst requests at RPS.
func (c RateLimitConfig) window() time.Duration {
	if c.RPS <= 0 {
		return time.Second
	}
	return max(time.Duration(float64(c.Burst)/c.RPS*float64(time.Second)), time.Second)
}

// LocalLimiter keeps one token bucket per key in process memory.
type LocalLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a LocalLimiter. Idle buckets are dropped every TTL
// until ctx is done.
func NewLocalLimiter(ctx context.Context, cfg RateLimitConfig) *LocalLimiter {
	if cfg.TTL <= 0 {
		cfg.TTL = 3 * time.Minute
	}
	l := &LocalLimiter{cfg: cfg, now: time.Now, buckets: make(map[string]*bucket)}
	go func() {
		t := time.NewTicker(cfg.TTL)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.evictIdle()
			}
		}
	}()
	return l
}

// Allow takes a token from key's bucket.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, l.cfg.window(), nil
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d, nil
	}
	return true, 0, nil
}

func (l *LocalLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.cfg.TTL {
			delete(l.buckets, key)
		}
	}
}

func (l *LocalLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RedisLimiter counts requests in a fixed window shared by every replica.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter admits Burst requests per window under keys "<prefix>:<key>".
func NewRedisLimiter(client redis.Cmdable, prefix string, cfg RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: int64(cfg.Burst), window: cfg.window()}
}

// Allow increments key's counter, starting a new window on first use.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + ":" + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.ExpireNX(ctx, k, l.window)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", k, err)
	}
	if incr.Val() <= l.limit {
		return true, 0, nil
	}
	return false, max(ttl.Val(), time.Millisecond), nil
}

// RateLimit rejects clients over the limit with 429, keyed by client IP.
// Limiter errors let the request through.
func RateLimit(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			ok, retryAfter, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					slog.String("error", err.Error()))
				ok = true
			}
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
				Error: &httputil.ErrorResponse{Code: CodeRateLimited, Message: "too many attempts, please wait and try again"},
			})
		})
	}
}
