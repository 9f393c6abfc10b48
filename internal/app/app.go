package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/backend"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/currency"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/i18n"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/internal/storage/memory"
	"github.com/utafrali/storefront/internal/storage/postgres"
	redisstore "github.com/utafrali/storefront/internal/storage/redis"
	"github.com/utafrali/storefront/internal/storefront"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

const serviceName = "storefront"

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	registry       *storefront.Registry
	redis          *redis.Client
	pool           *pgxpool.Pool
	purger         *postgres.Backend
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// bgCtx scopes the janitors and the rate limiter cleanup.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tc := tracing.DefaultConfig(serviceName)
	tc.Environment = cfg.Environment
	tc.OTLPEndpoint = cfg.OTELEndpoint
	tc.SampleRate = cfg.OTELSampleRate
	tc.Enabled = cfg.OTELEnabled
	tracerShutdown, err := tracing.InitTracer(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, tracerShutdown: tracerShutdown}
	a.bgCtx, a.bgCancel = context.WithCancel(context.Background())
	healthHandler := health.NewHandler()

	store, err := a.openStorage(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	// Kafka producer, or a logging stand-in when no brokers are configured.
	var publisher pkgkafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		publisher = pkgkafka.NewLogPublisher(logger)
		logger.Info("kafka disabled, cart events will only be logged")
	}

	// Backend REST client behind a circuit breaker.
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         cfg.BackendTimeout,
		MaxRetries:      cfg.BackendMaxRetries,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 50,
		UserAgent:       "storefront/1.0",
	})
	backendCB := httpclient.NewCircuitBreakerClient(baseClient, a.breakerConfig("storefront-backend"), logger).
		WithFallback(backend.CircuitOpenFallback)
	healthHandler.RegisterNonCritical("backend", backendCB.Check)

	// Geolocation gets its own breaker and no retries; it only picks a default.
	geoClient := httpclient.New(httpclient.Config{
		Timeout:         cfg.GeolocationTimeout,
		MaxConnsPerHost: 10,
		UserAgent:       "storefront/1.0",
	})
	geoCB := httpclient.NewCircuitBreakerClient(geoClient, a.breakerConfig("geolocation"), logger)
	healthHandler.RegisterNonCritical("geolocation", geoCB.Check)
	logger.Info("circuit breakers initialized",
		slog.Uint64("max_requests", uint64(cfg.CBMaxRequests)),
		slog.Duration("timeout", cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cfg.CBMinRequests)),
	)

	catalog, err := i18n.Load()
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("load translations: %w", err)
	}

	a.registry = storefront.NewRegistry(storefront.Deps{
		Bridge:      storage.NewBridge(store, logger),
		Backend:     backend.New(backendCB, cfg.APIBaseURL, logger),
		Geolocator:  currency.NewHTTPGeolocator(geoCB, cfg.GeolocationURL, cfg.GeolocationTimeout),
		Events:      event.NewProducer(publisher, logger),
		Catalog:     catalog,
		Logger:      logger,
		RecentLimit: cfg.RecentlyViewedMax,
	}, cfg.SessionIdleTTL)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.AllowedOrigins()
	cors.AllowCredentials = true
	cors.Environment = cfg.Environment

	router := handler.NewRouter(handler.RouterConfig{
		Handler: handler.NewHandler(a.registry, catalog, logger),
		Health:  healthHandler,
		Logger:  logger,
		CORS:    cors,
		Session: middleware.SessionConfig{
			CookieName: cfg.SessionCookie,
			MaxAge:     cfg.SessionTTL,
			Secure:     cfg.CookieSecure,
		},
		AuthRateLimit: middleware.RateLimit(a.authLimiter(), logger),
		PprofEnabled:  cfg.PprofEnabled,
		PprofCIDRs:    cfg.PprofAllowedCIDRs,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// authLimiter shares login throttling across replicas when Redis is the
// session store, and falls back to per-process buckets otherwise.
func (a *App) authLimiter() middleware.Limiter {
	rl := middleware.RateLimitConfig{RPS: a.cfg.AuthRateRPS, Burst: a.cfg.AuthRateBurst, TTL: 10 * time.Minute}
	if a.redis != nil {
		return middleware.NewRedisLimiter(a.redis, "storefront:ratelimit:auth", rl)
	}
	return middleware.NewLocalLimiter(a.bgCtx, rl)
}

// openStorage connects the configured session storage driver and registers
// its readiness check.
func (a *App) openStorage(ctx context.Context, hh *health.Handler) (storage.Backend, error) {
	cfg := a.cfg
	switch cfg.StorageDriver {
	case config.StorageRedis:
		rc := database.DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		client, err := database.NewRedisClient(ctx, rc, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		store := redisstore.NewBackend(client, cfg.SessionTTL)
		hh.RegisterCritical("redis", store.Ping)
		a.logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
		return store, nil

	case config.StoragePostgres:
		pc := database.DefaultPostgresConfig()
		pc.Host, pc.Port = cfg.PostgresHost, cfg.PostgresPort
		pc.User, pc.Password = cfg.PostgresUser, cfg.PostgresPass
		pc.DBName, pc.SSLMode = cfg.PostgresDB, cfg.PostgresSSL
		pc.MaxConns, pc.MinConns = cfg.DBMaxConns, cfg.DBMinConns
		pc.MaxConnLifetime, pc.MaxConnIdleTime = cfg.DBMaxConnLifetime, cfg.DBMaxConnIdleTime
		pc.SlowQueryThreshold = cfg.DBSlowQuery
		pool, err := database.NewPostgresPool(ctx, &pc, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "session_kv"); err != nil {
			a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)

		migrations, err := fs.Sub(postgres.Migrations, "migrations")
		if err != nil {
			return nil, fmt.Errorf("open migrations: %w", err)
		}
		if err := database.RunMigrations(ctx, pool, migrations, a.logger); err != nil {
			return nil, err
		}
		a.logger.Info("database migrations completed")

		store := postgres.NewBackend(pool, cfg.SessionTTL)
		a.purger = store
		hh.RegisterCritical("postgres", store.Ping)
		return store, nil

	default:
		a.logger.Warn("using in-memory session storage, state is lost on restart")
		return memory.New(), nil
	}
}

func (a *App) breakerConfig(name string) httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  a.cfg.CBMaxRequests,
		Interval:     a.cfg.CBInterval,
		Timeout:      a.cfg.CBTimeout,
		FailureRatio: a.cfg.CBFailureRatio,
		MinRequests:  a.cfg.CBMinRequests,
	}
}

// Run starts the HTTP server and the background janitors and blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		a.registry.Run(a.bgCtx, a.cfg.SessionSweepEvery)
	}()

	if a.purger != nil && a.cfg.DBPurgeInterval > 0 {
		a.bgWG.Add(1)
		go func() {
			defer a.bgWG.Done()
			a.purgeExpired(a.bgCtx, a.cfg.DBPurgeInterval)
		}()
	}

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// purgeExpired deletes expired session rows until ctx is done.
func (a *App) purgeExpired(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.purger.PurgeExpired(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "failed to purge expired sessions", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "purged expired sessions", slog.Int64("rows", n))
			}
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Background janitors
// 3. Tracer (flush pending spans from drained requests)
// 4. Kafka producer and storage connections
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Stop janitors.
	a.bgCancel()
	a.bgWG.Wait()

	// 3. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close Kafka producer and storage.
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	if a.bgCancel != nil {
		a.bgCancel()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errors.Join(errs...)
}
