// Package config loads the storefront service configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"production"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8090"`

	// Backend REST API and public site
	APIBaseURL string `env:"NEXT_PUBLIC_API_BASE_URL" envDefault:"http://localhost:8080/api"`
	SiteURL    string `env:"NEXT_PUBLIC_SITE_URL" envDefault:"http://localhost:3000"`

	// Outbound HTTP
	BackendTimeout    time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`
	BackendMaxRetries int           `env:"BACKEND_MAX_RETRIES" envDefault:"2"`

	// Circuit breaker settings for backend and geolocation calls
	CBMaxRequests  uint32        `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     time.Duration `env:"CB_INTERVAL" envDefault:"60s"`
	CBTimeout      time.Duration `env:"CB_TIMEOUT" envDefault:"30s"`
	CBFailureRatio float64       `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32        `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// IP geolocation
	GeolocationURL     string        `env:"GEOLOCATION_URL" envDefault:"https://ipapi.co"`
	GeolocationTimeout time.Duration `env:"GEOLOCATION_TIMEOUT" envDefault:"3s"`

	// Sessions
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionIdleTTL    time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	SessionSweepEvery time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	SessionCookie     string        `env:"SESSION_COOKIE" envDefault:"sf_session"`
	CookieSecure      bool          `env:"COOKIE_SECURE" envDefault:"false"`
	RecentlyViewedMax int           `env:"RECENTLY_VIEWED_MAX" envDefault:"10"`

	// Storage
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"storefront_secret"`
	PostgresDB   string `env:"STOREFRONT_DB_NAME" envDefault:"storefront"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBPurgeInterval   time.Duration `env:"DB_PURGE_INTERVAL" envDefault:"10m"`
	DBSlowQuery       time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Kafka. Empty disables publishing; events are then only logged.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Rate limiting for credential endpoints
	AuthRateRPS   float64 `env:"AUTH_RATE_RPS" envDefault:"1"`
	AuthRateBurst int     `env:"AUTH_RATE_BURST" envDefault:"5"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofEnabled      bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	for name, raw := range map[string]string{
		"NEXT_PUBLIC_API_BASE_URL": c.APIBaseURL,
		"NEXT_PUBLIC_SITE_URL":     c.SiteURL,
		"GEOLOCATION_URL":          c.GeolocationURL,
	} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
	}
	if !slices.Contains([]string{StorageMemory, StorageRedis, StoragePostgres}, c.StorageDriver) {
		return fmt.Errorf("STORAGE_DRIVER must be one of memory, redis, postgres; got %q", c.StorageDriver)
	}
	if c.GeolocationTimeout <= 0 {
		return fmt.Errorf("GEOLOCATION_TIMEOUT must be positive")
	}
	if c.SessionIdleTTL <= 0 || c.SessionSweepEvery <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL and SESSION_SWEEP_INTERVAL must be positive")
	}
	if c.RecentlyViewedMax < 1 {
		return fmt.Errorf("RECENTLY_VIEWED_MAX must be at least 1, got %d", c.RecentlyViewedMax)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0, 1], got %f", c.CBFailureRatio)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// AllowedOrigins returns the CORS origins: the explicit list, or the public
// site URL when none is configured. In development with no explicit list it
// returns nil, which lets any origin through.
func (c *Config) AllowedOrigins() []string {
	if len(c.CORSAllowedOrigins) > 0 {
		return c.CORSAllowedOrigins
	}
	if c.Environment == "development" {
		return nil
	}
	u, err := url.Parse(c.SiteURL)
	if err != nil {
		return nil
	}
	return []string{u.Scheme + "://" + u.Host}
}
