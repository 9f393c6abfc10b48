package database

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// AppName is reported as application_name in pg_stat_activity.
	AppName string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// SlowQueryThreshold logs queries at warn level once exceeded; zero disables.
	SlowQueryThreshold time.Duration

	Retry Retry
}

// DefaultPostgresConfig returns defaults for a local session database.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:               "localhost",
		Port:               5432,
		User:               "storefront",
		Password:           "storefront_secret",
		DBName:             "storefront",
		SSLMode:            "disable",
		AppName:            "storefront",
		MaxConns:           10,
		MinConns:           2,
		MaxConnLifetime:    time.Hour,
		MaxConnIdleTime:    30 * time.Minute,
		SlowQueryThreshold: 200 * time.Millisecond,
		Retry:              DefaultRetry(),
	}
}

// DSN returns the connection URL with escaped credentials.
func (c *PostgresConfig) DSN() string {
	q := url.Values{"sslmode": {c.SSLMode}}
	if c.AppName != "" {
		q.Set("application_name", c.AppName)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// NewPostgresPool opens and pings a pool, retrying while the server is not
// reachable yet. logger may be nil.
func NewPostgresPool(ctx context.Context, cfg *PostgresConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.Tracer = NewQueryTracer(logger, cfg.SlowQueryThreshold)

	retry := cfg.Retry
	if retry.Attempts == 0 {
		retry = DefaultRetry()
	}

	var pool *pgxpool.Pool
	err = retry.Do(ctx, logger, "connect to postgres", nil, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}
