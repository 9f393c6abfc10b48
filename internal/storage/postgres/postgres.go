package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Migrations holds the schema for the key-value table.
//
//go:embed migrations/*.up.sql
var Migrations embed.FS

// DB is the subset of *pgxpool.Pool the backend needs; pgxmock satisfies it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Backend implements storage.Backend on a single Postgres table.
type Backend struct {
	db  DB
	ttl time.Duration
	now func() time.Time
}

// NewBackend creates a Postgres-backed storage backend. A zero ttl keeps rows forever.
func NewBackend(db DB, ttl time.Duration) *Backend {
	return &Backend{
		db:  db,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the value for key unless it is absent or expired.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM storefront_kv
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`

	var value []byte
	err := b.db.QueryRow(ctx, query, key, b.now()).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("key", key)
		}
		return nil, fmt.Errorf("select storefront_kv: %w", err)
	}
	return value, nil
}

// Set upserts value under key and refreshes its expiry.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO storefront_kv (key, value, updated_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`

	now := b.now()
	var expiresAt *time.Time
	if b.ttl > 0 {
		exp := now.Add(b.ttl)
		expiresAt = &exp
	}

	if _, err := b.db.Exec(ctx, query, key, value, now, expiresAt); err != nil {
		return fmt.Errorf("upsert storefront_kv: %w", err)
	}
	return nil
}

// Delete removes key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.Exec(ctx, `DELETE FROM storefront_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete storefront_kv: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.Ping(ctx)
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (b *Backend) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := b.db.Exec(ctx, `DELETE FROM storefront_kv WHERE expires_at IS NOT NULL AND expires_at <= $1`, b.now())
	if err != nil {
		return 0, fmt.Errorf("purge storefront_kv: %w", err)
	}
	return tag.RowsAffected(), nil
}
