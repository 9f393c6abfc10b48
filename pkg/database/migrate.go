package database

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// migrationLockKey serialises migrations across replicas starting together.
const migrationLockKey int64 = 0x73746f7265 // "store"

// Migrator is the subset of *pgxpool.Pool needed to apply migrations.
type Migrator interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RunMigrations applies every .up.sql file at the root of migrations in name
// order, each in its own transaction, and records it in schema_migrations.
// Lost connections are retried from the first pending file.
func RunMigrations(ctx context.Context, db Migrator, migrations fs.FS, logger *slog.Logger) error {
	err := DefaultRetry().Do(ctx, logger, "run migrations", IsTransient, func(ctx context.Context) error {
		return migrate(ctx, db, migrations, logger)
	})
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func migrate(ctx context.Context, db Migrator, migrations fs.FS, logger *slog.Logger) error {
	if _, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	pending, err := pendingMigrations(ctx, db, migrations)
	if err != nil {
		return err
	}
	for _, name := range pending {
		applied, err := applyMigration(ctx, db, migrations, name)
		if err != nil {
			return err
		}
		if applied {
			logger.Info("migration applied", slog.String("version", name))
		} else {
			logger.Debug("migration applied concurrently, skipping", slog.String("version", name))
		}
	}
	return nil
}

// pendingMigrations lists .up.sql files not yet in schema_migrations.
func pendingMigrations(ctx context.Context, db Migrator, migrations fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	rows, err := db.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}

	var pending []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") && !slices.Contains(applied, e.Name()) {
			pending = append(pending, e.Name())
		}
	}
	slices.Sort(pending)
	return pending, nil
}

// applyMigration runs one file under a transaction-scoped advisory lock and
// reports false if another process recorded it first.
func applyMigration(ctx context.Context, db Migrator, migrations fs.FS, name string) (bool, error) {
	content, err := fs.ReadFile(migrations, name)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", name, err)
	}
	applied, err := runInTx(ctx, tx, name, string(content))
	if err != nil || !applied {
		_ = tx.Rollback(ctx)
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", name, err)
	}
	return true, nil
}

func runInTx(ctx context.Context, tx pgx.Tx, name, sql string) (bool, error) {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return false, fmt.Errorf("lock for migration %s: %w", name, err)
	}
	tag, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING", name)
	if err != nil {
		return false, fmt.Errorf("record migration %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("execute migration %s: %w", name, err)
	}
	return true, nil
}
