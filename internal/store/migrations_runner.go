package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jw6ventures/bookings/internal/migrations"
)

// PgxPool represents the subset of pgxpool.Pool used by migration helpers.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type migration struct {
	version string
	sql     string
}

const (
	migrationTableExistsSQL = `SELECT EXISTS (
        SELECT 1 FROM information_schema.tables
        WHERE table_schema='public' AND table_name='schema_migrations'
)`
	countTablesSQL = `SELECT COUNT(*) FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')`
	createMigrationTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version TEXT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	migrationAppliedSQL = `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version=$1)`
	recordMigrationSQL  = `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`
)

// ApplyMigrations brings the schema up to date with the embedded migrations.
// A database that already holds tables but no schema_migrations table is
// treated as having the initial migration applied.
func ApplyMigrations(ctx context.Context, pool PgxPool) error {
	pending, err := loadMigrations(migrations.Files)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	tracked, err := queryBool(ctx, pool, migrationTableExistsSQL)
	if err != nil {
		return fmt.Errorf("check migration table: %w", err)
	}

	if !tracked {
		var tables int
		if err := pool.QueryRow(ctx, countTablesSQL).Scan(&tables); err != nil {
			return fmt.Errorf("count tables: %w", err)
		}
		if _, err := pool.Exec(ctx, createMigrationTableSQL); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}
		if tables > 0 {
			if _, err := pool.Exec(ctx, recordMigrationSQL, pending[0].version); err != nil {
				return fmt.Errorf("record migration %s: %w", pending[0].version, err)
			}
			slog.InfoContext(ctx, "adopted existing schema", "version", pending[0].version)
		}
	}

	for _, m := range pending {
		applied, err := queryBool(ctx, pool, migrationAppliedSQL, m.version)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.version, err)
		}
		if applied {
			continue
		}
		if err := m.apply(ctx, pool); err != nil {
			return err
		}
		slog.InfoContext(ctx, "applied migration", "version", m.version)
	}

	return nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		contents, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		out = append(out, migration{version: entry.Name(), sql: string(contents)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func (m migration) apply(ctx context.Context, pool PgxPool) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.version, err)
	}

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("apply migration %s: %w", m.version, err)
	}
	if _, err := tx.Exec(ctx, recordMigrationSQL, m.version); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("record migration %s: %w", m.version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.version, err)
	}
	return nil
}

func queryBool(ctx context.Context, pool PgxPool, sql string, args ...any) (bool, error) {
	var v bool
	if err := pool.QueryRow(ctx, sql, args...).Scan(&v); err != nil {
		return false, err
	}
	return v, nil
}
