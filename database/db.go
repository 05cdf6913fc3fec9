// database/db.go
package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"rolewarden/common"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func dsnFromEnv() string {
	if s := common.Env("ROLEWARDEN_DB_DSN", ""); s != "" {
		return s
	}
	host := common.Env("ROLEWARDEN_DB_HOST", "postgres")
	port := common.Env("ROLEWARDEN_DB_PORT", "5432")
	user := common.Env("ROLEWARDEN_DB_USER", "rolewarden")
	pass := common.Env("ROLEWARDEN_DB_PASS", "rolewarden")
	name := common.Env("ROLEWARDEN_DB_NAME", "rolewarden")
	ssl := common.Env("ROLEWARDEN_DB_SSLMODE", "disable") // "require" if you run TLS
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, name, ssl)
}

// InitDBFromEnv connects the shared pool and applies pending migrations
// unless ROLEWARDEN_DB_MIGRATE is off.
func InitDBFromEnv(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(dsnFromEnv())
	if err != nil {
		return err
	}
	if n := common.EnvInt("ROLEWARDEN_DB_MAX_CONNS", 12); n > 0 {
		cfg.MaxConns = int32(n)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return err
	}
	common.DB = pool
	common.InfoLog("db: connected to Postgres (max_conns=%d)", cfg.MaxConns)

	if common.EnvBool("ROLEWARDEN_DB_MIGRATE", "true") {
		if err := runMigrations(ctx, pool); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	return nil
}

// migrationVersion extracts the numeric prefix of 001_init.sql style names.
// Names without one come back as 0 and are skipped.
func migrationVersion(name string) int {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0
	}
	return v
}

// runMigrations applies every embedded migration newer than the recorded
// schema version, all inside one transaction.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version int PRIMARY KEY)`); err != nil {
		return err
	}
	var current int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version),0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}

	// Glob returns the embedded names sorted, and the zero-padded prefixes
	// make lexical order numeric order.
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}

	for _, path := range names {
		name := strings.TrimPrefix(path, "migrations/")
		v := migrationVersion(name)
		if v == 0 || v <= current {
			continue
		}
		sqlBytes, err := migrationsFS.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, v); err != nil {
			return err
		}
		common.InfoLog("db: applied migration %s", name)
	}

	return tx.Commit(ctx)
}
