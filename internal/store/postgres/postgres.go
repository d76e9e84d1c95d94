// Package postgres opens a session.Store backed by Postgres via pgx, with
// schema managed by golang-migrate — the managed-deployment store backend
// (§4.2, AGENTRUN_STORE_BACKEND=postgres).
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/corelane/agentrun/internal/store/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open connects to dsn, applies any pending migrations, and returns a
// ready-to-use session.Store. The returned close func shuts down the
// connection pool; it does not drop any data.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, func() error, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if err := migrate_(db); err != nil {
		db.Close()
		return nil, nil, err
	}

	store := sqlstore.New(db, sqlstore.DialectPostgres)
	return store, db.Close, nil
}

// migrate_ applies every migration in migrations/ that hasn't already run.
// Named with a trailing underscore to avoid shadowing the migrate package
// import.
func migrate_(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: open migration source: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("postgres: init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: init migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: apply migrations: %w", err)
	}
	return nil
}
