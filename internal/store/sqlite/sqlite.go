// Package sqlite opens an embedded session.Store backed by modernc.org/sqlite
// (pure Go, no cgo) — the default, zero-ops store backend (§4.2,
// AGENTRUN_STORE_BACKEND=sqlite).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/corelane/agentrun/internal/store/sqlstore"
)

// Open creates (if necessary) the sqlite file at path, applies the session
// schema, and returns a ready-to-use session.Store. path == ":memory:" opens
// an in-process-only database, used by tests.
func Open(ctx context.Context, path string) (*sqlstore.Store, func() error, error) {
	if path != ":memory:" {
		if expanded, err := expandHome(path); err == nil {
			path = expanded
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("sqlite: create data dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// modernc.org/sqlite serializes writes at the connection level; a single
	// connection avoids SQLITE_BUSY under concurrent Store callers instead
	// of adding retry/backoff for a lock contention that a pool would only
	// manufacture.
	db.SetMaxOpenConns(1)

	store := sqlstore.New(db, sqlstore.DialectSQLite)
	if err := store.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db.Close, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
