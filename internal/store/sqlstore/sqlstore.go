// Package sqlstore implements session.Store on top of database/sql, shared
// by the sqlite and postgres backends (internal/store/sqlite,
// internal/store/postgres): one JSON-blob row per session, the same shape
// session.FileStore uses on disk, just addressed through a SQL driver
// instead of a directory of files.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corelane/agentrun/internal/conversation"
	"github.com/corelane/agentrun/internal/session"
)

// Dialect distinguishes the placeholder syntax and schema DDL between the
// two drivers this store is opened with.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Store is a database/sql-backed session.Store. Build one via the sqlite or
// postgres package's Open function rather than directly.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an already-opened, already-migrated *sql.DB. Callers are
// responsible for applying schema (CreateSchema for sqlite's inline DDL, or
// golang-migrate for postgres).
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// CreateSchema issues the sessions table DDL directly — used by the sqlite
// backend, which has no separate migration runner.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	working_dir   TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	data          TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("sqlstore: create schema: %w", err)
	}
	return nil
}

// ph renders the nth (1-based) placeholder for this store's dialect.
func (s *Store) ph(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *Store) row(ctx context.Context, id string) (*session.Session, error) {
	query := fmt.Sprintf(`SELECT data FROM sessions WHERE id = %s`, s.ph(1))
	var data string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("sqlstore: decode session: %w", err)
	}
	return &sess, nil
}

func (s *Store) upsert(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sqlstore: encode session: %w", err)
	}

	var query string
	args := []any{sess.ID, sess.Name, sess.WorkingDir, string(sess.Type), sess.MessageCount, string(data), sess.CreatedAt, sess.UpdatedAt}
	if s.dialect == DialectPostgres {
		query = `INSERT INTO sessions (id, name, working_dir, type, message_count, data, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, working_dir = EXCLUDED.working_dir, type = EXCLUDED.type,
				message_count = EXCLUDED.message_count, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	} else {
		query = `INSERT INTO sessions (id, name, working_dir, type, message_count, data, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name, working_dir = excluded.working_dir, type = excluded.type,
				message_count = excluded.message_count, data = excluded.data, updated_at = excluded.updated_at`
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlstore: upsert session: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, workingDir, name string, typ session.Type) (*session.Session, error) {
	now := time.Now()
	sess := &session.Session{
		ID:                         uuid.NewString(),
		Name:                       name,
		WorkingDir:                 workingDir,
		Type:                       typ,
		CreatedAt:                  now,
		UpdatedAt:                  now,
		MemoryFlushCompactionCount: -1,
	}
	if err := s.upsert(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string, withConversation bool) (*session.Session, error) {
	sess, err := s.row(ctx, id)
	if err != nil {
		return nil, err
	}
	if !withConversation {
		sess.Conversation = nil
	}
	return sess, nil
}

func (s *Store) Update(ctx context.Context, id string) (*session.UpdateBuilder, error) {
	if _, err := s.row(ctx, id); err != nil {
		return nil, err
	}
	return session.NewUpdateBuilder(id, s.applyMutation)
}

func (s *Store) applyMutation(ctx context.Context, id string, fn func(*session.Session)) error {
	sess, err := s.row(ctx, id)
	if err != nil {
		return err
	}
	fn(sess)
	sess.UpdatedAt = time.Now()
	return s.upsert(ctx, sess)
}

func (s *Store) ReplaceConversation(ctx context.Context, id string, conv conversation.Conversation) error {
	return s.applyMutation(ctx, id, func(sess *session.Session) {
		sess.Conversation = append(conversation.Conversation(nil), conv...)
		sess.MessageCount = len(sess.Conversation)
	})
}

func (s *Store) AddMessage(ctx context.Context, id string, msg *conversation.Message) error {
	return s.applyMutation(ctx, id, func(sess *session.Session) {
		sess.Conversation = append(sess.Conversation, *msg)
		sess.MessageCount = len(sess.Conversation)
	})
}

func (s *Store) TruncateConversation(ctx context.Context, id string, at time.Time) error {
	return s.applyMutation(ctx, id, func(sess *session.Session) {
		kept := sess.Conversation[:0:0]
		for _, m := range sess.Conversation {
			if m.CreatedAt.Before(at) {
				kept = append(kept, m)
			}
		}
		sess.Conversation = kept
		sess.MessageCount = len(kept)
	})
}

func (s *Store) CopySession(ctx context.Context, id, suffix string) (*session.Session, error) {
	orig, err := s.row(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *orig
	cp.ID = uuid.NewString()
	cp.Name = strings.TrimSpace(orig.Name + " " + suffix)
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.Conversation = append(conversation.Conversation(nil), orig.Conversation...)
	if err := s.upsert(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM sessions WHERE id = %s`, s.ph(1))
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("sqlstore: delete session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context) ([]session.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, type, message_count, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Summary
	for rows.Next() {
		var sum session.Summary
		var typ string
		if err := rows.Scan(&sum.ID, &sum.Name, &typ, &sum.MessageCount, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlstore: scan session summary: %w", err)
		}
		sum.Type = session.Type(typ)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) ImportSession(ctx context.Context, data []byte) (*session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("sqlstore: import session: %w", err)
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if err := s.upsert(ctx, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) ExportSession(ctx context.Context, id string) ([]byte, error) {
	sess, err := s.row(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(sess, "", "  ")
}

// SearchChatHistory scans every session's conversation in process, matching
// session.FileStore's behavior exactly — a dedicated full-text index is out
// of scope for either SQL backend here (§4.2 names no indexing requirement
// beyond "searchable").
func (s *Store) SearchChatHistory(ctx context.Context, query string, opts session.SearchOptions) ([]session.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: search: %w", err)
	}
	defer rows.Close()

	excluded := map[string]bool{}
	for _, id := range opts.Exclude {
		excluded[id] = true
	}

	var results []session.SearchResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlstore: scan session: %w", err)
		}
		var sess session.Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			continue
		}
		if excluded[sess.ID] {
			continue
		}
		for _, m := range sess.Conversation {
			if opts.After != nil && m.CreatedAt.Before(*opts.After) {
				continue
			}
			if opts.Before != nil && m.CreatedAt.After(*opts.Before) {
				continue
			}
			text := m.Text()
			if query != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(query)) {
				continue
			}
			results = append(results, session.SearchResult{
				SessionID: sess.ID,
				MessageID: m.ID,
				Snippet:   snippet(text, 200),
				CreatedAt: m.CreatedAt,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
