package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corelane/agentrun/internal/conversation"
)

// FileStore is a file-backed Store: one JSON record per session under a data
// directory, written atomically via a temp-file-then-rename, matching
// sessions/manager.go's Save(). Safe for concurrent use.
type FileStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	dir      string
}

// NewFileStore opens (and if necessary creates) a file-backed store rooted
// at dir, loading any previously persisted sessions. dir == "" yields an
// in-memory-only store (used by tests).
func NewFileStore(dir string) (*FileStore, error) {
	fs := &FileStore{sessions: map[string]*Session{}, dir: dir}
	if dir == "" {
		return fs, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create store dir: %w", err)
	}
	if err := fs.loadAll(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) loadAll() error {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return fmt.Errorf("session: read store dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(fs.dir, e.Name()))
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		fs.sessions[s.ID] = &s
	}
	return nil
}

func sanitizeFilename(id string) string {
	return strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(id)
}

// save performs the atomic temp-file + fsync + rename write.
func (fs *FileStore) save(s *Session) error {
	if fs.dir == "" {
		return nil
	}
	name := sanitizeFilename(s.ID)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("session: invalid id for filename: %q", s.ID)
	}
	finalPath := filepath.Join(fs.dir, name+".json")

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(fs.dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("session: create temp file: %w", err)
	}
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return fmt.Errorf("session: rename temp file: %w", err)
	}
	cleanup = false
	return nil
}

func (fs *FileStore) CreateSession(ctx context.Context, workingDir, name string, typ Type) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:                         uuid.NewString(),
		Name:                       name,
		WorkingDir:                 workingDir,
		Type:                       typ,
		CreatedAt:                  now,
		UpdatedAt:                  now,
		MemoryFlushCompactionCount: -1,
	}
	fs.mu.Lock()
	fs.sessions[s.ID] = s
	fs.mu.Unlock()
	if err := fs.save(s); err != nil {
		return nil, err
	}
	return s.clone(), nil
}

func (fs *FileStore) GetSession(ctx context.Context, id string, withConversation bool) (*Session, error) {
	fs.mu.RLock()
	s, ok := fs.sessions[id]
	fs.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := s.clone()
	if !withConversation {
		cp.Conversation = nil
	}
	return cp, nil
}

func (fs *FileStore) Update(ctx context.Context, id string) (*UpdateBuilder, error) {
	fs.mu.RLock()
	_, ok := fs.sessions[id]
	fs.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return newUpdateBuilder(id, fs.applyMutation), nil
}

// applyMutation mutates a private copy under the write lock, then persists
// it and swaps the pointer — so concurrent readers never see a half-applied
// update.
func (fs *FileStore) applyMutation(ctx context.Context, id string, fn func(*Session)) error {
	fs.mu.Lock()
	s, ok := fs.sessions[id]
	if !ok {
		fs.mu.Unlock()
		return ErrNotFound
	}
	cp := s.clone()
	fn(cp)
	cp.UpdatedAt = time.Now()
	fs.mu.Unlock()

	if err := fs.save(cp); err != nil {
		return err
	}

	fs.mu.Lock()
	fs.sessions[id] = cp
	fs.mu.Unlock()
	return nil
}

func (fs *FileStore) ReplaceConversation(ctx context.Context, id string, conv conversation.Conversation) error {
	return fs.applyMutation(ctx, id, func(s *Session) {
		s.Conversation = append(conversation.Conversation(nil), conv...)
		s.MessageCount = len(s.Conversation)
	})
}

func (fs *FileStore) AddMessage(ctx context.Context, id string, msg *conversation.Message) error {
	return fs.applyMutation(ctx, id, func(s *Session) {
		s.Conversation = append(s.Conversation, *msg)
		s.MessageCount = len(s.Conversation)
	})
}

func (fs *FileStore) TruncateConversation(ctx context.Context, id string, at time.Time) error {
	return fs.applyMutation(ctx, id, func(s *Session) {
		kept := s.Conversation[:0:0]
		for _, m := range s.Conversation {
			if m.CreatedAt.Before(at) {
				kept = append(kept, m)
			}
		}
		s.Conversation = kept
		s.MessageCount = len(kept)
	})
}

func (fs *FileStore) CopySession(ctx context.Context, id, suffix string) (*Session, error) {
	fs.mu.RLock()
	orig, ok := fs.sessions[id]
	fs.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := orig.clone()
	cp.ID = uuid.NewString()
	cp.Name = strings.TrimSpace(orig.Name + " " + suffix)
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	fs.mu.Lock()
	fs.sessions[cp.ID] = cp
	fs.mu.Unlock()
	if err := fs.save(cp); err != nil {
		return nil, err
	}
	return cp.clone(), nil
}

func (fs *FileStore) DeleteSession(ctx context.Context, id string) error {
	fs.mu.Lock()
	_, ok := fs.sessions[id]
	delete(fs.sessions, id)
	fs.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if fs.dir == "" {
		return nil
	}
	path := filepath.Join(fs.dir, sanitizeFilename(id)+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

func (fs *FileStore) ListSessions(ctx context.Context) ([]Summary, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]Summary, 0, len(fs.sessions))
	for _, s := range fs.sessions {
		out = append(out, s.toSummary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (fs *FileStore) ImportSession(ctx context.Context, data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: import: %w", err)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	fs.mu.Lock()
	fs.sessions[s.ID] = &s
	fs.mu.Unlock()
	if err := fs.save(&s); err != nil {
		return nil, err
	}
	return s.clone(), nil
}

func (fs *FileStore) ExportSession(ctx context.Context, id string) ([]byte, error) {
	fs.mu.RLock()
	s, ok := fs.sessions[id]
	fs.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return json.MarshalIndent(s, "", "  ")
}

func (fs *FileStore) SearchChatHistory(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	excluded := map[string]bool{}
	for _, id := range opts.Exclude {
		excluded[id] = true
	}

	var results []SearchResult
	for _, s := range fs.sessions {
		if excluded[s.ID] {
			continue
		}
		for _, m := range s.Conversation {
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
			results = append(results, SearchResult{
				SessionID: s.ID,
				MessageID: m.ID,
				Snippet:   snippet(text, 200),
				CreatedAt: m.CreatedAt,
			})
		}
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
