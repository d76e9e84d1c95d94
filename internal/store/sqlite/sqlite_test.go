package sqlite

import (
	"context"
	"testing"

	"github.com/corelane/agentrun/internal/conversation"
	"github.com/corelane/agentrun/internal/session"
)

func TestSQLiteStoreCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	store, closeFn, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()

	s, err := store.CreateSession(ctx, "/work", "test", session.TypeUser)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	msg := conversation.NewMessage(conversation.RoleUser, conversation.Text{Text: "hi"})
	if err := store.AddMessage(ctx, s.ID, &msg); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	got, err := store.GetSession(ctx, s.ID, true)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.MessageCount != 1 {
		t.Fatalf("expected message count 1, got %d", got.MessageCount)
	}

	b, err := store.Update(ctx, s.ID)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := b.SetName("renamed").AccumulateTokens(session.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, false).Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, err = store.GetSession(ctx, s.ID, false)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Name != "renamed" {
		t.Fatalf("expected renamed session, got %q", got.Name)
	}
	if got.Tokens.AccumulatedTotal != 15 {
		t.Fatalf("expected accumulated total 15, got %d", got.Tokens.AccumulatedTotal)
	}
	if got.Conversation != nil {
		t.Fatalf("expected conversation to be omitted when withConversation=false")
	}
}

func TestSQLiteStoreListAndSearch(t *testing.T) {
	ctx := context.Background()
	store, closeFn, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()

	a, _ := store.CreateSession(ctx, "/work", "alpha", session.TypeUser)
	_, _ = store.CreateSession(ctx, "/work", "beta", session.TypeUser)

	msg := conversation.NewMessage(conversation.RoleUser, conversation.Text{Text: "needle in a haystack"})
	if err := store.AddMessage(ctx, a.ID, &msg); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	summaries, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(summaries))
	}

	results, err := store.SearchChatHistory(ctx, "needle", session.SearchOptions{})
	if err != nil {
		t.Fatalf("SearchChatHistory: %v", err)
	}
	if len(results) != 1 || results[0].SessionID != a.ID {
		t.Fatalf("expected one hit in session %s, got %+v", a.ID, results)
	}
}

func TestSQLiteStoreDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	store, closeFn, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()

	if err := store.DeleteSession(ctx, "missing"); err != session.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
