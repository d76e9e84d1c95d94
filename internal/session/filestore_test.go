package session

import (
	"context"
	"testing"

	"github.com/corelane/agentrun/internal/conversation"
)

func TestFileStoreCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	s, err := store.CreateSession(ctx, "/work", "test", TypeUser)
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
	if err := b.SetName("renamed").AccumulateTokens(Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, false).Apply(ctx); err != nil {
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

func TestFileStoreCopyAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s, _ := store.CreateSession(ctx, "/work", "orig", TypeUser)

	cp, err := store.CopySession(ctx, s.ID, "fork")
	if err != nil {
		t.Fatalf("CopySession: %v", err)
	}
	if cp.ID == s.ID {
		t.Fatalf("expected forked session to have a new id")
	}

	if err := store.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := store.GetSession(ctx, s.ID, false); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestTokensAccumulateCompaction(t *testing.T) {
	var tk Tokens
	tk.Accumulate(Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}, false)
	tk.Accumulate(Usage{InputTokens: 200, OutputTokens: 20, TotalTokens: 220}, false)
	if tk.AccumulatedTotal != 370 {
		t.Fatalf("expected accumulated total 370, got %d", tk.AccumulatedTotal)
	}
	tk.Accumulate(Usage{OutputTokens: 30}, true)
	if tk.CurrentInput != 30 || tk.CurrentOutput != 0 {
		t.Fatalf("expected compaction usage to reset current counters to summary output, got %+v", tk)
	}
}
