package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestHistoryMirrorSyncAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	turn := TurnCommit{
		Session: Session{SessionID: "sess-mirror", TeamID: 7, Role: "general", Provider: "native", Model: "claude-sonnet-4-5"},
		UserMessage: Message{
			SessionID: "sess-mirror", TeamID: 7, Ordinal: 1, Role: RoleUser, Content: "where is the invoice pdf",
		},
		ProducedMessages: []Message{
			{SessionID: "sess-mirror", TeamID: 7, Ordinal: 2, Role: RoleAssistant, Content: "the invoice pdf is in outputs/"},
		},
	}
	if err := s.CommitTurn(ctx, turn); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	mirror := NewHistoryMirror(filepath.Join(t.TempDir(), "history_sessions"))
	if err := mirror.Sync(ctx, s, 7, "sess-mirror"); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	matches, err := mirror.Search(7, "sess-mirror", "invoice")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}

	noMatches, err := mirror.Search(7, "sess-mirror", "nonexistent-term")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(noMatches) != 0 {
		t.Fatalf("expected 0 matches, got %d", len(noMatches))
	}
}

func TestHistoryMirrorSearchMissingSessionReturnsEmpty(t *testing.T) {
	mirror := NewHistoryMirror(t.TempDir())
	matches, err := mirror.Search(1, "never-synced", "anything")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches for an unsynced session, got %d", len(matches))
	}
}

func TestHistoryMirrorDeleteIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	turn := TurnCommit{
		Session:     Session{SessionID: "sess-del", TeamID: 3, Role: "general", Provider: "native", Model: "m"},
		UserMessage: Message{SessionID: "sess-del", TeamID: 3, Ordinal: 1, Role: RoleUser, Content: "hi"},
	}
	if err := s.CommitTurn(ctx, turn); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	mirror := NewHistoryMirror(t.TempDir())
	if err := mirror.Sync(ctx, s, 3, "sess-del"); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := mirror.Delete(3, "sess-del"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mirror.Delete(3, "sess-del"); err != nil {
		t.Fatalf("second Delete should be a no-op, got: %v", err)
	}
}
