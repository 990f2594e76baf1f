package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aistaff-ai/agentcore/internal/apierr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open("sqlite://" + filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCommitTurnAndReadBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	turn := TurnCommit{
		Session: Session{SessionID: "sess-1", TeamID: 1, Role: "general", Provider: "native", Model: "claude-sonnet-4-5"},
		UserMessage: Message{
			SessionID: "sess-1", TeamID: 1, Ordinal: 1, Role: RoleUser, Content: "hello",
		},
		ProducedMessages: []Message{
			{SessionID: "sess-1", TeamID: 1, Ordinal: 2, Role: RoleAssistant, Content: "hi there", EventsJSON: `[{"type":"provider_done"}]`},
		},
	}
	if err := s.CommitTurn(ctx, turn); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	sess, err := s.GetSession(ctx, 1, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Provider != "native" {
		t.Errorf("Provider = %q, want native", sess.Provider)
	}

	msgs, err := s.ListMessages(ctx, 1, "sess-1", 0, 100)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("unexpected roles: %v, %v", msgs[0].Role, msgs[1].Role)
	}
}

func TestGetSessionWrongTeamIsNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	turn := TurnCommit{
		Session:     Session{SessionID: "sess-2", TeamID: 1, Role: "general", Provider: "native", Model: "m"},
		UserMessage: Message{SessionID: "sess-2", TeamID: 1, Ordinal: 1, Role: RoleUser, Content: "hi"},
	}
	if err := s.CommitTurn(ctx, turn); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	_, err := s.GetSession(ctx, 2, "sess-2")
	if apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("expected NotFound for cross-team read, got %v", err)
	}
}

func TestAttachmentLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	turn := TurnCommit{
		Session:     Session{SessionID: "sess-3", TeamID: 1, Role: "general", Provider: "native", Model: "m"},
		UserMessage: Message{SessionID: "sess-3", TeamID: 1, Ordinal: 1, Role: RoleUser, Content: "make a doc"},
		ProducedMessages: []Message{
			{SessionID: "sess-3", TeamID: 1, Ordinal: 2, Role: RoleAssistant, Content: "done"},
		},
		Attachments: []Attachment{
			{FileID: "abc123", Kind: "generated", Filename: "out.pptx", ContentType: "application/vnd.ms-powerpoint", SizeBytes: 10, TeamID: 1, SourcePath: "/data/outputs/abc123.pptx"},
		},
		OutputLinks: []MessageAttachmentLink{{MessageIndex: 0, FileID: "abc123", Direction: "output"}},
	}
	if err := s.CommitTurn(ctx, turn); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	att, err := s.GetAttachment(ctx, 1, "abc123")
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if att.Filename != "out.pptx" {
		t.Errorf("Filename = %q", att.Filename)
	}

	referenced, err := s.IsReferenced(ctx, "abc123")
	if err != nil {
		t.Fatalf("IsReferenced: %v", err)
	}
	if !referenced {
		t.Errorf("expected attachment to be referenced")
	}

	if _, err := s.GetAttachment(ctx, 2, "abc123"); apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("expected NotFound for sibling team, got %v", err)
	}
}
