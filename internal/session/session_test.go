package session

import (
	"testing"
	"time"

	"github.com/aistaff-ai/agentcore/internal/apierr"
)

func TestGetOrCreateFreshSession(t *testing.T) {
	s := New(time.Hour, 100)
	st, err := s.GetOrCreate(NewSessionParams{SessionID: "s1", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "sys", WorkspaceRoot: "/ws"})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(st.Messages) != 1 || st.Messages[0].Role != "system" {
		t.Fatalf("expected a single seeded system message, got %+v", st.Messages)
	}
}

func TestGetOrCreateRejectsOwnershipMismatch(t *testing.T) {
	s := New(time.Hour, 100)
	if _, err := s.GetOrCreate(NewSessionParams{SessionID: "s1", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "sys", WorkspaceRoot: "/ws"}); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	_, err := s.GetOrCreate(NewSessionParams{SessionID: "s1", UserID: 2, TeamID: 1, Role: "general", SystemPrompt: "sys", WorkspaceRoot: "/ws"})
	if apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("expected not_found for cross-user reuse, got %v", err)
	}
}

func TestGetOrCreateTreatsCrossTeamSessionAsNotFound(t *testing.T) {
	s := New(time.Hour, 100)
	if _, err := s.GetOrCreate(NewSessionParams{SessionID: "s1", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "sys", WorkspaceRoot: "/ws"}); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	_, err := s.GetOrCreate(NewSessionParams{SessionID: "s1", UserID: 1, TeamID: 2, Role: "general", SystemPrompt: "sys", WorkspaceRoot: "/ws"})
	if apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("expected not_found for cross-team reuse, got %v", err)
	}
}

func TestAssertAccessTreatsCrossTeamSessionAsNotFound(t *testing.T) {
	s := New(time.Hour, 100)
	s.GetOrCreate(NewSessionParams{SessionID: "s1", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "sys", WorkspaceRoot: "/ws"})
	if err := s.AssertAccess("s1", 1, 2); apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("expected not_found for cross-team access, got %v", err)
	}
}

func TestGetOrCreateResetsOnWorkspaceDrift(t *testing.T) {
	s := New(time.Hour, 100)
	st, _ := s.GetOrCreate(NewSessionParams{SessionID: "s1", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "sys", WorkspaceRoot: "/ws-a"})
	st.OpenCodeSessionID = "oc-123"
	st.Messages = append(st.Messages, ChatMessage{Role: "user", Content: "hi"})

	st2, err := s.GetOrCreate(NewSessionParams{SessionID: "s1", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "sys2", WorkspaceRoot: "/ws-b"})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if st2.OpenCodeSessionID != "" {
		t.Fatalf("expected continuation handle reset on workspace drift")
	}
	if len(st2.Messages) != 1 {
		t.Fatalf("expected history reseeded on workspace drift, got %+v", st2.Messages)
	}
}

func TestGetOrCreateRefreshesSystemPromptWithoutDrift(t *testing.T) {
	s := New(time.Hour, 100)
	st, _ := s.GetOrCreate(NewSessionParams{SessionID: "s1", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "sys-v1", WorkspaceRoot: "/ws"})
	st.Messages = append(st.Messages, ChatMessage{Role: "user", Content: "hi"})

	st2, err := s.GetOrCreate(NewSessionParams{SessionID: "s1", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "sys-v2", WorkspaceRoot: "/ws"})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(st2.Messages) != 2 {
		t.Fatalf("expected history preserved without drift, got %+v", st2.Messages)
	}
	if st2.Messages[0].Content != "sys-v2" {
		t.Fatalf("expected system prompt refreshed in place, got %q", st2.Messages[0].Content)
	}
}

func TestAssertAccessFailsForUnknownSession(t *testing.T) {
	s := New(time.Hour, 100)
	if err := s.AssertAccess("missing", 1, 1); apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestAssertAccessExpires(t *testing.T) {
	s := New(time.Millisecond, 100)
	s.GetOrCreate(NewSessionParams{SessionID: "s1", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "sys", WorkspaceRoot: "/ws"})
	time.Sleep(5 * time.Millisecond)
	if err := s.AssertAccess("s1", 1, 1); apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("expected expired session to report not_found, got %v", err)
	}
}

func TestMaxSessionsEvictsOldest(t *testing.T) {
	s := New(0, 2)
	s.GetOrCreate(NewSessionParams{SessionID: "a", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "s", WorkspaceRoot: "/ws"})
	time.Sleep(time.Millisecond)
	s.GetOrCreate(NewSessionParams{SessionID: "b", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "s", WorkspaceRoot: "/ws"})
	time.Sleep(time.Millisecond)
	s.GetOrCreate(NewSessionParams{SessionID: "c", UserID: 1, TeamID: 1, Role: "general", SystemPrompt: "s", WorkspaceRoot: "/ws"})

	if err := s.AssertAccess("a", 1, 1); apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("expected oldest session 'a' evicted, got %v", err)
	}
	if err := s.AssertAccess("c", 1, 1); err != nil {
		t.Fatalf("expected newest session 'c' retained: %v", err)
	}
}
