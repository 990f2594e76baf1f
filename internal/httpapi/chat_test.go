package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aistaff-ai/agentcore/internal/artifact"
	"github.com/aistaff-ai/agentcore/internal/auth"
	"github.com/aistaff-ai/agentcore/internal/capability"
	"github.com/aistaff-ai/agentcore/internal/config"
	"github.com/aistaff-ai/agentcore/internal/docrender"
	"github.com/aistaff-ai/agentcore/internal/provider"
	"github.com/aistaff-ai/agentcore/internal/session"
	"github.com/aistaff-ai/agentcore/internal/store"
	"github.com/aistaff-ai/agentcore/internal/tools"
)

func newTestServer(t *testing.T, mock *provider.Mock) *Server {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open("sqlite://" + filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	artifacts, err := artifact.New(filepath.Join(dir, "outputs"), db, "test-secret")
	if err != nil {
		t.Fatalf("artifact.New: %v", err)
	}

	cfg := &config.Config{
		ModelDefault: "mock-model", WorkspaceDefault: filepath.Join(dir, "workspace"),
		EnableShell: true, EnableWrite: true, EnableBrowser: true, AllowDangerous: true,
		MaxSteps: 5, MaxSessionMessages: 50, MaxContextChars: 40_000,
		HistorySessionsDir: filepath.Join(dir, "history_sessions"),
	}

	return New(cfg, Server{
		DB: db, Sessions: session.New(0, 0), Artifacts: artifacts,
		Tools:     tools.NewRegistry(tools.Deps{Artifacts: artifacts, DB: db}),
		Providers: []provider.Provider{mock},
		Renderer:  docrender.PlaintextRenderer{},
		AuthN:     auth.Static{Principal: auth.Principal{UserID: 1, TeamID: 1, Role: capability.RoleOwner}},
		Workspace: DefaultWorkspaceResolver{Base: filepath.Join(dir, "workspace")},
	})
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
}

func doChat(t *testing.T, s *Server, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHandleChatBuffered(t *testing.T) {
	mock := provider.NewMock(provider.Capabilities{}, provider.CompleteResponse{Content: "hello there"})
	s := newTestServer(t, mock)

	rec := doChat(t, s, map[string]any{"message": "hi", "session_id": "sess-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Assistant != "hello there" {
		t.Fatalf("unexpected assistant text: %q", resp.Assistant)
	}
	if resp.SessionID != "sess-1" {
		t.Fatalf("unexpected session id: %q", resp.SessionID)
	}

	got, err := s.DB.GetSession(t.Context(), 1, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Provider != "mock" {
		t.Fatalf("expected persisted provider mock, got %q", got.Provider)
	}
}

func TestHandleChatRejectsMissingMessage(t *testing.T) {
	mock := provider.NewMock(provider.Capabilities{}, provider.CompleteResponse{Content: "x"})
	s := newTestServer(t, mock)

	rec := doChat(t, s, map[string]any{"session_id": "sess-2"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleChatRejectsUnknownSecurityPreset(t *testing.T) {
	mock := provider.NewMock(provider.Capabilities{}, provider.CompleteResponse{Content: "x"})
	s := newTestServer(t, mock)

	rec := doChat(t, s, map[string]any{
		"message": "hi", "session_id": "sess-preset", "security_preset": "yolo",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown security_preset, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleChatDeniesExplicitDangerousWithoutUnsandboxedProvider(t *testing.T) {
	mock := provider.NewMock(provider.Capabilities{CanRunUnsandboxed: false}, provider.CompleteResponse{Content: "x"})
	s := newTestServer(t, mock)

	rec := doChat(t, s, map[string]any{
		"message": "hi", "session_id": "sess-3",
		"security_preset": "custom", "enable_dangerous": true,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleChatSecondTurnReusesSession(t *testing.T) {
	mock := provider.NewMock(provider.Capabilities{}, provider.CompleteResponse{Content: "first"}, provider.CompleteResponse{Content: "second"})
	s := newTestServer(t, mock)

	doChat(t, s, map[string]any{"message": "one", "session_id": "sess-4"})
	rec := doChat(t, s, map[string]any{"message": "two", "session_id": "sess-4"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	msgs, err := s.DB.ListMessages(t.Context(), 1, "sess-4", 0, 100)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) < 4 {
		t.Fatalf("expected at least 4 persisted messages across two turns, got %d", len(msgs))
	}
}

func TestHandleChatCrossTeamSessionReuseIsNotFound(t *testing.T) {
	mock := provider.NewMock(provider.Capabilities{}, provider.CompleteResponse{Content: "hi"})
	s := newTestServer(t, mock)
	doChat(t, s, map[string]any{"message": "hi", "session_id": "sess-xteam"})

	other := *s
	other.AuthN = auth.Static{Principal: auth.Principal{UserID: 2, TeamID: 2, Role: capability.RoleOwner}}
	rec := doChat(t, &other, map[string]any{"message": "hi again", "session_id": "sess-xteam"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-team session reuse, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleChatConcurrentTurnsOnSameSessionDoNotCollideOrdinals(t *testing.T) {
	mock := &provider.Mock{
		Delay:     20 * time.Millisecond,
		Responses: []provider.CompleteResponse{{Content: "first"}, {Content: "second"}},
	}
	s := newTestServer(t, mock)

	// Seed the session first so both racing requests hit the reuse path
	// rather than one of them creating it.
	doChat(t, s, map[string]any{"message": "seed", "session_id": "sess-race"})

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			rec := doChat(t, s, map[string]any{"message": "concurrent", "session_id": "sess-race"})
			if rec.Code != http.StatusOK {
				t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
		}()
	}
	wg.Wait()

	msgs, err := s.DB.ListMessages(t.Context(), 1, "sess-race", 0, 100)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	seen := make(map[int64]bool)
	for _, m := range msgs {
		if seen[m.Ordinal] {
			t.Fatalf("duplicate ordinal %d among persisted messages: %+v", m.Ordinal, msgs)
		}
		seen[m.Ordinal] = true
	}
}

func TestHandleListSessionsAndDelete(t *testing.T) {
	mock := provider.NewMock(provider.Capabilities{}, provider.CompleteResponse{Content: "hi"})
	s := newTestServer(t, mock)
	doChat(t, s, map[string]any{"message": "hi", "session_id": "sess-5"})

	req := httptest.NewRequest(http.MethodGet, "/history/sessions", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/history/sessions/sess-5", nil)
	delReq.Header.Set("Authorization", "Bearer anything")
	delRec := httptest.NewRecorder()
	s.Routes().ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", delRec.Code)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/history/sessions/sess-5", nil)
	getReq.Header.Set("Authorization", "Bearer anything")
	getRec := httptest.NewRecorder()
	s.Routes().ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", getRec.Code)
	}
}
