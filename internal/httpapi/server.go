// Package httpapi is the Chat Entry component: the one edge package that
// imports net/http. It authorizes, assembles, invokes the agent loop,
// persists, and exposes the download/history/generator surface named in
// spec §6. Routing follows Go 1.22+ method+pattern ServeMux dispatch
// directly, matching the teacher's own net/http-based daemons
// (pkg/daemon/daemon.go, internal/daemon/workspace.go) rather than a
// third-party router — the teacher already has the server-loop and SSE
// idiom this component needs.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/artifact"
	"github.com/aistaff-ai/agentcore/internal/auth"
	"github.com/aistaff-ai/agentcore/internal/capability"
	"github.com/aistaff-ai/agentcore/internal/config"
	"github.com/aistaff-ai/agentcore/internal/docrender"
	"github.com/aistaff-ai/agentcore/internal/provider"
	"github.com/aistaff-ai/agentcore/internal/ratelimit"
	"github.com/aistaff-ai/agentcore/internal/session"
	"github.com/aistaff-ai/agentcore/internal/store"
	"github.com/aistaff-ai/agentcore/internal/tools"
	"github.com/aistaff-ai/agentcore/internal/webhook"
)

// WorkspaceResolver picks the filesystem root a request's tools operate
// under, per spec §4.1's precedence (project → team → server default).
// Project/team CRUD are external collaborators (spec §1), so this is an
// interface rather than a direct table read; DefaultWorkspaceResolver
// below is the standalone fallback when no such collaborator is wired.
type WorkspaceResolver interface {
	ResolveWorkspaceRoot(ctx context.Context, teamID int64, projectID *int64) (string, error)
}

// DefaultWorkspaceResolver ignores project_id (there is no project table in
// this core) and returns the configured server default (Base) for every
// team; teams are not given separate directories. That is sufficient for a
// standalone deployment and for tests.
type DefaultWorkspaceResolver struct {
	Base string
}

func (d DefaultWorkspaceResolver) ResolveWorkspaceRoot(ctx context.Context, teamID int64, projectID *int64) (string, error) {
	return d.Base, nil
}

// Server bundles every collaborator the Chat Entry component dispatches
// to. It holds no mutable state of its own beyond what its fields already
// own (session.Store, artifact.Store, etc. are themselves concurrency-safe).
type Server struct {
	Config      *config.Config
	DB          *store.Store
	Sessions    *session.Store
	Artifacts   *artifact.Store
	Tools       *tools.Registry
	Providers   []provider.Provider // preference order; index 0 is the default
	AuthN       auth.Resolver
	Workspace   WorkspaceResolver
	Webhooks    *webhook.Dispatcher
	Renderer    docrender.Renderer
	History     *store.HistoryMirror
	RateLimiter *ratelimit.Limiter // nil disables rate limiting (no Redis configured)
	Log         *slog.Logger

	// turnLocks serializes per-session turns end to end (spec §5/§9): a
	// session_id's lock is acquired at the start of prepareTurn, before the
	// session is read, and released only after commitTurn finishes, so two concurrent /chat
	// calls on the same session can never race on ordinal assignment.
	turnLocks *session.TurnLocks
}

func New(cfg *config.Config, deps Server) *Server {
	s := deps
	s.Config = cfg
	if s.Log == nil {
		s.Log = slog.Default()
	}
	if s.Workspace == nil {
		s.Workspace = DefaultWorkspaceResolver{Base: cfg.WorkspaceDefault}
	}
	if s.History == nil {
		s.History = store.NewHistoryMirror(cfg.HistorySessionsDir)
	}
	s.turnLocks = session.NewTurnLocks()
	return &s
}

// Routes builds the method+pattern ServeMux, matching the shape every
// handler file in this package registers into.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat", s.handleChat)

	mux.HandleFunc("GET /history/sessions", s.handleListSessions)
	mux.HandleFunc("GET /history/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /history/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /history/files", s.handleListFiles)
	mux.HandleFunc("GET /history/search", s.handleSearchHistory)

	mux.HandleFunc("POST /files/upload-image", s.handleUploadImage)
	mux.HandleFunc("POST /files/upload-file", s.handleUploadFile)
	mux.HandleFunc("GET /files/{file_id}", s.handleDownloadFile)
	mux.HandleFunc("GET /files/preview/{file_id}", s.handlePreviewFile)

	mux.HandleFunc("POST /docs/{kind}", s.handleDocGenerate)
	mux.HandleFunc("POST /prototype/generate", s.handlePrototypeGenerate)

	mux.HandleFunc("POST /browser/start", s.handleBrowserStart)
	mux.HandleFunc("POST /browser/navigate", s.handleBrowserNavigate)
	mux.HandleFunc("POST /browser/screenshot", s.handleBrowserScreenshot)

	if s.Webhooks != nil {
		mux.HandleFunc("POST /webhooks/{adapter}", s.handleWebhook)
	}

	return mux
}

// principal extracts the bearer token and resolves it; every handler in
// this package calls this first, matching spec §4.11 step 1.
func (s *Server) principal(r *http.Request) (*auth.Principal, error) {
	authz := r.Header.Get("Authorization")
	token := strings.TrimPrefix(authz, "Bearer ")
	if token == authz && authz != "" {
		// header present but not "Bearer "-prefixed; still try raw value
		token = authz
	}
	return s.AuthN.Resolve(r.Context(), token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	status := httpStatus(kind)
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": string(kind)})
}

// httpStatus maps a transport-independent error kind to an HTTP status,
// the one place in the core allowed to know about HTTP, per spec §7.
func httpStatus(kind apierr.Kind) int {
	switch kind {
	case apierr.KindAuth:
		return http.StatusUnauthorized
	case apierr.KindPermissionDenied:
		return http.StatusForbidden
	case apierr.KindValidation, apierr.KindPathEscape, apierr.KindSensitivePath:
		return http.StatusBadRequest
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindConflict:
		return http.StatusConflict
	case apierr.KindProviderFailure:
		return http.StatusBadGateway
	case apierr.KindProviderTimeout:
		return http.StatusGatewayTimeout
	case apierr.KindCancelled:
		return 499 // nginx convention for client-closed-request; no stdlib const
	case apierr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// capabilityCeiling reads the server-wide ceiling from config, the first of
// the three inputs spec §4.4's Derive collapses.
func (s *Server) capabilityCeiling() capability.Ceiling {
	return capability.Ceiling{
		Shell: s.Config.EnableShell, Write: s.Config.EnableWrite,
		Browser: s.Config.EnableBrowser, Dangerous: s.Config.AllowDangerous,
	}
}

func (s *Server) defaultProvider() provider.Provider {
	if len(s.Providers) == 0 {
		return nil
	}
	return s.Providers[0]
}

// orderedProviders puts a caller-requested provider name first (if it
// exists among the configured set), preserving the rest of the preference
// order as fallback, per spec §4.7.
func (s *Server) orderedProviders(preferred string) []provider.Provider {
	if preferred == "" {
		return s.Providers
	}
	out := make([]provider.Provider, 0, len(s.Providers))
	var match provider.Provider
	for _, p := range s.Providers {
		if p.Name() == preferred && match == nil {
			match = p
			continue
		}
		out = append(out, p)
	}
	if match == nil {
		return s.Providers
	}
	return append([]provider.Provider{match}, out...)
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
