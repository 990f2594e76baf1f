package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aistaff-ai/agentcore/internal/agent"
	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/auth"
	"github.com/aistaff-ai/agentcore/internal/budget"
	"github.com/aistaff-ai/agentcore/internal/capability"
	"github.com/aistaff-ai/agentcore/internal/events"
	"github.com/aistaff-ai/agentcore/internal/prompt"
	"github.com/aistaff-ai/agentcore/internal/provider"
	"github.com/aistaff-ai/agentcore/internal/session"
	"github.com/aistaff-ai/agentcore/internal/store"
	"github.com/aistaff-ai/agentcore/internal/tools"
)

// chatRequest is POST /chat's body, the wire shape named in spec §6.
type chatRequest struct {
	Message         string              `json:"message" validate:"required,max=32768"`
	SessionID       string              `json:"session_id" validate:"omitempty,max=128"`
	Role            string              `json:"role" validate:"omitempty,max=64"`
	Provider        string              `json:"provider" validate:"omitempty,max=64"`
	Model           string              `json:"model" validate:"omitempty,max=128"`
	ProjectID       *int64              `json:"project_id"`
	SecurityPreset  string              `json:"security_preset" validate:"omitempty,oneof=safe standard power custom"`
	EnableShell     bool                `json:"enable_shell"`
	EnableWrite     bool                `json:"enable_write"`
	EnableBrowser   bool                `json:"enable_browser"`
	EnableDangerous bool                `json:"enable_dangerous"`
	Attachments     []chatAttachmentRef `json:"attachments" validate:"max=10,dive"`
	Stream          bool                `json:"-"` // set from query/Accept, not the JSON body
}

type chatAttachmentRef struct {
	FileID   string `json:"file_id" validate:"required"`
	Filename string `json:"filename"`
}

type chatResponse struct {
	SessionID string         `json:"session_id"`
	Assistant string         `json:"assistant"`
	Events    []events.Event `json:"events"`
}

// turnRequest is the transport-independent shape prepareTurn consumes,
// letting both the HTTP /chat handler and the webhook ingress dispatcher
// (spec §1's Feishu/WeCom/OpenClaw adapters) drive the same pipeline.
type turnRequest struct {
	Principal       *auth.Principal
	SessionID       string
	Role            string
	Message         string
	Attachments     []chatAttachmentRef
	ProjectID       *int64
	Provider        string
	Model           string
	SecurityPreset  string
	EnableShell     bool
	EnableWrite     bool
	EnableBrowser   bool
	EnableDangerous bool
}

// preparedTurn is everything agent.Run needs plus the bookkeeping required
// to commit it afterward.
type preparedTurn struct {
	session    *session.State
	userMsg    budget.ChatMessage
	input      agent.Input
	preTurnLen int

	// release unlocks this session_id's turn lock (spec §5/§9). The caller
	// must invoke it exactly once, after commitTurn or on any abandoned
	// path, which is why every return out of handleChat/streamChat after a
	// successful prepareTurn is routed through it (directly or deferred).
	release func()
}

// prepareTurn implements spec §4.11 steps 1-4: resolve workspace root,
// derive capability (failing closed only on an explicit denied "dangerous"
// request), pull or seed the session, assemble the system prompt, and
// budget the context — returning an agent.Input ready for step 5.
func (s *Server) prepareTurn(ctx context.Context, req turnRequest) (*preparedTurn, error) {
	if req.Message == "" {
		return nil, apierr.New(apierr.KindValidation, "message is required")
	}
	role := req.Role
	if role == "" {
		role = "general"
	}
	preset := req.SecurityPreset
	if preset == "" {
		preset = string(capability.PresetSafe)
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Acquire this session_id's turn lock now, before any session state is
	// read or mutated, and hold it through persistence (spec §5: "each
	// session_id is serialized by a per-session lock acquired at the start
	// of a turn and released after persistence"). Every error return below
	// releases it immediately since there's nothing left for the caller to
	// commit; a successful return hands the release func to the caller.
	release := s.turnLocks.Acquire(sessionID)
	ok := false
	defer func() {
		if !ok {
			release()
		}
	}()

	workspaceRoot, err := s.Workspace.ResolveWorkspaceRoot(ctx, req.Principal.TeamID, req.ProjectID)
	if err != nil {
		return nil, err
	}

	providers := s.orderedProviders(req.Provider)
	if len(providers) == 0 {
		return nil, apierr.New(apierr.KindProviderFailure, "no model provider configured")
	}

	capReq := capability.Request{
		Preset: capability.Preset(preset),
		Shell:  req.EnableShell, Write: req.EnableWrite, Browser: req.EnableBrowser, Dangerous: req.EnableDangerous,
	}
	requested, effective := capability.Derive(s.capabilityCeiling(), capReq, req.Principal.Role, providers[0].Capabilities().CanRunUnsandboxed)

	// Spec §4.11 step 3: only an explicit, denied request for `dangerous`
	// is a hard failure; every other denial is silently cleared.
	if requested.Dangerous && !effective.Dangerous {
		return nil, apierr.New(apierr.KindPermissionDenied, "dangerous capability requested but not permitted")
	}

	model := req.Model
	if model == "" {
		model = s.Config.ModelDefault
	}

	toolNames := make([]string, 0)
	for _, d := range s.Tools.Definitions() {
		toolNames = append(toolNames, d.Name)
	}
	system := prompt.Assemble(prompt.Params{
		Role: string(req.Principal.Role), WorkspaceRoot: workspaceRoot,
		Effective: effective, ToolNames: toolNames,
	})

	sess, err := s.Sessions.GetOrCreate(session.NewSessionParams{
		SessionID: sessionID, UserID: req.Principal.UserID, TeamID: req.Principal.TeamID,
		Role: role, SystemPrompt: system, WorkspaceRoot: workspaceRoot,
		Provider: providers[0].Name(), Model: model,
	})
	if err != nil {
		return nil, err
	}

	userMsg := budget.ChatMessage{Role: "user", Content: req.Message}
	for _, a := range req.Attachments {
		userMsg.Attachments = append(userMsg.Attachments, budget.Attachment{FileID: a.FileID, Filename: a.Filename})
	}
	preTurnHistory := append([]budget.ChatMessage{}, sess.Messages...)
	historyWithUser := append(append([]budget.ChatMessage{}, preTurnHistory...), userMsg)

	cfg := agent.DefaultConfig()
	if s.Config.MaxSteps > 0 {
		cfg.MaxSteps = s.Config.MaxSteps
	}
	if s.Config.MaxSessionMessages > 0 {
		cfg.BudgetConfig.MaxMessages = s.Config.MaxSessionMessages
	}
	if s.Config.MaxContextChars > 0 {
		cfg.BudgetConfig.MaxChars = s.Config.MaxContextChars
	}
	if s.Config.MaxToolOutputChars > 0 {
		cfg.MaxToolOutputChars = s.Config.MaxToolOutputChars
	}

	tc := &tools.Context{
		TeamID: req.Principal.TeamID, ProjectID: req.ProjectID, SessionID: sessionID, WorkspaceRoot: workspaceRoot,
		EnableWrite: effective.Write, EnableShell: effective.Shell, EnableBrowser: effective.Browser, EnableDangerous: effective.Dangerous,
		MaxFileReadChars: s.Config.MaxFileReadChars,
	}

	input := agent.Input{
		System: system, History: historyWithUser, Registry: s.Tools,
		Router: provider.NewRouter(s.Log, providers...), ToolContext: tc,
		Preset: capability.Preset(preset), Requested: requested, Effective: effective,
		PreferredProvider: providers[0].Name(), Model: model, Config: cfg,
		TaskArtifactFallbackDir: s.Config.OutputsDir,
		NeedsDocGen:             messageWantsDocGen(req.Message),
		NeedsAttachments:        len(req.Attachments) > 0,
	}

	ok = true
	return &preparedTurn{session: sess, userMsg: userMsg, input: input, preTurnLen: len(historyWithUser), release: release}, nil
}

// handleChat implements the Chat Entry request lifecycle of spec §4.11:
// resolve principal, prepare the turn, run the agent loop, commit the
// turn, and respond — either buffered or streamed as SSE.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	principal, err := s.principal(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.Config.RateLimitPerMinute > 0 {
		key := fmt.Sprintf("chat:%d:%d", principal.TeamID, principal.UserID)
		allowed, err := s.RateLimiter.Allow(r.Context(), key, s.Config.RateLimitPerMinute, time.Minute)
		if err != nil {
			s.Log.Warn("rate limiter check failed, allowing request", "error", err)
		} else if !allowed {
			writeError(w, apierr.New(apierr.KindRateLimited, "too many chat requests, slow down"))
			return
		}
	}

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.New(apierr.KindValidation, "malformed request body"))
		return
	}
	if err := requestValidator.Struct(&body); err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidation, "invalid chat request", err))
		return
	}
	stream := r.URL.Query().Get("stream") == "1" || r.Header.Get("Accept") == "text/event-stream"

	prepared, err := s.prepareTurn(r.Context(), turnRequest{
		Principal: principal, SessionID: body.SessionID, Role: body.Role, Message: body.Message,
		Attachments: body.Attachments, ProjectID: body.ProjectID, Provider: body.Provider, Model: body.Model,
		SecurityPreset: body.SecurityPreset, EnableShell: body.EnableShell, EnableWrite: body.EnableWrite,
		EnableBrowser: body.EnableBrowser, EnableDangerous: body.EnableDangerous,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	// streamChat and the buffered path below both run synchronously to
	// completion (including commitTurn) before handleChat returns, so one
	// deferred release here covers the whole turn regardless of which path
	// runs.
	defer prepared.release()

	if stream {
		s.streamChat(w, r, principal, prepared)
		return
	}

	out, err := agent.Run(r.Context(), prepared.input)
	if err != nil {
		writeError(w, err)
		return
	}

	s.commitTurn(r.Context(), principal, prepared, out)
	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: prepared.session.SessionID, Assistant: lastAssistantText(out.History), Events: out.Events,
	})
}

// streamChat runs the loop with a Sink attached, forwarding each event as
// "event: <type>\ndata: <json>\n\n" while the turn is still in flight, then
// commits the turn exactly as the buffered path does once it finishes.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, principal *auth.Principal, prepared *preparedTurn) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apierr.New(apierr.KindValidation, "streaming unsupported by this transport"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := make(chan events.Event, 64)
	prepared.input.Sink = sink

	type runResult struct {
		out agent.Output
		err error
	}
	resultCh := make(chan runResult, 1)
	go func() {
		out, err := agent.Run(r.Context(), prepared.input)
		close(sink)
		resultCh <- runResult{out, err}
	}()

	for ev := range sink {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}

	result := <-resultCh
	if result.err != nil {
		data, _ := json.Marshal(map[string]string{"message": result.err.Error()})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		flusher.Flush()
		return
	}
	s.commitTurn(r.Context(), principal, prepared, result.out)
	fmt.Fprintf(w, "event: session\ndata: {\"session_id\":%q}\n\n", prepared.session.SessionID)
	flusher.Flush()
}

// commitTurn persists the user message, every message the loop produced,
// and any attachments, then refreshes the live session cache. The loop only
// ever appends past prepared.preTurnLen, except when the budgeter trims
// enough of the front that the slice would underflow, in which case the
// whole trace is treated as new rather than risking a negative index.
func (s *Server) commitTurn(ctx context.Context, principal *auth.Principal, prepared *preparedTurn, out agent.Output) {
	sess := prepared.session
	newStart := prepared.preTurnLen
	if newStart > len(out.History) {
		newStart = 0
	}
	newMessages := out.History[newStart:]
	eventsJSON, _ := events.MarshalEventsJSON(out.Events)

	// Ordinal is no longer computed here: CommitTurn assigns it itself,
	// inside the same transaction that inserts these rows, while this
	// session_id's turn lock (prepared.release, held since prepareTurn) is
	// still in effect — see store.CommitTurn's doc comment.
	userRow := store.Message{SessionID: sess.SessionID, TeamID: principal.TeamID, Role: store.RoleUser, Content: prepared.userMsg.Content}

	produced := make([]store.Message, 0, len(newMessages))
	for i, m := range newMessages {
		row := store.Message{
			SessionID: sess.SessionID, TeamID: principal.TeamID,
			Role: store.MessageRole(m.Role), Content: m.Content, ToolCallsJSON: m.ToolCallsJSON, ToolCallID: m.ToolCallID,
		}
		if i == len(newMessages)-1 {
			row.EventsJSON = string(eventsJSON)
		}
		produced = append(produced, row)
	}

	lastIdx := len(produced) - 1
	links := make([]store.MessageAttachmentLink, 0, len(out.Attachments))
	attachmentRows := make([]store.Attachment, 0, len(out.Attachments))
	for _, a := range out.Attachments {
		sessionID := sess.SessionID
		attachmentRows = append(attachmentRows, store.Attachment{
			FileID: a.FileID, Kind: a.Kind, Filename: a.Filename, ContentType: a.ContentType,
			SizeBytes: a.SizeBytes, TeamID: principal.TeamID, SessionID: &sessionID, SourcePath: a.AbsPath,
		})
		if lastIdx >= 0 {
			links = append(links, store.MessageAttachmentLink{MessageIndex: lastIdx, FileID: a.FileID, Direction: "output"})
		}
	}

	turn := store.TurnCommit{
		Session: store.Session{
			SessionID: sess.SessionID, TeamID: principal.TeamID,
			Role: sess.Role, Provider: out.ProviderUsed, Model: sess.Model,
		},
		UserMessage: userRow, ProducedMessages: produced, Attachments: attachmentRows, OutputLinks: links,
	}
	if err := s.DB.CommitTurn(ctx, turn); err != nil {
		s.Log.Error("commit turn failed", "session_id", sess.SessionID, "error", err)
	} else if s.History != nil {
		if err := s.History.Sync(ctx, s.DB, principal.TeamID, sess.SessionID); err != nil {
			s.Log.Warn("history mirror sync failed", "session_id", sess.SessionID, "error", err)
		}
	}

	s.Sessions.UpdateMessages(sess.SessionID, principal.UserID, principal.TeamID, out.History, budget.Config{
		MaxMessages: s.Config.MaxSessionMessages, MaxChars: s.Config.MaxContextChars,
	})
}

// docGenKeywords are the terms that signal a turn wants document or
// prototype generation, used once at turn start to decide whether the
// preferred provider needs the CanGenerateDocs capability (spec §4.7).
// Grounded on docKinds plus "prototype" (handlePrototypeGenerate) and the
// natural-language phrasing of spec's own worked example ("generate a PPT
// titled Alpha").
var docGenKeywords = []string{"ppt", "powerpoint", "quote", "inspection", "prototype", "deck", "proposal"}

func messageWantsDocGen(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range docGenKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func lastAssistantText(history []budget.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "assistant" && history[i].Content != "" {
			return history[i].Content
		}
	}
	return ""
}
