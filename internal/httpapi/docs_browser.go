package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/docrender"
	"github.com/aistaff-ai/agentcore/internal/tools"
)

var docKinds = map[string]bool{
	"ppt": true, "quote": true, "quote-xlsx": true, "inspection": true, "inspection-xlsx": true,
}

type genRequest struct {
	Prompt    string `json:"prompt" validate:"required,max=8192"`
	Filename  string `json:"filename" validate:"omitempty,max=255"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
}

type genResponse struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	URL         string `json:"url"`
}

// handleDocGenerate implements POST /docs/{kind} for the five document
// kinds named in spec §6 (ppt, quote, quote-xlsx, inspection,
// inspection-xlsx). It calls the renderer directly rather than going
// through the doc_generate tool's registry entry, since that tool hardcodes
// kind="doc" for the agent-loop case — this endpoint needs the caller's
// specific kind to reach the renderer and to label the stored attachment.
func (s *Server) handleDocGenerate(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if !docKinds[kind] {
		writeError(w, apierr.New(apierr.KindValidation, "unknown document kind: "+kind))
		return
	}
	s.generate(w, r, kind, "generated")
}

func (s *Server) handlePrototypeGenerate(w http.ResponseWriter, r *http.Request) {
	s.generate(w, r, "prototype", "generated")
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, kind, attachmentKind string) {
	principal, err := s.principal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req genRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.KindValidation, "malformed request body"))
		return
	}
	if err := requestValidator.Struct(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidation, "invalid generate request", err))
		return
	}

	out, err := s.Renderer.Render(r.Context(), docrender.Request{Kind: kind, Prompt: req.Prompt, Filename: req.Filename})
	if err != nil {
		writeError(w, apierr.Wrap(apierr.KindToolFailure, kind+" generation failed", err))
		return
	}

	var sessionID *string
	if req.SessionID != "" {
		sessionID = &req.SessionID
	}
	att, err := s.Artifacts.RegisterNow(r.Context(), attachmentKind, out.Filename, out.ContentType, out.Data, principal.TeamID, nil, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	token := s.Artifacts.IssueDownloadToken(att.FileID, principal.TeamID, 24*time.Hour)
	writeJSON(w, http.StatusCreated, genResponse{
		FileID: att.FileID, Filename: att.Filename, ContentType: att.ContentType, SizeBytes: att.SizeBytes,
		URL: s.fileURL(att.FileID, token),
	})
}

type browserRequest struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	FullPage  bool   `json:"full_page"`
}

func (s *Server) handleBrowserStart(w http.ResponseWriter, r *http.Request) {
	s.dispatchBrowserTool(w, r, "browser_start")
}

func (s *Server) handleBrowserNavigate(w http.ResponseWriter, r *http.Request) {
	s.dispatchBrowserTool(w, r, "browser_navigate")
}

func (s *Server) handleBrowserScreenshot(w http.ResponseWriter, r *http.Request) {
	s.dispatchBrowserTool(w, r, "browser_screenshot")
}

// dispatchBrowserTool lets the browser/* endpoints exercise the same
// browser_start/navigate/screenshot tool definitions the agent loop uses,
// rather than duplicating rod wiring here, matching spec §6's note that
// these endpoints expose direct access to the same browser session a chat
// turn would drive.
func (s *Server) dispatchBrowserTool(w http.ResponseWriter, r *http.Request, toolName string) {
	principal, err := s.principal(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.capabilityCeiling().Browser {
		writeError(w, apierr.New(apierr.KindToolDisabled, "browser capability is disabled on this server"))
		return
	}

	var req browserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, apierr.New(apierr.KindValidation, "session_id is required"))
		return
	}
	if err := s.Sessions.AssertAccess(req.SessionID, principal.UserID, principal.TeamID); err != nil {
		writeError(w, err)
		return
	}

	rawArgs, _ := json.Marshal(req)
	tc := &tools.Context{TeamID: principal.TeamID, SessionID: req.SessionID, EnableBrowser: true}

	result, err := s.Tools.Dispatch(r.Context(), toolName, rawArgs, tc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result.Content, "attachments": result.Attachments})
}
