package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenCode is the external-HTTP provider variant: a thin client over a
// host-side OpenCode serve instance. Adapted directly from
// internal/tools/opencode.go's OpenCodeClient — same basic-auth
// doRequest helper and session lifecycle, generalized from a
// dispatch-one-project client into a Provider that EnsureSessions itself
// on first use and folds the running history into single text turns since
// OpenCode's wire format has no notion of Anthropic-style content blocks.
type OpenCode struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	sessionID string // lazily created, persisted by the caller via session.State
}

func NewOpenCode(baseURL, username, password string) *OpenCode {
	return &OpenCode{
		baseURL: strings.TrimSuffix(baseURL, "/"), username: username, password: password,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (o *OpenCode) Name() string { return "opencode" }

// Capabilities: OpenCode resolves tool calls entirely server-side and
// never returns them to us (see Complete below), so it can drive neither
// this core's doc_generate/proto_generate tools nor attachment_read —
// both always fall through to Anthropic native — nor does it ever satisfy
// the dangerous (unsandboxed) bit.
func (o *OpenCode) Capabilities() Capabilities {
	return Capabilities{CanGenerateDocs: false, CanReadAttachments: false, CanRunUnsandboxed: false}
}

// WithSession lets the agent loop hand OpenCode a previously persisted
// session id (session.State.OpenCodeSessionID) so a multi-turn
// conversation reuses server-side state instead of restarting cold.
func (o *OpenCode) WithSession(sessionID string) *OpenCode {
	clone := *o
	clone.sessionID = sessionID
	return &clone
}

// SessionID returns the session id this call ended up using, so the
// caller can persist it for next time.
func (o *OpenCode) SessionID() string { return o.sessionID }

func (o *OpenCode) Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error) {
	sessionID, err := o.ensureSession(ctx, o.sessionID)
	if err != nil {
		return nil, &Error{Provider: o.Name(), Message: err.Error()}
	}
	o.sessionID = sessionID

	text := flattenForOpenCode(req)
	resp, err := o.sendMessage(ctx, sessionID, text)
	if err != nil {
		return nil, &Error{Provider: o.Name(), Message: err.Error()}
	}

	// OpenCode's own agent loop resolves tool calls server-side; by the
	// time a response reaches us it is plain text, so CompleteResponse
	// never carries ToolCalls for this provider.
	return &CompleteResponse{Content: resp}, nil
}

func flattenForOpenCode(req CompleteRequest) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	for _, m := range req.Messages {
		if m.Role == "user" || m.Role == "assistant" {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	for _, r := range req.ToolResults {
		fmt.Fprintf(&b, "tool_result[%s]: %s\n", r.ToolCallID, r.Content)
	}
	return b.String()
}

type openCodeSession struct {
	ID string `json:"id"`
}

type openCodeMessageResponse struct {
	Parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"parts"`
}

func (o *OpenCode) ensureSession(ctx context.Context, existingID string) (string, error) {
	if existingID != "" {
		if _, err := o.getSession(ctx, existingID); err == nil {
			return existingID, nil
		}
	}
	session, err := o.createSession(ctx)
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

func (o *OpenCode) createSession(ctx context.Context) (*openCodeSession, error) {
	resp, err := o.doRequest(ctx, "POST", "/session", []byte(`{}`))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	var s openCodeSession
	if err := json.Unmarshal(resp, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &s, nil
}

func (o *OpenCode) getSession(ctx context.Context, id string) (*openCodeSession, error) {
	resp, err := o.doRequest(ctx, "GET", "/session/"+id, nil)
	if err != nil {
		return nil, err
	}
	var s openCodeSession
	if err := json.Unmarshal(resp, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &s, nil
}

func (o *OpenCode) sendMessage(ctx context.Context, sessionID, message string) (string, error) {
	payload := map[string]any{"parts": []map[string]string{{"type": "text", "text": message}}}
	body, _ := json.Marshal(payload)

	resp, err := o.doRequest(ctx, "POST", "/session/"+sessionID+"/message", body)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	var msgResp openCodeMessageResponse
	if err := json.Unmarshal(resp, &msgResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	var parts []string
	for _, p := range msgResp.Parts {
		if p.Type == "text" && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	if len(parts) == 0 {
		return "*(no response)*", nil
	}
	return strings.Join(parts, "\n"), nil
}

func (o *OpenCode) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(o.username, o.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
