// Package provider implements the model provider adapter: a uniform
// Provider interface wrapping Anthropic's native API, an external HTTP
// backend (opencode), and external subprocess backends (codex/pi/nanobot),
// each declaring capabilities that drive fallback. Grounded on
// internal/llm/provider.go's Provider/ToolProvider/Router shape,
// generalized from cost-tier fallback to capability-based fallback per
// spec §4.7.
package provider

import (
	"context"
	"encoding/json"

	"github.com/aistaff-ai/agentcore/internal/budget"
)

// Capabilities describes what a provider can do, driving the router's
// fallback decisions: a provider that cannot run unsandboxed can never
// satisfy a request with the dangerous capability bit set, regardless of
// role or preset.
type Capabilities struct {
	CanGenerateDocs    bool
	CanReadAttachments bool
	CanRunUnsandboxed  bool
}

// ToolSpec is the wire shape a provider advertises to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a tool invocation the model requested.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is a completed tool call's outcome, fed back on the next turn.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// CompleteRequest is a single model turn: the running message history plus
// any tool results produced since the last call.
type CompleteRequest struct {
	System      string
	Messages    []budget.ChatMessage
	ToolResults []ToolResult
	Tools       []ToolSpec
	Model       string
	MaxTokens   int
	Temperature float64
}

// CompleteResponse is what the model produced: text, zero or more tool
// calls, and usage/stop metadata for the event trace.
type CompleteResponse struct {
	Content      string
	ToolCalls    []ToolCall
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Provider is the seam every backend (native SDK, external HTTP, external
// subprocess, mock) implements identically, so the agent loop never
// branches on which kind of provider it's talking to.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error)
}

// Error wraps a provider-specific failure with the provider's name,
// mirroring internal/llm/provider.go's ProviderError.
type Error struct {
	Provider string
	Message  string
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return e.Provider + ": " + e.Message
	}
	return e.Message
}
