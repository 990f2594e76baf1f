// Package tools implements the closed tool registry: fs_list, fs_read,
// fs_write, shell_run, browser_*, doc_*, proto_generate, and
// attachment_read. Shapes are grounded on internal/llm/tools.go's
// ToolDefinition/ToolCall/ToolResult triad, generalized from Anthropic's
// wire format to a name-keyed registry with typed, validated
// input structs per original_source's pydantic tool definitions
// (fs_tools.py, shell_tools.py).
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// RiskClass controls whether a capability bit must be set before a tool
// may run at all (spec §4.3/§4.4).
type RiskClass string

const (
	RiskSafe      RiskClass = "safe"
	RiskWrite     RiskClass = "write"
	RiskShell     RiskClass = "shell"
	RiskBrowser   RiskClass = "browser"
	RiskGenerator RiskClass = "generator"
	RiskDangerous RiskClass = "dangerous"
)

// Definition pairs a tool's wire schema with its typed handler. Every call
// gets a fresh input struct from NewInput, into which its raw JSON
// arguments are decoded and then validated.
type Definition struct {
	Name        string
	Description string
	Risk        RiskClass
	InputSchema map[string]any
	// NewInput returns a fresh value of the tool's input struct with its
	// defaults already set (fields the JSON omits keep them), so
	// Dispatch can unmarshal into it without a package-level type switch.
	NewInput func() any
	Handler  func(ctx context.Context, tc *Context, input any) (Result, error)
	// Timeout overrides the agent loop's default per-call timeout (spec
	// §4.8 step (e)) when non-zero, letting a tool declare its own ceiling
	// instead of inheriting the short default every other tool gets — e.g.
	// shell_run's own timeout_ms argument needs up to ten minutes to ever
	// take effect.
	Timeout time.Duration
}

// Result is what a tool handler returns; Dispatch serializes Content to
// the tool_result event and message per spec §6.
type Result struct {
	Content string
	IsError bool
	// Attachments produced by this call (e.g. doc_* writing a file),
	// staged for the turn's atomic commit.
	Attachments []ProducedAttachment
}

type ProducedAttachment struct {
	FileID      string
	AbsPath     string
	Filename    string
	ContentType string
	SizeBytes   int64
	Kind        string
}

// Context carries everything a tool handler needs about the caller and the
// enclosing turn: the effective capability set, workspace root, and
// identifiers for attribution. It is assembled once per agent-loop turn.
type Context struct {
	TeamID          int64
	ProjectID       *int64
	SessionID       string
	WorkspaceRoot   string
	EnableWrite     bool
	EnableShell     bool
	EnableBrowser   bool
	EnableDangerous bool

	// MaxFileReadChars is the server-side ceiling fs_read truncates to
	// (spec's max_file_read_chars config key), independent of and no
	// looser than any caller-supplied max_bytes. Zero means unconfigured —
	// fs_read falls back to its own built-in default in that case.
	MaxFileReadChars int
}

var validate = validator.New()

// DecodeAndValidate unmarshals raw into dst (a pointer obtained from
// Definition.NewInput) and runs struct-tag validation, matching
// original_source's pydantic field constraints (e.g. depth<=5, timeout_ms
// bounds) via `validate:"..."` tags on the Go input structs.
func DecodeAndValidate(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}
