package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/artifact"
	"github.com/aistaff-ai/agentcore/internal/docrender"
	"github.com/aistaff-ai/agentcore/internal/store"
)

// Registry is the closed set of tools the agent loop may dispatch to.
// Grounded on internal/tools/dispatch.go's single-client-map shape,
// generalized from one client type (OpenCode) to a name-keyed map of typed
// tool definitions, each dispatched through its own Handler func rather
// than an interface.
type Registry struct {
	defs map[string]Definition
}

// Deps bundles every collaborator a tool handler might need. Not every
// tool uses every field.
type Deps struct {
	Artifacts *artifact.Store
	DB        *store.Store
	Browser   *BrowserManager
	Renderer  docrender.Renderer
}

func NewRegistry(deps Deps) *Registry {
	renderer := deps.Renderer
	if renderer == nil {
		renderer = docrender.PlaintextRenderer{}
	}

	defs := []Definition{
		fsListDef(),
		fsReadDef(),
		fsWriteDef(),
		shellRunDef(),
		browserStartDef(deps.Browser),
		browserNavigateDef(deps.Browser),
		browserScreenshotDef(deps.Browser, deps.Artifacts),
		docGenerateDef(renderer, deps.Artifacts),
		protoGenerateDef(renderer, deps.Artifacts),
		attachmentReadDef(deps.DB, deps.Artifacts),
	}

	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.Name] = d
	}
	return r
}

// Definitions returns the registry's tools in the wire shape a provider
// adapter advertises to the model (name/description/input_schema).
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

// Definition looks up a single tool's definition by name, letting callers
// outside the package (the agent loop, sizing its per-call timeout) read a
// tool's declared Timeout without reimplementing dispatch.
func (r *Registry) Definition(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Dispatch decodes raw, validates it against the named tool's input
// struct, checks the risk class against tc's effective capabilities, and
// invokes the handler. Unknown tool names and validation failures are
// returned as ordinary errors so the agent loop can emit a tool_result
// event without aborting the turn, per spec §4.8.
func (r *Registry) Dispatch(ctx context.Context, name string, rawInput json.RawMessage, tc *Context) (Result, error) {
	def, ok := r.defs[name]
	if !ok {
		return Result{}, apierr.New(apierr.KindValidation, fmt.Sprintf("unknown tool: %s", name))
	}

	if err := r.checkCapability(def.Risk, tc); err != nil {
		return Result{}, err
	}

	input := def.NewInput()
	if err := DecodeAndValidate(rawInput, input); err != nil {
		return Result{}, apierr.Wrap(apierr.KindValidation, "invalid arguments for "+name, err)
	}

	return def.Handler(ctx, tc, input)
}

func (r *Registry) checkCapability(risk RiskClass, tc *Context) error {
	switch risk {
	case RiskWrite:
		if !tc.EnableWrite {
			return apierr.New(apierr.KindToolDisabled, "write capability is disabled for this session")
		}
	case RiskShell:
		if !tc.EnableShell {
			return apierr.New(apierr.KindToolDisabled, "shell capability is disabled for this session")
		}
	case RiskBrowser:
		if !tc.EnableBrowser {
			return apierr.New(apierr.KindToolDisabled, "browser capability is disabled for this session")
		}
	case RiskDangerous:
		if !tc.EnableDangerous {
			return apierr.New(apierr.KindToolDisabled, "dangerous capability is disabled for this session")
		}
	}
	return nil
}
