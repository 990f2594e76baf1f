// Package docrender defines the DocumentRenderer collaborator boundary
// named but left out-of-core by spec §1: document/prototype generation is
// a pluggable capability the core depends on only through this interface,
// never a concrete renderer. A minimal built-in renderer is provided so
// the doc_* and proto_generate tools have something to exercise without
// requiring an external service in tests.
package docrender

import (
	"context"
	"fmt"
	"strings"
)

// Request describes one generation call: a kind (doc, slide, prototype),
// a prompt/spec body, and an output filename hint.
type Request struct {
	Kind     string
	Prompt   string
	Filename string
}

// Output is the rendered artifact's raw bytes plus its content type.
type Output struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Renderer is the seam a real document/prototype generation backend plugs
// into. The core agent loop only ever talks to this interface.
type Renderer interface {
	Render(ctx context.Context, req Request) (Output, error)
}

// PlaintextRenderer is a dependency-free fallback that wraps the prompt as
// a plaintext or markdown document. It exists so the generator tool family
// is exercised end to end even when no richer renderer (e.g. an
// office-document templating service) is configured.
type PlaintextRenderer struct{}

func (PlaintextRenderer) Render(ctx context.Context, req Request) (Output, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Output{}, fmt.Errorf("docrender: empty prompt")
	}
	filename := req.Filename
	if filename == "" {
		filename = req.Kind + ".md"
	}
	body := fmt.Sprintf("# %s\n\n%s\n", titleCase(req.Kind), req.Prompt)
	return Output{Filename: filename, ContentType: "text/markdown", Data: []byte(body)}, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
