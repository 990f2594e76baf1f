package tools

import (
	"context"
	"fmt"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/artifact"
	"github.com/aistaff-ai/agentcore/internal/docrender"
)

// GeneratorInput covers doc_generate, doc_outline, and proto_generate alike:
// each is a prompt handed to the configured DocumentRenderer plus an
// optional filename hint.
type GeneratorInput struct {
	Prompt   string `json:"prompt" validate:"required"`
	Filename string `json:"filename"`
}

func generatorDef(name, kind, description string, renderer docrender.Renderer, store *artifact.Store) Definition {
	return Definition{
		Name: name, Description: description,
		Risk: RiskGenerator,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt":   map[string]any{"type": "string"},
				"filename": map[string]any{"type": "string"},
			},
			"required": []string{"prompt"},
		},
		NewInput: func() any { return &GeneratorInput{} },
		Handler: func(ctx context.Context, tc *Context, input any) (Result, error) {
			in := input.(*GeneratorInput)
			out, err := renderer.Render(ctx, docrender.Request{Kind: kind, Prompt: in.Prompt, Filename: in.Filename})
			if err != nil {
				return Result{}, apierr.Wrap(apierr.KindToolFailure, name+" failed", err)
			}
			fileID, absPath, err := store.WriteFile(out.Filename, out.Data)
			if err != nil {
				return Result{}, apierr.Wrap(apierr.KindToolFailure, "store generated artifact", err)
			}
			return Result{
				Content: fmt.Sprintf("generated %s (%d bytes)", out.Filename, len(out.Data)),
				Attachments: []ProducedAttachment{{
					FileID: fileID, AbsPath: absPath, Filename: out.Filename,
					ContentType: out.ContentType, SizeBytes: int64(len(out.Data)), Kind: "generated",
				}},
			}, nil
		},
	}
}

func docGenerateDef(renderer docrender.Renderer, store *artifact.Store) Definition {
	return generatorDef("doc_generate", "doc", "Generate a document from a prompt.", renderer, store)
}

func protoGenerateDef(renderer docrender.Renderer, store *artifact.Store) Definition {
	return generatorDef("proto_generate", "prototype", "Generate a UI prototype mockup from a prompt.", renderer, store)
}
