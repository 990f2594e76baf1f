package tools

import (
	"context"
	"fmt"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/artifact"
	"github.com/aistaff-ai/agentcore/internal/store"
)

// AttachmentReadInput asks to pull a previously registered file's content
// back into the conversation (e.g. re-reading a generated document before
// revising it).
type AttachmentReadInput struct {
	FileID   string `json:"file_id" validate:"required"`
	MaxBytes int    `json:"max_bytes" validate:"omitempty,gte=1,lte=1048576"`
}

func attachmentReadDef(db *store.Store, files *artifact.Store) Definition {
	return Definition{
		Name: "attachment_read", Description: "Read back the content of a file previously produced or uploaded in this team.",
		Risk: RiskSafe,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"file_id": map[string]any{"type": "string"}},
			"required":   []string{"file_id"},
		},
		NewInput: func() any { return &AttachmentReadInput{MaxBytes: 262144} },
		Handler: func(ctx context.Context, tc *Context, input any) (Result, error) {
			in := input.(*AttachmentReadInput)
			att, err := db.GetAttachment(ctx, tc.TeamID, in.FileID)
			if err != nil {
				return Result{}, err
			}
			data, err := files.ReadForTool(att.SourcePath)
			if err != nil {
				return Result{}, apierr.Wrap(apierr.KindToolFailure, "read attachment", err)
			}
			limit := in.MaxBytes
			if limit <= 0 {
				limit = 262144
			}
			truncated := false
			if len(data) > limit {
				data = data[:limit]
				truncated = true
			}
			content := string(data)
			if truncated {
				content += "\n…(truncated)"
			}
			return Result{Content: fmt.Sprintf("%s (%s):\n%s", att.Filename, att.ContentType, content)}, nil
		},
	}
}
