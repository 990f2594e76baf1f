package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/sandbox"
)

// FsListInput mirrors original_source's FsListArgs: a relative path, a
// recursion depth bound to stop pathological directory walks, and a cap
// on how many entries a single call may return.
type FsListInput struct {
	Path       string `json:"path" validate:"required"`
	Depth      int    `json:"depth" validate:"gte=0,lte=5"`
	MaxEntries int    `json:"max_entries" validate:"omitempty,gte=1,lte=5000"`
}

type FsReadInput struct {
	Path     string `json:"path" validate:"required"`
	MaxBytes int    `json:"max_bytes" validate:"omitempty,gte=1,lte=1048576"`
}

// FsWriteInput's Mode selects between replacing a file's contents
// (overwrite, the default) and appending to them.
type FsWriteInput struct {
	Path    string `json:"path" validate:"required"`
	Content string `json:"content"`
	Mode    string `json:"mode" validate:"omitempty,oneof=overwrite append"`
}

const defaultFsListMaxEntries = 5000

func fsListDef() Definition {
	return Definition{
		Name: "fs_list", Description: "List files under a workspace-relative directory.",
		Risk: RiskSafe,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":        map[string]any{"type": "string"},
				"depth":       map[string]any{"type": "integer", "minimum": 0, "maximum": 5},
				"max_entries": map[string]any{"type": "integer", "minimum": 1, "maximum": 5000},
			},
			"required": []string{"path"},
		},
		NewInput: func() any { return &FsListInput{Depth: 1, MaxEntries: defaultFsListMaxEntries} },
		Handler: func(ctx context.Context, tc *Context, input any) (Result, error) {
			in := input.(*FsListInput)
			root, err := sandbox.Resolve(tc.WorkspaceRoot, in.Path)
			if err != nil {
				return Result{}, err
			}
			maxEntries := in.MaxEntries
			if maxEntries <= 0 {
				maxEntries = defaultFsListMaxEntries
			}
			var entries []string
			err = walkBounded(root, in.Depth, func(path string, isDir bool) error {
				if len(entries) >= maxEntries {
					return errStopWalk
				}
				rel, rerr := sandbox.RelativeTo(tc.WorkspaceRoot, path)
				if rerr != nil {
					return nil
				}
				if isDir {
					rel += "/"
				}
				entries = append(entries, rel)
				return nil
			})
			if err != nil && err != errStopWalk {
				return Result{}, err
			}
			sort.Strings(entries)
			return Result{Content: strings.Join(entries, "\n")}, nil
		},
	}
}

var errStopWalk = fmt.Errorf("stop walk")

func walkBounded(root string, depth int, fn func(path string, isDir bool) error) error {
	var walk func(dir string, remaining int) error
	walk = func(dir string, remaining int) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			p := filepath.Join(dir, e.Name())
			if err := fn(p, e.IsDir()); err != nil {
				return err
			}
			if e.IsDir() && remaining > 0 {
				if err := walk(p, remaining-1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(root, depth)
}

const defaultFsReadMaxBytes = 262144

func fsReadDef() Definition {
	return Definition{
		Name: "fs_read", Description: "Read a workspace-relative file's contents.",
		Risk: RiskSafe,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":      map[string]any{"type": "string"},
				"max_bytes": map[string]any{"type": "integer"},
			},
			"required": []string{"path"},
		},
		NewInput: func() any { return &FsReadInput{MaxBytes: defaultFsReadMaxBytes} },
		Handler: func(ctx context.Context, tc *Context, input any) (Result, error) {
			in := input.(*FsReadInput)
			abs, err := sandbox.Resolve(tc.WorkspaceRoot, in.Path)
			if err != nil {
				return Result{}, err
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				if os.IsNotExist(err) {
					return Result{}, apierr.New(apierr.KindNotFound, "file not found: "+in.Path)
				}
				return Result{}, err
			}
			limit := in.MaxBytes
			if limit <= 0 {
				limit = defaultFsReadMaxBytes
			}
			// The configured max_file_read_chars is a ceiling on top of the
			// caller's own max_bytes, never a replacement for it — whichever
			// is smaller wins.
			if tc.MaxFileReadChars > 0 && tc.MaxFileReadChars < limit {
				limit = tc.MaxFileReadChars
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
			return Result{Content: content}, nil
		},
	}
}

func fsWriteDef() Definition {
	return Definition{
		Name: "fs_write", Description: "Write a workspace-relative file, either overwriting it or appending to it (mode).",
		Risk: RiskWrite,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
				"mode":    map[string]any{"type": "string", "enum": []string{"overwrite", "append"}},
			},
			"required": []string{"path", "content"},
		},
		NewInput: func() any { return &FsWriteInput{Mode: "overwrite"} },
		Handler: func(ctx context.Context, tc *Context, input any) (Result, error) {
			if !tc.EnableWrite {
				return Result{}, apierr.New(apierr.KindToolDisabled, "fs_write is disabled for this session")
			}
			in := input.(*FsWriteInput)
			abs, err := sandbox.Resolve(tc.WorkspaceRoot, in.Path)
			if err != nil {
				return Result{}, err
			}
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return Result{}, fmt.Errorf("fs_write: mkdir: %w", err)
			}

			if in.Mode == "append" {
				f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
				if err != nil {
					return Result{}, fmt.Errorf("fs_write: %w", err)
				}
				_, werr := f.WriteString(in.Content)
				cerr := f.Close()
				if werr != nil {
					return Result{}, fmt.Errorf("fs_write: %w", werr)
				}
				if cerr != nil {
					return Result{}, fmt.Errorf("fs_write: %w", cerr)
				}
				return Result{Content: fmt.Sprintf("appended %d bytes to %s", len(in.Content), in.Path)}, nil
			}

			if err := os.WriteFile(abs, []byte(in.Content), 0o644); err != nil {
				return Result{}, fmt.Errorf("fs_write: %w", err)
			}
			return Result{Content: fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)}, nil
		},
	}
}
