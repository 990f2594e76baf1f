package prompt

import (
	"strings"
	"testing"

	"github.com/aistaff-ai/agentcore/internal/capability"
)

func TestAssembleIsDeterministic(t *testing.T) {
	p := Params{Role: "member", WorkspaceRoot: "/ws", Effective: capability.Set{Write: true}, ToolNames: []string{"fs_read", "fs_write"}}
	a := Assemble(p)
	b := Assemble(p)
	if a != b {
		t.Fatalf("expected identical output for identical input")
	}
}

func TestAssembleDisclosesDisabledCapabilities(t *testing.T) {
	out := Assemble(Params{Role: "member", WorkspaceRoot: "/ws"})
	if !strings.Contains(out, "shell command execution: disabled") {
		t.Fatalf("expected shell disclosed as disabled, got:\n%s", out)
	}
}

func TestAssembleListsToolsSorted(t *testing.T) {
	out := Assemble(Params{Role: "member", WorkspaceRoot: "/ws", ToolNames: []string{"shell_run", "fs_read"}})
	fsIdx := strings.Index(out, "fs_read")
	shellIdx := strings.Index(out, "shell_run")
	if fsIdx == -1 || shellIdx == -1 || fsIdx > shellIdx {
		t.Fatalf("expected tools listed in sorted order, got:\n%s", out)
	}
}
