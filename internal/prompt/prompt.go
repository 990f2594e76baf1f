// Package prompt assembles the system prompt handed to a provider for one
// turn. It is a pure function of its inputs — no I/O, no global state — so
// the same (role, capabilities, workspace) always produces the same
// prompt, making it trivial to unit test and to diff across changes.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aistaff-ai/agentcore/internal/capability"
)

// Params is everything the assembler needs to build a turn's system
// prompt. TeamName/ProjectName are optional context the caller may not
// always have on hand.
type Params struct {
	Role          string
	WorkspaceRoot string
	TeamName      string
	ProjectName   string
	Effective     capability.Set
	ToolNames     []string
	ExtraInstructions string
}

// Assemble builds the system prompt in five fixed sections — identity,
// workspace, capability disclosure, tool inventory, and any
// caller-supplied extra instructions — in that order, so the model always
// sees its operating constraints before its toolset.
func Assemble(p Params) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an AI workspace agent acting in the %q role.\n", p.Role)
	if p.TeamName != "" {
		fmt.Fprintf(&b, "You are working on behalf of team %q.\n", p.TeamName)
	}
	if p.ProjectName != "" {
		fmt.Fprintf(&b, "Current project: %q.\n", p.ProjectName)
	}

	fmt.Fprintf(&b, "\nYour workspace root is %s. All file paths you use must be relative to it; "+
		"you cannot read or write outside it.\n", p.WorkspaceRoot)

	b.WriteString("\nCapabilities enabled for this turn:\n")
	for _, line := range capabilityLines(p.Effective) {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(p.ToolNames) > 0 {
		names := append([]string{}, p.ToolNames...)
		sort.Strings(names)
		fmt.Fprintf(&b, "\nAvailable tools: %s.\n", strings.Join(names, ", "))
	}

	if p.ExtraInstructions != "" {
		b.WriteString("\n")
		b.WriteString(p.ExtraInstructions)
		b.WriteString("\n")
	}

	return b.String()
}

func capabilityLines(eff capability.Set) []string {
	lines := []string{
		boolLine("file writes", eff.Write),
		boolLine("shell command execution", eff.Shell),
		boolLine("headless browser control", eff.Browser),
		boolLine("unsandboxed execution", eff.Dangerous),
	}
	return lines
}

func boolLine(name string, enabled bool) string {
	if enabled {
		return name + ": enabled"
	}
	return name + ": disabled"
}
