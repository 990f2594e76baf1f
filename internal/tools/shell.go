package tools

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/aistaff-ai/agentcore/internal/apierr"
)

// ShellRunInput mirrors original_source's ShellRunArgs: a shell command
// string and a millisecond timeout bounded at ten minutes.
type ShellRunInput struct {
	Command string `json:"command" validate:"required"`
	// No omitempty: an explicit timeout_ms of 0 must fail gte=1 rather
	// than be treated as "absent" and silently defaulted by the handler.
	// Omitting the field entirely from the request JSON leaves NewInput's
	// pre-populated 60000 untouched, since json.Unmarshal never assigns a
	// struct field it doesn't find a matching key for.
	TimeoutMs int `json:"timeout_ms" validate:"gte=1,lte=600000"`
}

type shellRunOutput struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timed_out"`
}

func shellRunDef() Definition {
	return Definition{
		Name: "shell_run", Description: "Run a shell command inside the workspace root with a bounded timeout.",
		Risk: RiskShell,
		// The loop's outer per-call context must never expire before
		// TimeoutMs's own clamp (<=10min, shell.go's runShell) can, or the
		// argument is dead for any command running past the loop's short
		// default.
		Timeout: 10 * time.Minute,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command":    map[string]any{"type": "string"},
				"timeout_ms": map[string]any{"type": "integer", "minimum": 1, "maximum": 600000},
			},
			"required": []string{"command"},
		},
		NewInput: func() any { return &ShellRunInput{TimeoutMs: 60000} },
		Handler: func(ctx context.Context, tc *Context, input any) (Result, error) {
			if !tc.EnableShell {
				return Result{}, apierr.New(apierr.KindToolDisabled, "shell_run is disabled for this session")
			}
			in := input.(*ShellRunInput)
			timeout := time.Duration(in.TimeoutMs) * time.Millisecond
			return runShell(ctx, tc, in.Command, timeout)
		},
	}
}

func runShell(ctx context.Context, tc *Context, command string, timeout time.Duration) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = tc.WorkspaceRoot

	stdoutBuf, stderrBuf := &truncatingBuffer{limit: 65536}, &truncatingBuffer{limit: 65536}
	cmd.Stdout = stdoutBuf
	cmd.Stderr = stderrBuf

	runErr := cmd.Run()
	timedOut := runCtx.Err() == context.DeadlineExceeded

	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil && !timedOut {
		return Result{}, apierr.Wrap(apierr.KindToolFailure, "shell_run failed to start", runErr)
	}

	out := shellRunOutput{ExitCode: exitCode, Stdout: stdoutBuf.String(), Stderr: stderrBuf.String(), TimedOut: timedOut}
	return Result{Content: fmt.Sprintf("exit_code=%d timed_out=%v\nstdout:\n%s\nstderr:\n%s", out.ExitCode, out.TimedOut, out.Stdout, out.Stderr)}, nil
}

// truncatingBuffer caps accumulated output at limit bytes, appending a
// marker once exceeded, matching the combined-output truncation in
// original_source's shell_tools.py.
type truncatingBuffer struct {
	buf   []byte
	limit int
	cut   bool
}

func (t *truncatingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if t.cut {
		return n, nil
	}
	remaining := t.limit - len(t.buf)
	if remaining <= 0 {
		t.cut = true
		t.buf = append(t.buf, []byte("\n…(truncated)")...)
		return n, nil
	}
	if len(p) > remaining {
		t.buf = append(t.buf, p[:remaining]...)
		t.buf = append(t.buf, []byte("\n…(truncated)")...)
		t.cut = true
		return n, nil
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *truncatingBuffer) String() string { return string(t.buf) }
