// Package agent implements the tool-use loop: the part of the system that
// actually talks to a model provider, dispatches the tool calls it
// requests, and feeds results back until the model stops asking for tools
// or a step budget is exhausted. Grounded on
// internal/daemon/chattools.go's runToolLoop (bounded turn count, per-call
// timeout, tool_use/tool_result pairing) and
// original_source/agent/run_task.py's run_agent_task (trim-before-call
// ordering, the exact event sequence, and the max_steps stop message).
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/artifact"
	"github.com/aistaff-ai/agentcore/internal/budget"
	"github.com/aistaff-ai/agentcore/internal/capability"
	"github.com/aistaff-ai/agentcore/internal/events"
	"github.com/aistaff-ai/agentcore/internal/provider"
	"github.com/aistaff-ai/agentcore/internal/tools"
)

// Config bounds one turn's execution: how many provider round-trips it
// may take and how long a single tool call may run before being killed.
type Config struct {
	MaxSteps           int
	ToolTimeout        time.Duration
	MaxToolOutputChars int
	BudgetConfig       budget.Config
}

func DefaultConfig() Config {
	return Config{
		MaxSteps: 12, ToolTimeout: 10 * time.Second, MaxToolOutputChars: 8_000,
		BudgetConfig: budget.Config{MaxMessages: 60, MaxChars: 120_000},
	}
}

// Input is everything one turn needs: the running history, the system
// prompt already assembled by internal/prompt, the registry to dispatch
// tools against, the provider router to talk to a model, and the
// effective capability set this turn is allowed to exercise.
type Input struct {
	System             string
	History            []budget.ChatMessage
	Registry           *tools.Registry
	Router             *provider.Router
	ToolContext        *tools.Context
	Preset             capability.Preset
	Requested          capability.Set
	Effective          capability.Set
	PreferredProvider  string
	Model              string
	Config             Config
	// NeedsDocGen and NeedsAttachments signal, once at the start of the
	// turn, that this turn wants a capability the preferred provider may
	// not have (spec §4.7's static per-provider capability declaration) —
	// computed by the caller from the request, not re-derived per step.
	NeedsDocGen      bool
	NeedsAttachments bool

	// Sink, if non-nil, receives a copy of every event as it's emitted so
	// an HTTP handler can stream the turn over SSE while it runs. The full
	// trace is always returned in Output.Events regardless of Sink.
	Sink chan<- events.Event

	// TaskArtifactFallbackDir roots the on-disk task mirror (spec's
	// task_artifact side-channel) when the workspace itself can't be
	// written to; typically the server's configured outputs directory.
	TaskArtifactFallbackDir string
}

// Output is what a completed turn produced: the updated history (ready to
// persist and to seed the next turn), the recorded event trace, and the
// set of attachments any tool produced this turn.
type Output struct {
	History     []budget.ChatMessage
	Events      []events.Event
	Attachments []tools.ProducedAttachment
	// ProviderUsed names whichever provider variant actually answered,
	// which may differ from the one initially preferred if the router
	// fell back.
	ProviderUsed string
}

// Run executes the loop described in the package doc. It never returns an
// error for ordinary tool failures, unknown tools, or validation
// problems — those become tool_result/error events within Output so the
// caller can still persist a complete turn. It returns an error only for
// conditions that make persisting a turn meaningless, such as the context
// being cancelled before any provider call completes.
func Run(ctx context.Context, in Input) (Output, error) {
	rec := events.NewRecorder(in.Sink)
	task, taskID := openTaskMirror(in)

	emit := func(e events.Event) {
		rec.Emit(e)
		if task != nil {
			if line, err := json.Marshal(e); err == nil {
				_ = task.AppendLog(string(line))
			}
		}
	}
	finish := func(history []budget.ChatMessage, attachments []tools.ProducedAttachment, providerUsed, status string) Output {
		if task != nil {
			_ = task.WriteAssistant(lastAssistantContent(history))
			_ = task.WriteMeta(taskID, in.ToolContext.SessionID, status)
		}
		return Output{History: history, Events: rec.Events(), Attachments: attachments, ProviderUsed: providerUsed}
	}

	emit(events.SecurityProfile(string(in.Preset), in.Requested.Map(), in.Effective.Map()))

	toolSpecs := toToolSpecs(in.Registry)
	need := provider.Capabilities{
		CanRunUnsandboxed:  in.Effective.Dangerous,
		CanGenerateDocs:    in.NeedsDocGen,
		CanReadAttachments: in.NeedsAttachments,
	}

	history := append([]budget.ChatMessage{}, in.History...)
	var attachments []tools.ProducedAttachment
	var providerUsed string

	if task != nil {
		_ = task.WritePrompt(lastUserContent(in.History))
		emit(events.TaskArtifact(taskID, task.Dir))
	}

	for step := 0; step < in.Config.MaxSteps; step++ {
		trimmed := budget.Trim(history, in.Config.BudgetConfig)
		if trimmed.Trimmed {
			emit(events.ContextTrim(trimmed.DroppedCount, in.Config.BudgetConfig.MaxChars))
		}
		history = trimmed.Messages

		emit(events.ProviderStart(in.PreferredProvider, in.Model))
		start := time.Now()

		resp, usedName, err := in.Router.Complete(ctx, provider.CompleteRequest{
			System:   in.System,
			Messages: history,
			Tools:    toolSpecs,
			Model:    in.Model,
		}, need, func(fb provider.FallbackEvent) {
			emit(events.ProviderFallback(fb.From, fb.To, fb.Requested))
		})
		if err != nil {
			emit(events.Error(err.Error()))
			emit(events.Done(false))
			if ctx.Err() != nil && providerUsed == "" {
				return finish(history, attachments, providerUsed, "cancelled"),
					apierr.Wrap(apierr.KindCancelled, "turn cancelled before any provider call completed", ctx.Err())
			}
			return finish(history, attachments, providerUsed, "error"), nil
		}
		providerUsed = usedName
		emit(events.ProviderDone(time.Since(start).Milliseconds()))

		if len(resp.ToolCalls) == 0 {
			history = append(history, budget.ChatMessage{Role: "assistant", Content: resp.Content})
			emit(events.AssistantMessage(resp.Content))
			emit(events.Done(true))
			return finish(history, attachments, providerUsed, "done"), nil
		}

		callsJSON, _ := json.Marshal(resp.ToolCalls)
		history = append(history, budget.ChatMessage{Role: "assistant", Content: resp.Content, ToolCallsJSON: string(callsJSON)})

		for _, call := range resp.ToolCalls {
			var argsVal any
			_ = json.Unmarshal(call.Input, &argsVal)
			emit(events.ToolCall(call.Name, argsVal))

			result, produced := dispatchOne(ctx, in.Registry, in.ToolContext, in.Config.ToolTimeout, call)
			result.Content = truncateToolOutput(result.Content, in.Config.MaxToolOutputChars)
			if result.IsError {
				emit(events.ToolResult(call.Name, nil, result.Content))
			} else {
				emit(events.ToolResult(call.Name, result.Content, ""))
			}

			history = append(history, budget.ChatMessage{Role: "tool", Content: result.Content, ToolCallID: call.ID, Name: call.Name})

			for _, a := range produced {
				attachments = append(attachments, a)
				emit(events.TaskArtifact(a.FileID, a.AbsPath))
			}
		}
	}

	emit(events.Error(fmt.Sprintf("stopped after %d tool-use steps without a final answer", in.Config.MaxSteps)))
	emit(events.Done(false))
	return finish(history, attachments, providerUsed, "max_steps_exceeded"), nil
}

// openTaskMirror starts the turn's on-disk debugging bundle (spec's
// task_artifact side-channel), returning nil rather than failing the turn
// when there's no session/workspace to mirror into or the mirror directory
// can't be created at all (fallback included).
func openTaskMirror(in Input) (*artifact.TaskArtifact, string) {
	if in.ToolContext == nil || in.ToolContext.SessionID == "" {
		return nil, ""
	}
	taskID := uuid.NewString()
	task, err := artifact.PrepareTaskArtifact(in.ToolContext.WorkspaceRoot, in.TaskArtifactFallbackDir, in.ToolContext.SessionID, taskID)
	if err != nil {
		return nil, ""
	}
	_ = task.WriteMeta(taskID, in.ToolContext.SessionID, "running")
	return task, taskID
}

func lastUserContent(history []budget.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	return ""
}

func lastAssistantContent(history []budget.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "assistant" && history[i].Content != "" {
			return history[i].Content
		}
	}
	return ""
}

// dispatchOne runs a single tool call under its own timeout, translating
// any error (unknown tool, validation failure, capability disabled, tool
// panic-free failure) into a tool_result rather than aborting the loop,
// matching run_agent_task's per-call try/except. The timeout is the called
// tool's own Definition.Timeout when it declares one (e.g. shell_run's
// ten-minute ceiling, which must outlive the command's own timeout_ms
// argument to matter at all) and defaultTimeout otherwise.
func dispatchOne(ctx context.Context, reg *tools.Registry, tc *tools.Context, defaultTimeout time.Duration, call provider.ToolCall) (tools.Result, []tools.ProducedAttachment) {
	timeout := defaultTimeout
	if def, ok := reg.Definition(call.Name); ok && def.Timeout > 0 {
		timeout = def.Timeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := reg.Dispatch(callCtx, call.Name, json.RawMessage(call.Input), tc)
	if err != nil {
		return tools.Result{Content: err.Error(), IsError: true}, nil
	}
	return result, result.Attachments
}

// truncateToolOutput enforces spec §4.8 step (f): a result exactly at the
// limit is left untouched, and anything longer is cut to the limit with a
// trailing marker rather than silently dropped.
func truncateToolOutput(content string, limit int) string {
	if limit <= 0 || len(content) <= limit {
		return content
	}
	return content[:limit] + "…(truncated)"
}

func toToolSpecs(reg *tools.Registry) []provider.ToolSpec {
	if reg == nil {
		return nil
	}
	defs := reg.Definitions()
	specs := make([]provider.ToolSpec, 0, len(defs))
	for _, d := range defs {
		specs = append(specs, provider.ToolSpec{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}
	return specs
}
