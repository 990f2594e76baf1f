// Package events implements the turn-scoped event trace as a tagged sum
// type (spec: "emit as tagged objects; avoid stringly-typed events"). Each
// turn owns one Recorder; SSE streaming reads directly off Input.Sink in
// internal/httpapi rather than through a separate fan-out bus, since a
// chat turn has exactly one live reader.
package events

import (
	"encoding/json"
	"sync"
)

type Type string

const (
	TypeSecurityProfile  Type = "security_profile"
	TypeProviderStart    Type = "provider_start"
	TypeProviderDone     Type = "provider_done"
	TypeProviderFallback Type = "provider_fallback"
	TypeToolCall         Type = "tool_call"
	TypeToolResult       Type = "tool_result"
	TypeTaskArtifact     Type = "task_artifact"
	TypePermission       Type = "permission"
	TypeContextTrim      Type = "context_trim"
	TypeAssistantMessage Type = "assistant_message"
	TypeError            Type = "error"
	TypeDone             Type = "done"
)

// Event is a tagged object: Type selects which of the variant constructors
// below produced it; Data carries the variant's fields flattened into the
// wire object alongside "type". Field names match spec's wire format
// exactly (snake_case JSON keys already present in Data).
type Event struct {
	Type Type
	Data map[string]any
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		out[k] = v
	}
	out["type"] = string(e.Type)
	return json.Marshal(out)
}

func SecurityProfile(preset string, requested, effective map[string]bool) Event {
	return Event{Type: TypeSecurityProfile, Data: map[string]any{
		"preset": preset, "requested": requested, "effective": effective,
	}}
}

func ProviderStart(provider, model string) Event {
	return Event{Type: TypeProviderStart, Data: map[string]any{"provider": provider, "model": model}}
}

func ProviderDone(elapsedMs int64) Event {
	return Event{Type: TypeProviderDone, Data: map[string]any{"elapsed_ms": elapsedMs}}
}

func ProviderFallback(from, to string, requested []string) Event {
	return Event{Type: TypeProviderFallback, Data: map[string]any{
		"from": from, "to": to, "requested": requested,
	}}
}

func ToolCall(tool string, args any) Event {
	return Event{Type: TypeToolCall, Data: map[string]any{"tool": tool, "args": args}}
}

func ToolResult(tool string, result any, errMsg string) Event {
	data := map[string]any{"tool": tool}
	if errMsg != "" {
		data["result"] = map[string]any{"error": errMsg}
	} else {
		data["result"] = result
	}
	return Event{Type: TypeToolResult, Data: data}
}

func TaskArtifact(taskID, path string) Event {
	return Event{Type: TypeTaskArtifact, Data: map[string]any{"task_id": taskID, "path": path}}
}

func Permission(message string, granted bool) Event {
	return Event{Type: TypePermission, Data: map[string]any{"message": message, "granted": granted}}
}

func ContextTrim(dropped, maxChars int) Event {
	return Event{Type: TypeContextTrim, Data: map[string]any{"dropped": dropped, "max_chars": maxChars}}
}

func AssistantMessage(content string) Event {
	return Event{Type: TypeAssistantMessage, Data: map[string]any{"content": content}}
}

func Error(message string) Event {
	return Event{Type: TypeError, Data: map[string]any{"message": message}}
}

func Done(success bool) Event {
	return Event{Type: TypeDone, Data: map[string]any{"success": success}}
}

// Recorder accumulates the strictly-ordered event trace for a single turn
// and optionally fans each event out to a live subscriber (SSE).
type Recorder struct {
	mu     sync.Mutex
	events []Event
	sink   chan<- Event
}

func NewRecorder(sink chan<- Event) *Recorder {
	return &Recorder{sink: sink}
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if r.sink != nil {
		select {
		case r.sink <- e:
		default:
		}
	}
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// MarshalEventsJSON serializes the full trace as the buffered JSON-array
// encoding of the stream (the non-streaming /chat response shape).
func MarshalEventsJSON(evts []Event) (json.RawMessage, error) {
	return json.Marshal(evts)
}
