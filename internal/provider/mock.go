package provider

import (
	"context"
	"sync"
	"time"
)

// Mock is a deterministic, dependency-free provider for tests: it either
// returns a canned response or, if configured, a single tool call
// followed by a text reply on the next invocation. Grounded on
// pkg/brain/brain_test.go's preference for real-but-minimal fixtures over
// mocking frameworks — this is a plain struct, not a generated mock.
type Mock struct {
	Responses []CompleteResponse
	// Delay, if set, is slept before each Complete returns — used to widen
	// the race window in concurrency tests (e.g. two /chat calls racing on
	// the same session_id).
	Delay time.Duration

	mu    sync.Mutex
	calls int
	caps  Capabilities
}

func NewMock(caps Capabilities, responses ...CompleteResponse) *Mock {
	return &Mock{Responses: responses, caps: caps}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Capabilities() Capabilities { return m.caps }

func (m *Mock) Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return &CompleteResponse{Content: "mock response"}, nil
	}
	idx := m.calls
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.calls++
	resp := m.Responses[idx]
	return &resp, nil
}
