package provider

import (
	"context"
	"testing"
)

func TestRouterUsesFirstCapableProvider(t *testing.T) {
	sandboxed := NewMock(Capabilities{CanRunUnsandboxed: false}, CompleteResponse{Content: "sandboxed"})
	native := NewMock(Capabilities{CanRunUnsandboxed: true}, CompleteResponse{Content: "native"})
	r := NewRouter(nil, sandboxed, native)

	resp, name, err := r.Complete(context.Background(), CompleteRequest{}, Capabilities{}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if name != "mock" || resp.Content != "sandboxed" {
		t.Fatalf("expected first provider used, got name=%s content=%s", name, resp.Content)
	}
}

func TestRouterSkipsProvidersMissingUnsandboxedCapability(t *testing.T) {
	sandboxed := NewMock(Capabilities{CanRunUnsandboxed: false}, CompleteResponse{Content: "sandboxed"})
	native := NewMock(Capabilities{CanRunUnsandboxed: true}, CompleteResponse{Content: "native"})
	r := NewRouter(nil, sandboxed, native)

	var fallbacks []FallbackEvent
	resp, name, err := r.Complete(context.Background(), CompleteRequest{}, Capabilities{CanRunUnsandboxed: true}, func(e FallbackEvent) { fallbacks = append(fallbacks, e) })
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "native" {
		t.Fatalf("expected fallback to the unsandboxed-capable provider, got %s", resp.Content)
	}
	if len(fallbacks) != 1 {
		t.Fatalf("expected exactly one fallback event recorded, got %d", len(fallbacks))
	}
	if fallbacks[0].From != "mock" || fallbacks[0].To != "mock" || len(fallbacks[0].Requested) != 1 || fallbacks[0].Requested[0] != "unsandboxed" {
		t.Fatalf("unexpected fallback event: %+v", fallbacks[0])
	}
	_ = name
}

func TestRouterFallsBackWhenPreferredProviderCannotGenerateDocs(t *testing.T) {
	opencode := &namedMock{Mock: *NewMock(Capabilities{CanGenerateDocs: false}, CompleteResponse{Content: "opencode"}), name: "opencode"}
	native := &namedMock{Mock: *NewMock(Capabilities{CanGenerateDocs: true}, CompleteResponse{Content: "native"}), name: "native"}
	r := NewRouter(nil, opencode, native)

	var fallbacks []FallbackEvent
	resp, name, err := r.Complete(context.Background(), CompleteRequest{}, Capabilities{CanGenerateDocs: true}, func(e FallbackEvent) { fallbacks = append(fallbacks, e) })
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if name != "native" || resp.Content != "native" {
		t.Fatalf("expected fallback to native, got name=%s content=%s", name, resp.Content)
	}
	if len(fallbacks) != 1 {
		t.Fatalf("expected exactly one fallback event recorded, got %d", len(fallbacks))
	}
	if fallbacks[0].From != "opencode" || fallbacks[0].To != "native" || len(fallbacks[0].Requested) != 1 || fallbacks[0].Requested[0] != "docs" {
		t.Fatalf("unexpected fallback event shape: %+v", fallbacks[0])
	}
}

type namedMock struct {
	Mock
	name string
}

func (n *namedMock) Name() string { return n.name }

type erroringProvider struct{ Mock }

func (e *erroringProvider) Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error) {
	return nil, &Error{Provider: "broken", Message: "boom"}
}

func TestRouterFallsThroughOnError(t *testing.T) {
	broken := &erroringProvider{Mock: *NewMock(Capabilities{CanRunUnsandboxed: true})}
	healthy := NewMock(Capabilities{CanRunUnsandboxed: true}, CompleteResponse{Content: "ok"})
	r := NewRouter(nil, broken, healthy)

	resp, _, err := r.Complete(context.Background(), CompleteRequest{}, Capabilities{}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("expected fallthrough to healthy provider, got %s", resp.Content)
	}
}

func TestRouterReturnsErrorWhenAllProvidersFail(t *testing.T) {
	broken := &erroringProvider{Mock: *NewMock(Capabilities{CanRunUnsandboxed: true})}
	r := NewRouter(nil, broken)
	_, _, err := r.Complete(context.Background(), CompleteRequest{}, Capabilities{}, nil)
	if err == nil {
		t.Fatalf("expected error when every provider fails")
	}
}
