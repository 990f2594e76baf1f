package provider

import (
	"context"
	"log/slog"
)

// Router tries providers in preference order, falling back when a
// provider can't satisfy the request's capability needs or returns an
// error — grounded on internal/llm/provider.go's Router, generalized from
// a cost-tier fallback chain to a capability-aware one and from a static
// map lookup to an ordered list so preference order is explicit.
type Router struct {
	providers []Provider
	log       *slog.Logger
}

func NewRouter(log *slog.Logger, providers ...Provider) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{providers: providers, log: log}
}

// FallbackEvent is emitted (via the caller's events.Recorder) whenever the
// router skips a provider, so the client sees why the agent ended up on a
// different model than requested. Requested mirrors spec's
// provider_fallback wire shape (e.g. ["docs"], ["unsandboxed"]).
type FallbackEvent struct {
	From      string
	To        string
	Requested []string
}

// missingNeeds reports which of need's set bits are unmet by have, using
// the exact vocabulary spec's provider_fallback.requested field expects.
func missingNeeds(need, have Capabilities) []string {
	var missing []string
	if need.CanRunUnsandboxed && !have.CanRunUnsandboxed {
		missing = append(missing, "unsandboxed")
	}
	if need.CanGenerateDocs && !have.CanGenerateDocs {
		missing = append(missing, "docs")
	}
	if need.CanReadAttachments && !have.CanReadAttachments {
		missing = append(missing, "attachments")
	}
	return missing
}

// Complete tries providers in order, skipping any that cannot satisfy
// need (spec §4.7's static per-provider capability declaration), and
// falling through to the next on error. onFallback, if non-nil, fires
// exactly once a provider actually answers, naming the last
// skipped/failed provider as From and the one that answered as To — never
// for a request the very first, preferred provider satisfies outright.
func (r *Router) Complete(ctx context.Context, req CompleteRequest, need Capabilities, onFallback func(FallbackEvent)) (*CompleteResponse, string, error) {
	var lastErr error
	var lastName string
	var lastRequested []string

	for _, p := range r.providers {
		if missing := missingNeeds(need, p.Capabilities()); len(missing) > 0 {
			r.log.Info("provider missing capability, trying next", "provider", p.Name(), "requested", missing)
			lastName = p.Name()
			lastRequested = missing
			continue
		}

		resp, err := p.Complete(ctx, req)
		if err == nil {
			if lastName != "" && onFallback != nil {
				onFallback(FallbackEvent{From: lastName, To: p.Name(), Requested: lastRequested})
			}
			return resp, p.Name(), nil
		}

		r.log.Warn("provider failed, trying next", "provider", p.Name(), "error", err)
		lastErr = err
		lastName = p.Name()
		lastRequested = nil
	}

	if lastErr == nil {
		lastErr = &Error{Message: "no configured provider could satisfy this request"}
	}
	return nil, lastName, lastErr
}
