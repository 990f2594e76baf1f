package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/aistaff-ai/agentcore/internal/agent"
	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/auth"
	"github.com/aistaff-ai/agentcore/internal/capability"
	"github.com/aistaff-ai/agentcore/internal/webhook"
)

// handleWebhook implements POST /webhooks/{adapter}, the HTTP front door for
// the Feishu/WeCom/OpenClaw ingress adapters named in spec §1. It only
// extracts headers and body; signature verification, parsing, and the
// chat-entry invocation all live in internal/webhook.Dispatcher, reached
// through the webhook.Invoke built by NewWebhookInvoke below.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	adapter := r.PathValue("adapter")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidation, "could not read webhook body", err))
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	if err := s.Webhooks.Handle(r.Context(), adapter, headers, body); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NewWebhookInvoke builds the webhook.Invoke callback that routes an
// inbound ingress message through the same prepareTurn/agent.Run/commitTurn
// pipeline a browser chat client drives, per spec §1's "adapters call the
// core through the same chat entry point". A webhook sender carries no
// bearer token, so its principal is synthesized from the inbound message's
// team binding at RoleMember (the least-privileged role) and a fixed
// per-adapter safe preset; an operator who wants an ingress adapter to run
// with broader capability should front it with its own bearer-token-bearing
// proxy rather than have this seam grant it implicitly.
func NewWebhookInvoke(s *Server) webhook.Invoke {
	return func(ctx context.Context, in webhook.InboundMessage) (string, error) {
		if in.TeamID == 0 {
			return "", apierr.New(apierr.KindValidation, "webhook message is not bound to a team")
		}
		principal := &auth.Principal{TeamID: in.TeamID, Role: capability.RoleMember, Subject: in.SenderID}

		prepared, err := s.prepareTurn(ctx, turnRequest{
			Principal: principal, SessionID: webhookSessionID(in), Role: "webhook:" + in.Adapter,
			Message: in.Content, SecurityPreset: string(capability.PresetSafe),
		})
		if err != nil {
			return "", err
		}
		defer prepared.release()

		out, err := agent.Run(ctx, prepared.input)
		if err != nil {
			return "", err
		}
		s.commitTurn(ctx, principal, prepared, out)
		return lastAssistantText(out.History), nil
	}
}

// webhookSessionID derives a stable session per (adapter, room) so a
// back-and-forth conversation in the same chat room keeps its history,
// matching how a browser client reuses one session_id across turns.
func webhookSessionID(in webhook.InboundMessage) string {
	return "webhook-" + in.Adapter + "-" + in.RoomID
}
