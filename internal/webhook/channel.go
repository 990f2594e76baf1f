// Package webhook defines the seam through which webhook ingress adapters
// (Feishu, WeCom, OpenClaw) call into the Agent Orchestration Core. Per
// spec §1 the adapters themselves — their signature schemes, event
// envelopes, outbound message formatting — are external collaborators; this
// package only owns the shape they must present and the dispatcher that
// turns a verified inbound event into the same chat-entry call a human
// browser client would make. Generalized from pkg/channel/channel.go's
// single-transport Channel interface (there written for one built-in
// transport, Matrix) into a signature-verified, multi-adapter registry, since
// a webhook ingress adapter can't "Start(ctx, handler)" and block on a
// socket the way a chat client does — it receives one HTTP POST at a time
// and must prove authenticity per request.
package webhook

import (
	"context"
	"sync"

	"github.com/aistaff-ai/agentcore/internal/apierr"
)

// InboundMessage is the channel-agnostic shape an Adapter parses a webhook
// body into, generalized from pkg/channel/channel.go's Message (Source,
// SenderID, RoomID, Content, IsVoice, Timestamp) with a TeamID added since,
// unlike Matrix's single always-on bridge, a multi-tenant webhook ingress
// must resolve which team owns the inbound room/chat before entering the
// core.
type InboundMessage struct {
	Adapter   string // "feishu" | "wecom" | "openclaw"
	TeamID    int64
	SenderID  string
	RoomID    string
	Content   string
	IsVoice   bool
	Timestamp int64
}

// OutboundResponse is what the dispatcher hands back to the adapter to
// deliver to the originating room.
type OutboundResponse struct {
	RoomID  string
	Content string
}

// Adapter is implemented outside the core, one per external platform. Name
// identifies it for routing (the webhook URL path carries the adapter
// name); VerifySignature authenticates the raw request per that platform's
// scheme before Parse is ever called, so an unverified payload never
// reaches the chat entry point; Send delivers the assistant's reply back
// through the platform's own outbound API.
type Adapter interface {
	Name() string
	VerifySignature(headers map[string]string, body []byte) error
	Parse(body []byte) (*InboundMessage, error)
	Send(ctx context.Context, resp OutboundResponse) error
}

// Invoke is the core's chat-entry call, injected by whoever wires the
// dispatcher (internal/httpapi) so this package never imports net/http or
// the agent loop directly — it only needs "take a message in, get assistant
// text back".
type Invoke func(ctx context.Context, in InboundMessage) (assistantText string, err error)

// Dispatcher routes a verified webhook event to the chat entry point and
// relays the reply back through the originating adapter.
type Dispatcher struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	invoke   Invoke
}

func NewDispatcher(invoke Invoke) *Dispatcher {
	return &Dispatcher{adapters: make(map[string]Adapter), invoke: invoke}
}

func (d *Dispatcher) Register(a Adapter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adapters[a.Name()] = a
}

// Handle verifies, parses, invokes the chat entry point, and relays the
// reply. Any failure short-circuits before the chat entry point is reached
// except a send failure after a successful turn, which is returned but does
// not undo the already-committed turn.
func (d *Dispatcher) Handle(ctx context.Context, adapterName string, headers map[string]string, body []byte) error {
	d.mu.RLock()
	a, ok := d.adapters[adapterName]
	d.mu.RUnlock()
	if !ok {
		return apierr.New(apierr.KindNotFound, "no webhook adapter registered for "+adapterName)
	}

	if err := a.VerifySignature(headers, body); err != nil {
		return apierr.Wrap(apierr.KindAuth, "webhook signature verification failed", err)
	}

	msg, err := a.Parse(body)
	if err != nil {
		return apierr.Wrap(apierr.KindValidation, "could not parse webhook body", err)
	}
	msg.Adapter = adapterName

	text, err := d.invoke(ctx, *msg)
	if err != nil {
		return err
	}

	return a.Send(ctx, OutboundResponse{RoomID: msg.RoomID, Content: text})
}
