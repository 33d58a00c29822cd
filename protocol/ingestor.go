package protocol

import (
	"context"
	"log"
)

// Result is what applying one inbound frame produced. Handled is false only
// when the text was not a recognized frame; Deduped is true when the frame
// was recognized but caused no new state change. Callers must not retry a
// deduped frame.
type Result struct {
	Handled bool `json:"handled"`
	Deduped bool `json:"deduped"`
}

var (
	// Fresh reports a frame that changed state.
	Fresh = Result{Handled: true}
	// Duplicate reports a recognized frame with no new effect.
	Duplicate = Result{Handled: true, Deduped: true}
	// NotHandled reports text the grammar could not classify.
	NotHandled = Result{}
)

// MessageHandler defines callbacks for every mesh frame type.
// Embed NoOpHandler and override only the methods you need.
type MessageHandler interface {
	// Device -> relay
	HandleReq(ctx context.Context, m *Req) Result
	HandleCancel(ctx context.Context, m *Cancel) Result
	HandlePong(ctx context.Context, m *Pong) Result

	// Relay -> device, seen again when a gateway echoes them back
	HandleClaim(ctx context.Context, m *Claim) Result
	HandleResolve(ctx context.Context, m *Resolve) Result
	HandleDetails(ctx context.Context, m *Details) Result
	HandlePing(ctx context.Context, m *Ping) Result
	HandleMail(ctx context.Context, m *Mail) Result
}

// Ingestor decodes raw mesh text and dispatches it to a MessageHandler.
type Ingestor struct {
	handler MessageHandler
}

// NewIngestor creates an ingestor for the given handler.
func NewIngestor(handler MessageHandler) *Ingestor {
	return &Ingestor{handler: handler}
}

// HandleText is the entry point for one raw frame from a gateway.
func (ing *Ingestor) HandleText(ctx context.Context, text string) Result {
	return ing.Dispatch(ctx, Parse(text))
}

// Dispatch routes an already parsed message to its handler.
func (ing *Ingestor) Dispatch(ctx context.Context, msg Message) Result {
	switch m := msg.(type) {
	case Req:
		return ing.handler.HandleReq(ctx, &m)
	case Cancel:
		return ing.handler.HandleCancel(ctx, &m)
	case Pong:
		return ing.handler.HandlePong(ctx, &m)
	case Claim:
		return ing.handler.HandleClaim(ctx, &m)
	case Resolve:
		return ing.handler.HandleResolve(ctx, &m)
	case Details:
		return ing.handler.HandleDetails(ctx, &m)
	case Ping:
		return ing.handler.HandlePing(ctx, &m)
	case Mail:
		return ing.handler.HandleMail(ctx, &m)
	case Unparsed:
		log.Printf("protocol: dropping unrecognized frame (%d bytes)", len(m.Raw))
		return NotHandled
	default:
		log.Printf("protocol: dropping unsupported message %T", msg)
		return NotHandled
	}
}
