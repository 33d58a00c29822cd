package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"helprelay/protocol"
	"helprelay/requests"
)

// Operator actions.
const (
	ActionDetails = "details"
	ActionClaim   = "claim"
	ActionResolve = "resolve"
)

var (
	ErrUnknownAction = errors.New("unknown operator action")
	ErrActorRequired = errors.New("actor is required")
)

// OperatorAction is one decision made by a human through the presentation
// surface, the HTTP API or the message bus.
type OperatorAction struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	Actor     string `json:"actor"`
	Text      string `json:"text,omitempty"`
}

// HandleOperatorAction applies a details, claim or resolve action. On
// success the sink is refreshed, the outbound frame is relayed to the
// gateways and the updated snapshot is returned. Rejections return one of
// the requests sentinel errors and change nothing.
func (e *Engine) HandleOperatorAction(ctx context.Context, a OperatorAction) (requests.HelpRequest, error) {
	a.Action = strings.ToLower(strings.TrimSpace(a.Action))
	a.Actor = strings.TrimSpace(a.Actor)

	var (
		req  requests.HelpRequest
		err  error
		from string
		evt  EventType
	)
	switch a.Action {
	case ActionDetails:
		req, err = e.table.SubmitDetails(a.RequestID, a.Text)
		from, evt = requests.StatusPending, EventRequestOpened
	case ActionClaim:
		if a.Actor == "" {
			err = ErrActorRequired
			break
		}
		req, err = e.table.Claim(a.RequestID, a.Actor)
		from, evt = requests.StatusOpen, EventRequestClaimed
	case ActionResolve:
		if a.Actor == "" {
			err = ErrActorRequired
			break
		}
		req, err = e.table.Resolve(a.RequestID, a.Actor)
		from, evt = requests.StatusClaimed, EventRequestResolved
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, a.Action)
	}
	if err != nil {
		e.Events.Emit(Event{Type: EventActionRejected, Payload: ActionRejectedEvent{
			RequestID: a.RequestID, Action: a.Action, Actor: a.Actor, Err: err,
		}})
		return req, err
	}

	switch a.Action {
	case ActionDetails:
		// Details move the request to a new surface; the old one is
		// rewritten first so it no longer offers the details prompt.
		if req.PresentationRef != "" {
			if uerr := e.sink.Update(ctx, req.PresentationRef, req); uerr != nil {
				e.logFn("engine: update request %s: %v", req.ID, uerr)
			}
		}
		e.present(ctx, req)
		e.relay(ctx, protocol.Details{ReqID: req.ID, DeviceID: req.DeviceID, Text: req.Reason})
	case ActionClaim:
		e.refresh(ctx, req)
		e.relay(ctx, protocol.Claim{ReqID: req.ID, DeviceID: req.DeviceID, Actor: protocol.SanitizeText(a.Actor)})
	case ActionResolve:
		e.refresh(ctx, req)
		e.relay(ctx, protocol.Resolve{ReqID: req.ID, DeviceID: req.DeviceID, Actor: protocol.SanitizeText(a.Actor)})
	}

	if got, ok := e.table.Get(req.ID); ok {
		req = got
	}
	e.logFn("engine: request %s %s -> %s by %s", req.ID, from, req.Status, actorLabel(a.Actor))
	e.Events.Emit(Event{Type: evt, Payload: RequestEvent{Request: req, OldStatus: from, Actor: a.Actor}})
	return req, nil
}

func actorLabel(actor string) string {
	if actor == "" {
		return "operator"
	}
	return actor
}
