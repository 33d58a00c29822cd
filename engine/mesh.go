package engine

import (
	"context"

	"helprelay/protocol"
)

// HandleReq opens a request the first time its id is seen.
func (e *Engine) HandleReq(ctx context.Context, m *protocol.Req) protocol.Result {
	req, fresh := e.table.Create(*m)
	if !fresh {
		return protocol.Duplicate
	}
	e.logFn("engine: request %s from device %d (%s)", req.ID, req.DeviceID, req.Status)
	e.present(ctx, req)
	if got, ok := e.table.Get(req.ID); ok {
		req = got
	}
	e.Events.Emit(Event{Type: EventRequestCreated, Payload: RequestEvent{Request: req}})
	return protocol.Fresh
}

// HandleCancel withdraws a live request. The device id in the frame is not
// checked against the request's.
func (e *Engine) HandleCancel(ctx context.Context, m *protocol.Cancel) protocol.Result {
	req, from, fresh := e.table.Cancel(m.ReqID)
	if !fresh {
		return protocol.Duplicate
	}
	e.logFn("engine: request %s canceled by device %d", req.ID, m.DeviceID)
	e.refresh(ctx, req)
	e.Events.Emit(Event{Type: EventRequestCanceled, Payload: RequestEvent{Request: req, OldStatus: from}})
	return protocol.Fresh
}

// HandlePong records a probe answer. Pongs for closed or unknown probes
// are deduped.
func (e *Engine) HandlePong(_ context.Context, m *protocol.Pong) protocol.Result {
	if !e.table.MarkPong(m.PingID, m.DeviceID) {
		return protocol.Duplicate
	}
	return protocol.Fresh
}
