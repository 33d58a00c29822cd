package engine

import (
	"errors"
	"fmt"

	"helprelay/gateway"
	"helprelay/lighthouse"
	"helprelay/requests"
	"helprelay/store"
)

var requestStatuses = []string{
	requests.StatusPending,
	requests.StatusOpen,
	requests.StatusClaimed,
	requests.StatusResolved,
	requests.StatusCanceled,
}

func (e *Engine) wireEventHandlers() {
	if e.db != nil {
		e.wireAudit()
	}
	if e.metrics != nil {
		e.wireMetrics()
	}
}

func (e *Engine) wireAudit() {
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RequestEvent)
		r := ev.Request
		action := r.Status
		if evt.Type == EventRequestCreated {
			action = "created"
		}
		newValue := r.Status
		switch evt.Type {
		case EventRequestCreated:
			newValue = fmt.Sprintf("%s device=%d color=%s", r.Status, r.DeviceID, r.Color)
		case EventRequestOpened:
			newValue = r.Reason
		}
		e.audit(store.EntityRequest, r.ID, action, ev.OldStatus, newValue, ev.Actor)
	}, EventRequestCreated, EventRequestOpened, EventRequestClaimed, EventRequestResolved, EventRequestCanceled)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(DeviceEvent)
		old, action := "offline", "online"
		if evt.Type == EventDeviceOffline {
			old, action = "online", "offline"
		}
		e.audit(store.EntityDevice, ev.Device.DeviceID, action, old, ev.Device.Address, "")
	}, EventDeviceOnline, EventDeviceOffline)

	e.Events.SubscribeTypes(func(evt Event) {
		r := evt.Payload.(ProbeCompletedEvent).Report
		e.audit(store.EntityProbe, r.ProbeID, "completed", "",
			fmt.Sprintf("online=%s offline=%s", FormatDeviceIDs(r.Online), FormatDeviceIDs(r.Offline)), "")
	}, EventProbeCompleted)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(MailQueuedEvent)
		e.audit(store.EntityMail, ev.EntryID, "queued", ev.Source, ev.Target+" "+ev.URL, "")
	}, EventMailQueued)
}

func (e *Engine) audit(entityType, entityID, action, oldValue, newValue, actor string) {
	if err := e.db.AppendAudit(entityType, entityID, action, oldValue, newValue, actor); err != nil {
		e.logFn("engine: audit %s %s %s: %v", entityType, entityID, action, err)
	}
}

func (e *Engine) wireMetrics() {
	m := e.metrics
	m.RegisterRequestGauges(requestStatuses, e.table.Counts)
	m.RegisterDeviceGauges(
		func() int { return countOnline(e.registry.List()) },
		func() int { return len(e.registry.List()) },
	)
	if e.db != nil {
		m.RegisterOutboxGauge(e.db.DB, e.db.Q(`SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL`))
	}
	e.gateway.SetObserver(func(o gateway.Outcome) { m.IncGatewayPost(o.Err) })

	e.Events.SubscribeTypes(func(evt Event) {
		m.IncTransition(evt.Payload.(RequestEvent).Request.Status)
	}, EventRequestCreated, EventRequestOpened, EventRequestClaimed, EventRequestResolved, EventRequestCanceled)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ActionRejectedEvent)
		action := ev.Action
		if errors.Is(ev.Err, ErrUnknownAction) {
			action = "unknown"
		}
		m.IncOperatorReject(action, rejectReason(ev.Err))
	}, EventActionRejected)

	e.Events.SubscribeTypes(func(evt Event) {
		m.ObserveProbe(len(evt.Payload.(ProbeCompletedEvent).Report.Online))
	}, EventProbeCompleted)

	e.Events.SubscribeTypes(func(evt Event) {
		m.IncMail(evt.Payload.(MailQueuedEvent).Source)
	}, EventMailQueued)
}

func countOnline(recs []lighthouse.DeviceRecord) int {
	n := 0
	for _, r := range recs {
		if r.Online {
			n++
		}
	}
	return n
}

// rejectReason maps an operator rejection to a low-cardinality label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, requests.ErrNotFound):
		return "not_found"
	case errors.Is(err, requests.ErrAlreadyHasDetails):
		return "already_has_details"
	case errors.Is(err, requests.ErrEmptyReason):
		return "empty_reason"
	case errors.Is(err, requests.ErrNeedsDetails):
		return "needs_details"
	case errors.Is(err, requests.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, requests.ErrNotClaimed):
		return "not_claimed"
	case errors.Is(err, requests.ErrNotClaimer):
		return "not_claimer"
	case errors.Is(err, ErrActorRequired):
		return "actor_required"
	case errors.Is(err, ErrUnknownAction):
		return "unknown_action"
	}
	return "other"
}
