package engine

import (
	"helprelay/lighthouse"
	"helprelay/requests"
)

const (
	EventRequestCreated EventType = iota + 1
	EventRequestOpened
	EventRequestClaimed
	EventRequestResolved
	EventRequestCanceled
	EventActionRejected
	EventProbeCompleted
	EventDeviceOnline
	EventDeviceOffline
	EventMailQueued
)

var eventNames = map[EventType]string{
	EventRequestCreated:  "request.created",
	EventRequestOpened:   "request.opened",
	EventRequestClaimed:  "request.claimed",
	EventRequestResolved: "request.resolved",
	EventRequestCanceled: "request.canceled",
	EventActionRejected:  "action.rejected",
	EventProbeCompleted:  "probe.completed",
	EventDeviceOnline:    "device.online",
	EventDeviceOffline:   "device.offline",
	EventMailQueued:      "mail.queued",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// --- Event payloads ---

// RequestEvent carries the request snapshot taken right after a committed
// transition.
type RequestEvent struct {
	Request   requests.HelpRequest
	OldStatus string // empty for EventRequestCreated
	Actor     string // operator, or empty for device-originated changes
}

type ActionRejectedEvent struct {
	RequestID string
	Action    string
	Actor     string
	Err       error
}

type ProbeCompletedEvent struct {
	Report ProbeReport
}

type DeviceEvent struct {
	Device lighthouse.DeviceRecord
}

type MailQueuedEvent struct {
	Target  string
	URL     string
	EntryID string
	Source  string // "url", "file" or "announcement"
}
