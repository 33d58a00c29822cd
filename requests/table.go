package requests

import (
	"sort"
	"sync"
	"time"

	"helprelay/protocol"
)

// Table owns every help request and every open ping wait. All precondition
// checks and transitions happen under one lock so concurrent actions on the
// same request are serialized. Callers get copies, never live records.
type Table struct {
	mu          sync.Mutex
	requests    map[string]*HelpRequest
	waits       map[string]map[int]struct{}
	skipDetails bool
	now         func() time.Time
}

// NewTable creates an empty table. With skipDetails set, new requests start
// open instead of waiting for operator details.
func NewTable(skipDetails bool) *Table {
	return &Table{
		requests:    make(map[string]*HelpRequest),
		waits:       make(map[string]map[int]struct{}),
		skipDetails: skipDetails,
		now:         time.Now,
	}
}

// Create registers a new request. It reports false, with the existing
// record, when the id has been seen before.
func (t *Table) Create(m protocol.Req) (HelpRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.requests[m.ReqID]; ok {
		return *existing, false
	}
	status := StatusPending
	if t.skipDetails {
		status = StatusOpen
	}
	now := t.now()
	req := &HelpRequest{
		ID:              m.ReqID,
		DeviceID:        m.DeviceID,
		Status:          status,
		Color:           m.Color,
		DeviceTimestamp: m.Timestamp,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	t.requests[m.ReqID] = req
	return *req, true
}

// SubmitDetails attaches the operator's reason to a pending request and
// opens it. The text is sanitized before it is stored.
func (t *Table) SubmitDetails(id, text string) (HelpRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.requests[id]
	if !ok {
		return HelpRequest{}, ErrNotFound
	}
	if req.Status != StatusPending {
		return *req, ErrAlreadyHasDetails
	}
	reason := protocol.SanitizeText(text)
	if reason == "" {
		return *req, ErrEmptyReason
	}
	req.Reason = reason
	t.transition(req, StatusOpen)
	return *req, nil
}

// Claim assigns an open request to actor.
func (t *Table) Claim(id, actor string) (HelpRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.requests[id]
	if !ok {
		return HelpRequest{}, ErrNotFound
	}
	switch req.Status {
	case StatusPending:
		return *req, ErrNeedsDetails
	case StatusOpen:
	default:
		return *req, ErrAlreadyClaimed
	}
	req.ClaimedBy = actor
	t.transition(req, StatusClaimed)
	return *req, nil
}

// Resolve closes a claimed request. Only the claimer may resolve.
func (t *Table) Resolve(id, actor string) (HelpRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.requests[id]
	if !ok {
		return HelpRequest{}, ErrNotFound
	}
	if req.Status != StatusClaimed {
		return *req, ErrNotClaimed
	}
	if req.ClaimedBy != actor {
		return *req, ErrNotClaimer
	}
	t.transition(req, StatusResolved)
	return *req, nil
}

// Cancel withdraws a request on the device's behalf and returns the status
// it was canceled from. It reports false for unknown ids and requests that
// are already terminal.
func (t *Table) Cancel(id string) (HelpRequest, string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.requests[id]
	if !ok {
		return HelpRequest{}, "", false
	}
	if IsTerminal(req.Status) {
		return *req, req.Status, false
	}
	from := req.Status
	t.transition(req, StatusCanceled)
	return *req, from, true
}

// AttachRef records where the request is currently presented. The ref
// is only stored while the current one still equals prevRef, so a slow
// render cannot replace a surface attached after it started. On a lost
// race it returns false and the request as it stands.
func (t *Table) AttachRef(id, prevRef, ref string) (HelpRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.requests[id]
	if !ok {
		return HelpRequest{}, false
	}
	if ref == "" || req.PresentationRef != prevRef {
		return *req, false
	}
	req.PresentationRef = ref
	return *req, true
}

// Get returns a copy of one request.
func (t *Table) Get(id string) (HelpRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.requests[id]
	if !ok {
		return HelpRequest{}, false
	}
	return *req, true
}

// List returns copies of all requests, oldest first. An empty status
// returns every request.
func (t *Table) List(status string) []HelpRequest {
	t.mu.Lock()
	out := make([]HelpRequest, 0, len(t.requests))
	for _, req := range t.requests {
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, *req)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Counts returns the number of requests per status.
func (t *Table) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[string]int, 5)
	for _, req := range t.requests {
		counts[req.Status]++
	}
	return counts
}

// OpenWait starts collecting pongs for a probe.
func (t *Table) OpenWait(probeID string) {
	t.mu.Lock()
	t.waits[probeID] = make(map[int]struct{})
	t.mu.Unlock()
}

// MarkPong records a pong. It reports true only the first time a device
// answers an open probe.
func (t *Table) MarkPong(probeID string, deviceID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wait, ok := t.waits[probeID]
	if !ok {
		return false
	}
	if _, seen := wait[deviceID]; seen {
		return false
	}
	wait[deviceID] = struct{}{}
	return true
}

// CloseWait discards a probe's wait and returns the responders in
// ascending order. Later pongs for the probe are ignored.
func (t *Table) CloseWait(probeID string) []int {
	t.mu.Lock()
	wait := t.waits[probeID]
	delete(t.waits, probeID)
	t.mu.Unlock()

	out := make([]int, 0, len(wait))
	for id := range wait {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (t *Table) transition(req *HelpRequest, to string) {
	if !IsValidTransition(req.Status, to) {
		// Callers check preconditions first; reaching here is a bug.
		panic("requests: invalid transition from " + req.Status + " to " + to)
	}
	req.Status = to
	req.UpdatedAt = t.now()
}
