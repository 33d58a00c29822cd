package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"helprelay/gateway"
	"helprelay/protocol"
)

// ProbeReport is the outcome of one liveness probe.
type ProbeReport struct {
	ProbeID        string        `json:"probe_id"`
	Timeout        time.Duration `json:"-"`
	TimeoutSeconds float64       `json:"timeout_seconds"`
	Online         []int         `json:"online"`
	Offline        []int         `json:"offline"`
}

// Summary renders the report the way operators read it.
func (r ProbeReport) Summary() string {
	return fmt.Sprintf("Ping %s (%.0fs)\nOnline: %s\nOffline: %s",
		r.ProbeID, r.Timeout.Seconds(), FormatDeviceIDs(r.Online), FormatDeviceIDs(r.Offline))
}

// FormatDeviceIDs renders ids as two-digit numbers, or "none".
func FormatDeviceIDs(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%02d", id)
	}
	return strings.Join(parts, ", ")
}

// ClampProbeTimeout bounds a requested timeout to [1s, 15s]. Zero or
// negative picks def.
func ClampProbeTimeout(d, def time.Duration) time.Duration {
	if d <= 0 {
		d = def
	}
	if d < minProbeTimeout {
		return minProbeTimeout
	}
	if d > maxProbeTimeout {
		return maxProbeTimeout
	}
	return d
}

// Probe broadcasts a PING, collects PONGs for timeout and reports which
// of the expected devices answered. It blocks for the full timeout unless
// ctx ends first, in which case the wait is still discarded.
func (e *Engine) Probe(ctx context.Context, timeout time.Duration) (ProbeReport, error) {
	if !e.gateway.HasRoute() {
		return ProbeReport{}, gateway.ErrNoGateway
	}
	timeout = ClampProbeTimeout(timeout, e.probeTimeout)
	id := newProbeID()

	e.table.OpenWait(id)
	e.relay(ctx, protocol.Ping{PingID: id})

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var err error
	select {
	case <-timer.C:
	case <-ctx.Done():
		err = ctx.Err()
	}
	online := e.table.CloseWait(id)

	report := ProbeReport{
		ProbeID:        id,
		Timeout:        timeout,
		TimeoutSeconds: timeout.Seconds(),
		Online:         online,
		Offline:        e.missing(online),
	}
	if err != nil {
		return report, fmt.Errorf("probe %s: %w", id, err)
	}
	e.logFn("engine: probe %s: %d online, %d offline", id, len(report.Online), len(report.Offline))
	e.Events.Emit(Event{Type: EventProbeCompleted, Payload: ProbeCompletedEvent{Report: report}})
	return report, nil
}

// missing returns the expected device ids absent from online, ascending.
func (e *Engine) missing(online []int) []int {
	seen := make(map[int]struct{}, len(online))
	for _, id := range online {
		seen[id] = struct{}{}
	}
	out := make([]int, 0, e.fleetSize)
	for id := 1; id <= e.fleetSize; id++ {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func newProbeID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
