package lighthouse

import (
	"log"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"helprelay/protocol"
)

// Registry tracks every lighthouse that has sent a registration beacon.
// Records are keyed by device id and never removed.
type Registry struct {
	mu           sync.RWMutex
	devices      map[string]*DeviceRecord
	transport    PacketSender
	offlineAfter time.Duration

	emitter EventEmitter
	mirror  Mirror
	now     func() time.Time
}

// NewRegistry creates an empty registry. offlineAfter decides the Online
// flag reported by Get and List.
func NewRegistry(offlineAfter time.Duration) *Registry {
	return &Registry{
		devices:      make(map[string]*DeviceRecord),
		offlineAfter: offlineAfter,
		now:          time.Now,
	}
}

// SetEmitter attaches a liveness listener.
func (r *Registry) SetEmitter(e EventEmitter) {
	r.mu.Lock()
	r.emitter = e
	r.mu.Unlock()
}

// SetMirror attaches a write-only mirror.
func (r *Registry) SetMirror(m Mirror) {
	r.mu.Lock()
	r.mirror = m
	r.mu.Unlock()
}

// Bind sets the transport used by SendTo. The registration responder binds
// its own socket here so replies leave from the registration port.
func (r *Registry) Bind(t PacketSender) {
	r.mu.Lock()
	r.transport = t
	r.mu.Unlock()
}

// UpdateFromBeacon applies one LHREG datagram. The address always comes
// from the observed source, never from the IP the device claims.
func (r *Registry) UpdateFromBeacon(raw string, src net.Addr) (DeviceRecord, bool) {
	b, ok := protocol.ParseBeacon(raw)
	if !ok {
		return DeviceRecord{}, false
	}
	ip := sourceIP(src)
	if ip == "" {
		return DeviceRecord{}, false
	}

	r.mu.Lock()
	rec, exists := r.devices[b.DeviceID]
	cameOnline := !exists || !rec.Online
	if !exists {
		rec = &DeviceRecord{DeviceID: b.DeviceID}
		r.devices[b.DeviceID] = rec
	}
	rec.Address = ip
	rec.HardwareID = b.HardwareID
	rec.Firmware = b.Firmware
	rec.UptimeSeconds = b.UptimeSeconds
	rec.LastSeen = r.now()
	rec.Online = true
	out := *rec
	emitter, mirror := r.emitter, r.mirror
	r.mu.Unlock()

	if mirror != nil {
		if err := mirror.PutDevice(out); err != nil {
			log.Printf("lighthouse: mirror device %s: %v", out.DeviceID, err)
		}
	}
	if cameOnline && emitter != nil {
		emitter.EmitDeviceOnline(out)
	}
	return out, true
}

// SweepLiveness recomputes Online for every record and returns the ones
// whose flag changed.
func (r *Registry) SweepLiveness(offlineAfter time.Duration) []DeviceRecord {
	now := r.now()
	var flipped []DeviceRecord

	r.mu.Lock()
	for _, rec := range r.devices {
		online := now.Sub(rec.LastSeen) <= offlineAfter
		if online != rec.Online {
			rec.Online = online
			flipped = append(flipped, *rec)
		}
	}
	emitter, mirror := r.emitter, r.mirror
	r.mu.Unlock()

	sortRecords(flipped)
	for _, rec := range flipped {
		if mirror != nil {
			if err := mirror.PutDevice(rec); err != nil {
				log.Printf("lighthouse: mirror device %s: %v", rec.DeviceID, err)
			}
		}
		if emitter == nil {
			continue
		}
		if rec.Online {
			emitter.EmitDeviceOnline(rec)
		} else {
			emitter.EmitDeviceOffline(rec)
		}
	}
	return flipped
}

// SendTo fires payload at the device's last observed address. It reports
// false when the device is unknown, no transport is bound, or the write
// fails. Delivery is never confirmed.
func (r *Registry) SendTo(deviceID, payload string, port int) bool {
	r.mu.RLock()
	rec, ok := r.devices[deviceID]
	var ip string
	if ok {
		ip = rec.Address
	}
	t := r.transport
	r.mu.RUnlock()

	if !ok || t == nil {
		return false
	}
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
	if _, err := t.WriteTo([]byte(payload), addr); err != nil {
		log.Printf("lighthouse: send to %s (%s): %v", deviceID, addr, err)
		return false
	}
	return true
}

// Get returns a copy of one record.
func (r *Registry) Get(deviceID string) (DeviceRecord, bool) {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.devices[deviceID]
	if !ok {
		return DeviceRecord{}, false
	}
	out := *rec
	out.Online = r.isOnline(out, now)
	return out, true
}

// List returns copies of all records ordered by device id.
func (r *Registry) List() []DeviceRecord {
	now := r.now()
	r.mu.RLock()
	out := make([]DeviceRecord, 0, len(r.devices))
	for _, rec := range r.devices {
		cp := *rec
		cp.Online = r.isOnline(cp, now)
		out = append(out, cp)
	}
	r.mu.RUnlock()
	sortRecords(out)
	return out
}

func (r *Registry) isOnline(rec DeviceRecord, now time.Time) bool {
	if r.offlineAfter <= 0 {
		return rec.Online
	}
	return now.Sub(rec.LastSeen) <= r.offlineAfter
}

// sortRecords orders numeric ids numerically, then everything else
// lexically.
func sortRecords(recs []DeviceRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, aErr := strconv.Atoi(recs[i].DeviceID)
		b, bErr := strconv.Atoi(recs[j].DeviceID)
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		}
		return recs[i].DeviceID < recs[j].DeviceID
	})
}

func sourceIP(src net.Addr) string {
	switch a := src.(type) {
	case *net.UDPAddr:
		if a == nil || a.IP == nil {
			return ""
		}
		return a.IP.String()
	case nil:
		return ""
	}
	host, _, err := net.SplitHostPort(src.String())
	if err != nil {
		return ""
	}
	return host
}
