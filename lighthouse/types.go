package lighthouse

import (
	"net"
	"time"
)

// DeviceRecord is the relay's view of one lighthouse, built from its
// registration beacons.
type DeviceRecord struct {
	DeviceID      string    `json:"device_id"`
	Address       string    `json:"address"` // observed UDP source IP
	HardwareID    string    `json:"hardware_id"`
	Firmware      string    `json:"firmware"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	LastSeen      time.Time `json:"last_seen"`
	Online        bool      `json:"online"`
}

// PacketSender is the datagram transport the registry sends through.
// A *net.UDPConn satisfies it.
type PacketSender interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
}

// EventEmitter is told when a device changes liveness.
type EventEmitter interface {
	EmitDeviceOnline(rec DeviceRecord)
	EmitDeviceOffline(rec DeviceRecord)
}

// Mirror receives a copy of every record change. It is written to, never
// read from.
type Mirror interface {
	PutDevice(rec DeviceRecord) error
}
