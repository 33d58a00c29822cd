package protocol

import (
	"strconv"
	"strings"
)

// Beacon is the periodic LHREG registration packet a device broadcasts.
type Beacon struct {
	DeviceID      string
	ClaimedIP     string // as reported by the device; informational only
	HardwareID    string
	Firmware      string
	UptimeSeconds int64
}

// ParseBeacon decodes LHREG|id|ip|mac|firmware|uptime. A malformed uptime
// degrades to zero rather than rejecting the beacon.
func ParseBeacon(text string) (Beacon, bool) {
	parts := strings.Split(strings.TrimSpace(text), Delimiter)
	if len(parts) < 6 || parts[0] != BeaconPrefix || parts[1] == "" {
		return Beacon{}, false
	}
	uptime, err := strconv.ParseInt(strings.TrimSpace(parts[5]), 10, 64)
	if err != nil {
		uptime = 0
	}
	return Beacon{
		DeviceID:      parts[1],
		ClaimedIP:     parts[2],
		HardwareID:    parts[3],
		Firmware:      parts[4],
		UptimeSeconds: uptime,
	}, true
}

// Encode renders the beacon back to its wire form.
func (b Beacon) Encode() string {
	return strings.Join([]string{
		BeaconPrefix, b.DeviceID, b.ClaimedIP, b.HardwareID, b.Firmware,
		strconv.FormatInt(b.UptimeSeconds, 10),
	}, Delimiter)
}

// EncodeBeaconAck renders LHACK|id|unix_time.
func EncodeBeaconAck(deviceID string, unixTime int64) string {
	return strings.Join([]string{BeaconAckPrefix, deviceID, strconv.FormatInt(unixTime, 10)}, Delimiter)
}

// ParseDiscovery decodes HELPBOT_DISCOVERY|token. The token is everything
// after the first delimiter.
func ParseDiscovery(text string) (token string, ok bool) {
	text = strings.TrimSpace(text)
	prefix := DiscoveryPrefix + Delimiter
	if !strings.HasPrefix(text, prefix) {
		return "", false
	}
	return text[len(prefix):], true
}

// EncodeDiscoveryReply renders HELPBOT_URL|url|token.
func EncodeDiscoveryReply(url, token string) string {
	return strings.Join([]string{DiscoveryReply, url, token}, Delimiter)
}
