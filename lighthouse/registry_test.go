package lighthouse

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type sentPacket struct {
	payload string
	addr    string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentPacket
	err  error
}

func (f *fakeSender) WriteTo(p []byte, addr net.Addr) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.sent = append(f.sent, sentPacket{payload: string(p), addr: addr.String()})
	return len(p), nil
}

type recordingEmitter struct {
	online  []string
	offline []string
}

func (e *recordingEmitter) EmitDeviceOnline(rec DeviceRecord)  { e.online = append(e.online, rec.DeviceID) }
func (e *recordingEmitter) EmitDeviceOffline(rec DeviceRecord) { e.offline = append(e.offline, rec.DeviceID) }

type recordingMirror struct {
	puts []DeviceRecord
}

func (m *recordingMirror) PutDevice(rec DeviceRecord) error {
	m.puts = append(m.puts, rec)
	return nil
}

func udpAddr(ip string, port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
}

// testRegistry returns a registry whose clock the test controls.
func testRegistry(offlineAfter time.Duration) (*Registry, *time.Time) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(offlineAfter)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestUpdateFromBeaconUsesObservedAddress(t *testing.T) {
	r, _ := testRegistry(time.Minute)

	rec, ok := r.UpdateFromBeacon("LHREG|7|10.0.0.99|aa:bb:cc|1.0.3|120", udpAddr("192.168.4.7", 50000))
	if !ok {
		t.Fatal("beacon rejected")
	}
	if rec.Address != "192.168.4.7" {
		t.Errorf("address = %q, want observed source 192.168.4.7", rec.Address)
	}
	if rec.HardwareID != "aa:bb:cc" || rec.Firmware != "1.0.3" || rec.UptimeSeconds != 120 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !rec.Online {
		t.Error("fresh beacon must mark device online")
	}

	// A second beacon from a new address overwrites the old one.
	rec, _ = r.UpdateFromBeacon("LHREG|7|10.0.0.99|aa:bb:cc|1.0.4|180", udpAddr("192.168.4.70", 50000))
	if rec.Address != "192.168.4.70" || rec.Firmware != "1.0.4" {
		t.Errorf("record not updated: %+v", rec)
	}
	if n := len(r.List()); n != 1 {
		t.Errorf("registry has %d records, want 1", n)
	}
}

func TestUpdateFromBeaconRejectsGarbage(t *testing.T) {
	r, _ := testRegistry(time.Minute)
	for _, raw := range []string{"", "LHREG|7", "HELLO|7|a|b|c|d"} {
		if _, ok := r.UpdateFromBeacon(raw, udpAddr("10.0.0.1", 1)); ok {
			t.Errorf("UpdateFromBeacon(%q) accepted", raw)
		}
	}
	if _, ok := r.UpdateFromBeacon("LHREG|7|ip|mac|fw|1", nil); ok {
		t.Error("beacon without a source address accepted")
	}
	if len(r.List()) != 0 {
		t.Error("garbage must not create records")
	}
}

func TestUpdateFromBeaconBadUptime(t *testing.T) {
	r, _ := testRegistry(time.Minute)
	rec, ok := r.UpdateFromBeacon("LHREG|3|ip|mac|fw|later", udpAddr("10.0.0.3", 1))
	if !ok {
		t.Fatal("beacon rejected")
	}
	if rec.UptimeSeconds != 0 {
		t.Errorf("uptime = %d, want 0", rec.UptimeSeconds)
	}
}

func TestSweepLiveness(t *testing.T) {
	r, now := testRegistry(0)
	em := &recordingEmitter{}
	r.SetEmitter(em)

	r.UpdateFromBeacon("LHREG|1|ip|mac|fw|1", udpAddr("10.0.0.1", 1))
	*now = now.Add(40 * time.Second)
	r.UpdateFromBeacon("LHREG|2|ip|mac|fw|1", udpAddr("10.0.0.2", 1))
	*now = now.Add(30 * time.Second)

	flipped := r.SweepLiveness(60 * time.Second)
	if len(flipped) != 1 || flipped[0].DeviceID != "1" || flipped[0].Online {
		t.Fatalf("flipped = %+v, want device 1 offline", flipped)
	}
	if rec, _ := r.Get("2"); !rec.Online {
		t.Error("device 2 should still be online")
	}
	if len(em.offline) != 1 || em.offline[0] != "1" {
		t.Errorf("offline events = %v", em.offline)
	}

	// Nothing changes on a second sweep.
	if flipped := r.SweepLiveness(60 * time.Second); len(flipped) != 0 {
		t.Errorf("second sweep flipped %+v", flipped)
	}

	// A beacon brings the device back.
	r.UpdateFromBeacon("LHREG|1|ip|mac|fw|2", udpAddr("10.0.0.1", 1))
	if rec, _ := r.Get("1"); !rec.Online {
		t.Error("device 1 should be online after a beacon")
	}
	if len(em.online) != 3 {
		t.Errorf("online events = %v, want 3", em.online)
	}
}

func TestOnlineDerivedOnRead(t *testing.T) {
	r, now := testRegistry(time.Minute)
	r.UpdateFromBeacon("LHREG|5|ip|mac|fw|1", udpAddr("10.0.0.5", 1))
	*now = now.Add(2 * time.Minute)

	rec, ok := r.Get("5")
	if !ok {
		t.Fatal("device 5 missing")
	}
	if rec.Online {
		t.Error("stale device must read as offline before any sweep")
	}
}

func TestSendTo(t *testing.T) {
	r, _ := testRegistry(time.Minute)

	if r.SendTo("7", "HELP|PING|x", 9010) {
		t.Error("SendTo must fail for unknown device")
	}
	r.UpdateFromBeacon("LHREG|7|ip|mac|fw|1", udpAddr("10.1.2.3", 4444))
	if r.SendTo("7", "HELP|PING|x", 9010) {
		t.Error("SendTo must fail without a bound transport")
	}

	sender := &fakeSender{}
	r.Bind(sender)
	if !r.SendTo("7", "HELP|PING|x", 9010) {
		t.Fatal("SendTo failed")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d packets, want 1", len(sender.sent))
	}
	if sender.sent[0].addr != "10.1.2.3:9010" || sender.sent[0].payload != "HELP|PING|x" {
		t.Errorf("sent %+v", sender.sent[0])
	}

	sender.err = net.ErrClosed
	if r.SendTo("7", "HELP|PING|y", 9010) {
		t.Error("SendTo must report write failures")
	}
}

func TestListOrdering(t *testing.T) {
	r, _ := testRegistry(time.Minute)
	for _, id := range []string{"10", "2", "lab", "1"} {
		r.UpdateFromBeacon("LHREG|"+id+"|ip|mac|fw|1", udpAddr("10.0.0.1", 1))
	}
	var got []string
	for _, rec := range r.List() {
		got = append(got, rec.DeviceID)
	}
	want := []string{"1", "2", "10", "lab"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestMirrorReceivesChanges(t *testing.T) {
	r, now := testRegistry(0)
	m := &recordingMirror{}
	r.SetMirror(m)

	r.UpdateFromBeacon("LHREG|4|ip|mac|fw|1", udpAddr("10.0.0.4", 1))
	*now = now.Add(time.Hour)
	r.SweepLiveness(time.Minute)

	if len(m.puts) != 2 {
		t.Fatalf("mirror got %d puts, want 2", len(m.puts))
	}
	if m.puts[1].Online {
		t.Error("second mirror write should carry the offline state")
	}
}

func TestRedisMirror(t *testing.T) {
	addr := os.Getenv("HELPRELAY_TEST_REDIS")
	if addr == "" {
		t.Skip("HELPRELAY_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	m := NewRedisMirror(client)
	ctx := context.Background()
	if err := m.FlushAll(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	rec := DeviceRecord{DeviceID: "9", Address: "10.0.0.9", Online: true}
	if err := m.PutDevice(rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, err := client.Get(ctx, deviceKey("9")).Bytes()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got DeviceRecord
	if err := json.Unmarshal(data, &got); err != nil || got.Address != "10.0.0.9" {
		t.Fatalf("mirrored record = %+v, %v", got, err)
	}
	if err := m.FlushAll(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	ids, _ := client.SMembers(ctx, allDevicesKey).Result()
	if len(ids) != 0 {
		t.Errorf("ids after flush = %v", ids)
	}
}
