package discovery

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"helprelay/lighthouse"
)

// startServer runs serve in the background until the test ends.
func startServer(t *testing.T, conn net.PacketConn, serve func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("serve returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("serve did not stop after cancel")
		}
	})
}

func exchange(t *testing.T, server net.Addr, payload string, wantReply bool) string {
	t.Helper()
	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("client listen: %v", err)
	}
	defer client.Close()

	if _, err := client.WriteTo([]byte(payload), server); err != nil {
		t.Fatalf("write: %v", err)
	}
	wait := 2 * time.Second
	if !wantReply {
		wait = 200 * time.Millisecond
	}
	client.SetReadDeadline(time.Now().Add(wait))
	buf := make([]byte, 1024)
	n, _, err := client.ReadFrom(buf)
	if err != nil {
		if wantReply {
			t.Fatalf("no reply to %q: %v", payload, err)
		}
		return ""
	}
	return string(buf[:n])
}

func TestDiscoveryReplies(t *testing.T) {
	conn, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDiscovery(conn, 8080, "s3cret")
	startServer(t, conn, d.Serve)

	got := exchange(t, conn.LocalAddr(), "HELPBOT_DISCOVERY|s3cret", true)
	want := "HELPBOT_URL|http://127.0.0.1:8080/mesh|s3cret"
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestDiscoveryIgnoresWrongToken(t *testing.T) {
	conn, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDiscovery(conn, 8080, "s3cret")
	startServer(t, conn, d.Serve)

	for _, payload := range []string{"HELPBOT_DISCOVERY|wrong", "HELPBOT_DISCOVERY", "garbage\x00\xff"} {
		if got := exchange(t, conn.LocalAddr(), payload, false); got != "" {
			t.Errorf("reply to %q = %q, want none", payload, got)
		}
	}
	// Still serving after garbage.
	if got := exchange(t, conn.LocalAddr(), "HELPBOT_DISCOVERY|s3cret", true); !strings.HasPrefix(got, "HELPBOT_URL|") {
		t.Errorf("reply = %q", got)
	}
}

func TestDiscoveryResolvesWildcardBind(t *testing.T) {
	conn, err := Listen("0.0.0.0", 0)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDiscovery(conn, 9999, "tok")
	peer := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5555}
	if got := d.meshURL(peer); got != "http://127.0.0.1:9999/mesh" {
		t.Errorf("meshURL = %q", got)
	}
	conn.Close()
}

func TestRegistrationAcksAndRecords(t *testing.T) {
	conn, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatal(err)
	}
	registry := lighthouse.NewRegistry(time.Minute)
	r := NewRegistration(conn, registry)
	r.now = func() time.Time { return time.Unix(1700000000, 0) }
	startServer(t, conn, r.Serve)

	got := exchange(t, conn.LocalAddr(), "LHREG|12|10.9.9.9|aa:bb|2.0|77", true)
	if got != "LHACK|12|1700000000" {
		t.Errorf("ack = %q", got)
	}
	rec, ok := registry.Get("12")
	if !ok {
		t.Fatal("device 12 not registered")
	}
	if rec.Address != "127.0.0.1" || rec.UptimeSeconds != 77 {
		t.Errorf("record = %+v", rec)
	}

	if got := exchange(t, conn.LocalAddr(), "LHREG|broken", false); got != "" {
		t.Errorf("reply to garbage = %q", got)
	}
}

func TestRegistrationBindsTransport(t *testing.T) {
	conn, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatal(err)
	}
	registry := lighthouse.NewRegistry(time.Minute)
	NewRegistration(conn, registry)
	defer conn.Close()

	device, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer device.Close()
	port := device.LocalAddr().(*net.UDPAddr).Port

	registry.UpdateFromBeacon("LHREG|3|x|y|z|1", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1})
	if !registry.SendTo("3", "HELP|PING|abc", port) {
		t.Fatal("SendTo failed")
	}
	device.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := device.ReadFrom(buf)
	if err != nil {
		t.Fatalf("device read: %v", err)
	}
	if string(buf[:n]) != "HELP|PING|abc" {
		t.Errorf("device got %q", buf[:n])
	}
}
