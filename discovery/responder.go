package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"helprelay/gateway"
	"helprelay/lighthouse"
	"helprelay/protocol"
)

const maxDatagram = 2048

// Listen binds a UDP socket. Failure here is fatal for the process.
func Listen(host string, port int) (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("listen udp %s:%d: %w", host, port, err)
	}
	return conn, nil
}

// Discovery answers HELPBOT_DISCOVERY broadcasts with the relay's mesh URL.
// It holds no state between datagrams.
type Discovery struct {
	conn     net.PacketConn
	httpPort int
	token    string
}

func NewDiscovery(conn net.PacketConn, httpPort int, token string) *Discovery {
	return &Discovery{conn: conn, httpPort: httpPort, token: token}
}

// Serve answers datagrams until ctx is canceled. The socket is closed on
// return.
func (d *Discovery) Serve(ctx context.Context) error {
	return serve(ctx, d.conn, "discovery", d.handle)
}

func (d *Discovery) handle(data []byte, peer net.Addr) {
	token, ok := protocol.ParseDiscovery(string(data))
	if !ok || token != d.token {
		return
	}
	reply := protocol.EncodeDiscoveryReply(d.meshURL(peer), d.token)
	if _, err := d.conn.WriteTo([]byte(reply), peer); err != nil {
		log.Printf("discovery: reply to %s: %v", peer, err)
	}
}

func (d *Discovery) meshURL(peer net.Addr) string {
	ip := ""
	if local, ok := d.conn.LocalAddr().(*net.UDPAddr); ok && local.IP != nil && !local.IP.IsUnspecified() {
		ip = local.IP.String()
	}
	if ip == "" {
		ip = "127.0.0.1"
		if host, _, err := net.SplitHostPort(peer.String()); err == nil {
			if resolved, err := gateway.LocalIPToward(host); err == nil {
				ip = resolved
			}
		}
	}
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(d.httpPort)) + "/mesh"
}

// Registration applies LHREG beacons to the registry and acknowledges them.
type Registration struct {
	conn     net.PacketConn
	registry *lighthouse.Registry
	now      func() time.Time
}

// NewRegistration binds conn into the registry as its send transport.
func NewRegistration(conn net.PacketConn, registry *lighthouse.Registry) *Registration {
	registry.Bind(conn)
	return &Registration{conn: conn, registry: registry, now: time.Now}
}

// Serve answers datagrams until ctx is canceled. The socket is closed on
// return.
func (r *Registration) Serve(ctx context.Context) error {
	return serve(ctx, r.conn, "registration", r.handle)
}

func (r *Registration) handle(data []byte, peer net.Addr) {
	rec, ok := r.registry.UpdateFromBeacon(string(data), peer)
	if !ok {
		return
	}
	ack := protocol.EncodeBeaconAck(rec.DeviceID, r.now().Unix())
	if _, err := r.conn.WriteTo([]byte(ack), peer); err != nil {
		log.Printf("registration: ack %s: %v", rec.DeviceID, err)
	}
}

func serve(ctx context.Context, conn net.PacketConn, name string, handle func([]byte, net.Addr)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	log.Printf("%s: listening on %s", name, conn.LocalAddr())
	buf := make([]byte, maxDatagram)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("%s: read: %v", name, err)
			continue
		}
		handle(buf[:n], peer)
	}
}
