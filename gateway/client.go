package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TokenHeader carries the shared secret on every mesh hop.
const TokenHeader = "X-Help-Token"

// ErrNoGateway means no gateway URL is configured and none has been
// observed yet.
var ErrNoGateway = errors.New("gateway not connected yet")

// Outcome is the result of posting one event to one gateway.
type Outcome struct {
	URL        string
	StatusCode int
	Err        error
}

// Client posts outbound mesh events to the gateways. Delivery is best
// effort: failures are logged and reported, never retried.
type Client struct {
	urls       []string
	port       int
	token      string
	httpClient *http.Client

	mu         sync.RWMutex
	lastSource string

	observer func(Outcome)
}

// NewClient creates a gateway client. When urls is empty, events go to the
// most recently observed inbound source on port.
func NewClient(urls []string, port int, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		urls:  urls,
		port:  port,
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetObserver registers a callback run for every delivery attempt.
func (c *Client) SetObserver(fn func(Outcome)) {
	c.observer = fn
}

// ObserveSource remembers the IP an inbound mesh post came from. The last
// one wins.
func (c *Client) ObserveSource(ip string) {
	if ip == "" {
		return
	}
	c.mu.Lock()
	changed := c.lastSource != ip
	c.lastSource = ip
	c.mu.Unlock()
	if changed {
		log.Printf("gateway: source set to %s", ip)
	}
}

// LastSource returns the last observed inbound source IP.
func (c *Client) LastSource() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSource
}

// Targets returns the URLs the next broadcast would post to.
func (c *Client) Targets() []string {
	if len(c.urls) > 0 {
		return append([]string(nil), c.urls...)
	}
	src := c.LastSource()
	if src == "" {
		return nil
	}
	return []string{"http://" + net.JoinHostPort(src, strconv.Itoa(c.port)) + "/mesh"}
}

// HasRoute reports whether a broadcast would reach at least one gateway.
func (c *Client) HasRoute() bool {
	return len(c.Targets()) > 0
}

// Broadcast posts text to every target and returns the per-target
// outcomes.
func (c *Client) Broadcast(ctx context.Context, text string) []Outcome {
	targets := c.Targets()
	if len(targets) == 0 {
		log.Printf("gateway: no gateway URL available for outbound message")
		return nil
	}
	outcomes := make([]Outcome, 0, len(targets))
	for _, url := range targets {
		o := c.post(ctx, url, text)
		if o.Err != nil {
			log.Printf("gateway: post to %s failed: %v", url, o.Err)
		} else {
			log.Printf("gateway: posted to %s: %s (HTTP %d)", url, text, o.StatusCode)
		}
		if c.observer != nil {
			c.observer(o)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (c *Client) post(ctx context.Context, url, text string) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(text))
	if err != nil {
		return Outcome{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(TokenHeader, c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{URL: url, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	o := Outcome{URL: url, StatusCode: resp.StatusCode}
	if resp.StatusCode >= 400 {
		o.Err = fmt.Errorf("gateway HTTP %d", resp.StatusCode)
	}
	return o
}

// BaseURL returns the relay's own HTTP base URL as reachable from the last
// observed gateway.
func (c *Client) BaseURL(httpPort int) (string, error) {
	src := c.LastSource()
	if src == "" {
		return "", ErrNoGateway
	}
	ip, err := LocalIPToward(src)
	if err != nil {
		return "", err
	}
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(httpPort)), nil
}

// LocalIPToward returns the local address the routing table would use to
// reach peer. Dialing UDP sends no packets.
func LocalIPToward(peer string) (string, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(peer, "9"))
	if err != nil {
		return "", fmt.Errorf("route to %s: %w", peer, err)
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("route to %s: unexpected local address %s", peer, conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
