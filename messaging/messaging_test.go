package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"helprelay/config"
	"helprelay/engine"
	"helprelay/requests"
	"helprelay/store"
)

type pubMsg struct {
	topic   string
	payload []byte
}

// fakeBus records publishes and hands subscriptions straight back to the
// test.
type fakeBus struct {
	mu       sync.Mutex
	msgs     []pubMsg
	fail     error
	handlers map[string]func([]byte)
}

func (b *fakeBus) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.msgs = append(b.msgs, pubMsg{topic, payload})
	return nil
}

func (b *fakeBus) Subscribe(topic string, handler func([]byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string]func([]byte))
	}
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBus) deliver(topic string, payload []byte) {
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	h(payload)
}

func (b *fakeBus) sent() []pubMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]pubMsg(nil), b.msgs...)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.AuditConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "bus.db")},
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRequest() requests.HelpRequest {
	return requests.HelpRequest{ID: "abc", DeviceID: 7, Status: requests.StatusClaimed, ClaimedBy: "42"}
}

func TestBusSinkPublishesInline(t *testing.T) {
	bus := &fakeBus{}
	sink := NewBusSink(bus, nil, "helprelay.requests")

	ref, err := sink.Render(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(ref) != 36 {
		t.Errorf("ref %q should be a uuid", ref)
	}
	if err := sink.Update(context.Background(), ref, sampleRequest()); err != nil {
		t.Fatalf("update: %v", err)
	}

	msgs := bus.sent()
	if len(msgs) != 2 {
		t.Fatalf("published %d, want 2", len(msgs))
	}
	var m RequestMessage
	if err := json.Unmarshal(msgs[1].payload, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msgs[1].topic != "helprelay.requests" || m.Type != TypeUpdate || m.Ref != ref {
		t.Errorf("message = %+v on %s", m, msgs[1].topic)
	}
	if m.StatusLine != "Claimed by 42." || m.Request.DeviceID != 7 {
		t.Errorf("snapshot = %+v", m)
	}
}

func TestBusSinkPublishError(t *testing.T) {
	bus := &fakeBus{fail: errors.New("broker down")}
	sink := NewBusSink(bus, nil, "t")
	if _, err := sink.Render(context.Background(), sampleRequest()); err == nil {
		t.Error("expected render error when publish fails")
	}
}

func TestBusSinkThroughOutbox(t *testing.T) {
	db := testDB(t)
	bus := &fakeBus{}
	sink := NewBusSink(bus, db, "helprelay.requests")

	if _, err := sink.Render(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(bus.sent()) != 0 {
		t.Fatal("outbox mode must not publish inline")
	}

	drainer := NewOutboxDrainer(db, bus, time.Hour)
	if n := drainer.drain(); n != 1 {
		t.Fatalf("drained %d, want 1", n)
	}
	if msgs := bus.sent(); len(msgs) != 1 || msgs[0].topic != "helprelay.requests" {
		t.Errorf("published = %+v", msgs)
	}
	pending, _ := db.ListPendingOutbox(10)
	if len(pending) != 0 {
		t.Errorf("pending after drain = %d", len(pending))
	}
}

func TestOutboxDrainerRetriesThenDrops(t *testing.T) {
	db := testDB(t)
	if err := db.EnqueueOutbox("t", []byte("x"), TypeRender); err != nil {
		t.Fatal(err)
	}
	bus := &fakeBus{fail: errors.New("broker down")}
	drainer := NewOutboxDrainer(db, bus, time.Hour)

	drainer.drain()
	pending, _ := db.ListPendingOutbox(10)
	if len(pending) != 1 || pending[0].Retries != 1 {
		t.Fatalf("after one failure: %+v", pending)
	}
	for i := 0; i < maxRetries; i++ {
		drainer.drain()
	}
	pending, _ = db.ListPendingOutbox(10)
	if len(pending) != 0 {
		t.Errorf("message should be dropped after %d attempts, pending = %d", maxRetries, len(pending))
	}
}

func TestOutboxDrainerStopIsIdempotent(t *testing.T) {
	d := NewOutboxDrainer(testDB(t), &fakeBus{}, 10*time.Millisecond)
	d.Start()
	d.Stop()
	d.Stop()
}

type fakeActions struct {
	mu   sync.Mutex
	got  []engine.OperatorAction
	fail error
}

func (f *fakeActions) HandleOperatorAction(_ context.Context, a engine.OperatorAction) (requests.HelpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, a)
	return requests.HelpRequest{ID: a.RequestID}, f.fail
}

func TestActionSubscriber(t *testing.T) {
	bus := &fakeBus{}
	actions := &fakeActions{}
	sub := NewActionSubscriber(bus, NewBusSink(bus, nil, "helprelay.requests"), "helprelay.actions", actions)
	if err := sub.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	bus.deliver("helprelay.actions", []byte(`{"request_id":"abc","action":"claim","actor":"42"}`))
	bus.deliver("helprelay.actions", []byte(`not json`))
	bus.deliver("helprelay.actions", []byte(`{"action":"claim"}`))

	if len(actions.got) != 1 {
		t.Fatalf("handled %d actions, want 1", len(actions.got))
	}
	if a := actions.got[0]; a.RequestID != "abc" || a.Action != engine.ActionClaim || a.Actor != "42" {
		t.Errorf("action = %+v", a)
	}
	if len(bus.sent()) != 0 {
		t.Error("accepted actions publish nothing themselves")
	}

	actions.fail = requests.ErrAlreadyClaimed
	bus.deliver("helprelay.actions", []byte(`{"request_id":"abc","action":"claim","actor":"99"}`))
	msgs := bus.sent()
	if len(msgs) != 1 {
		t.Fatalf("published %d rejections, want 1", len(msgs))
	}
	var rej RejectionMessage
	if err := json.Unmarshal(msgs[0].payload, &rej); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rej.Type != TypeRejected || rej.Actor != "99" || rej.Error != requests.ErrAlreadyClaimed.Error() {
		t.Errorf("rejection = %+v", rej)
	}
}

func TestClientUnknownBackend(t *testing.T) {
	c := NewClient(&config.MessagingConfig{Backend: "carrier-pigeon"})
	if err := c.Connect(); err == nil {
		t.Error("expected error for unknown backend")
	}
	if c.IsConnected() {
		t.Error("client should not report connected")
	}
	if err := c.Publish("t", nil); err == nil {
		t.Error("publish without connection should fail")
	}
	c.Close()
}

func TestClientKafkaWithoutBrokers(t *testing.T) {
	c := NewClient(&config.MessagingConfig{Backend: BackendKafka})
	if err := c.Connect(); err == nil {
		t.Error("expected error with no brokers")
	}
	if err := c.Subscribe("t", func([]byte) {}); err == nil {
		t.Error("subscribe before connect should fail")
	}
}
