package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"helprelay/requests"
)

// Outbox queues payloads for later delivery. *store.DB satisfies it.
type Outbox interface {
	EnqueueOutbox(topic string, payload []byte, msgType string) error
}

// BusSink presents requests by publishing JSON snapshots to the render
// topic. When an outbox is set, messages are queued there and delivered
// by an OutboxDrainer instead of published inline.
type BusSink struct {
	pub    Publisher
	outbox Outbox
	topic  string
}

func NewBusSink(pub Publisher, outbox Outbox, topic string) *BusSink {
	return &BusSink{pub: pub, outbox: outbox, topic: topic}
}

// Render assigns a fresh ref and publishes the snapshot under it.
func (s *BusSink) Render(_ context.Context, req requests.HelpRequest) (string, error) {
	ref := uuid.New().String()
	if err := s.send(TypeRender, ref, req); err != nil {
		return "", err
	}
	return ref, nil
}

// Update republishes the snapshot under an existing ref.
func (s *BusSink) Update(_ context.Context, ref string, req requests.HelpRequest) error {
	return s.send(TypeUpdate, ref, req)
}

func (s *BusSink) send(msgType, ref string, req requests.HelpRequest) error {
	data, err := json.Marshal(RequestMessage{
		Type:       msgType,
		Ref:        ref,
		StatusLine: req.StatusLine(),
		Request:    req,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	return s.deliver(msgType, data)
}

func (s *BusSink) deliver(msgType string, data []byte) error {
	if s.outbox != nil {
		if err := s.outbox.EnqueueOutbox(s.topic, data, msgType); err != nil {
			return fmt.Errorf("enqueue %s: %w", msgType, err)
		}
		return nil
	}
	if err := s.pub.Publish(s.topic, data); err != nil {
		return fmt.Errorf("publish %s: %w", msgType, err)
	}
	return nil
}

var _ requests.Sink = (*BusSink)(nil)
