package messaging

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"helprelay/engine"
	"helprelay/requests"
)

// ActionHandler applies operator actions. *engine.Engine satisfies it.
type ActionHandler interface {
	HandleOperatorAction(ctx context.Context, a engine.OperatorAction) (requests.HelpRequest, error)
}

// ActionSubscriber consumes operator actions from the action topic. This
// is how an external chat bot drives the relay. Rejections are reported
// back on the render topic.
type ActionSubscriber struct {
	client      Subscriber
	replies     *BusSink
	actionTopic string
	handler     ActionHandler
	timeout     time.Duration
}

func NewActionSubscriber(client Subscriber, replies *BusSink, actionTopic string, handler ActionHandler) *ActionSubscriber {
	return &ActionSubscriber{
		client:      client,
		replies:     replies,
		actionTopic: actionTopic,
		handler:     handler,
		timeout:     30 * time.Second,
	}
}

// Start subscribes to the action topic.
func (s *ActionSubscriber) Start() error {
	return s.client.Subscribe(s.actionTopic, s.handleMessage)
}

func (s *ActionSubscriber) handleMessage(payload []byte) {
	var a engine.OperatorAction
	if err := json.Unmarshal(payload, &a); err != nil {
		log.Printf("messaging: decode operator action: %v", err)
		return
	}
	if a.RequestID == "" {
		log.Printf("messaging: operator action without request_id dropped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.handler.HandleOperatorAction(ctx, a); err != nil {
		log.Printf("messaging: %s on %s by %q rejected: %v", a.Action, a.RequestID, a.Actor, err)
		s.reject(a, err)
	}
}

func (s *ActionSubscriber) reject(a engine.OperatorAction, cause error) {
	if s.replies == nil {
		return
	}
	data, err := json.Marshal(RejectionMessage{
		Type:      TypeRejected,
		RequestID: a.RequestID,
		Action:    a.Action,
		Actor:     a.Actor,
		Error:     cause.Error(),
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		log.Printf("messaging: encode rejection: %v", err)
		return
	}
	if err := s.replies.deliver(TypeRejected, data); err != nil {
		log.Printf("messaging: send rejection: %v", err)
	}
}
