package messaging

import (
	"log"
	"sync"
	"time"

	"helprelay/store"
)

const (
	drainBatch = 50
	maxRetries = 10
)

// OutboxStore is the queue the drainer empties. *store.DB satisfies it.
type OutboxStore interface {
	ListPendingOutbox(limit int) ([]*store.OutboxMessage, error)
	AckOutbox(id int64) error
	IncrementOutboxRetries(id int64) error
}

// OutboxDrainer periodically sends pending outbox messages.
type OutboxDrainer struct {
	db       OutboxStore
	pub      Publisher
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewOutboxDrainer(db OutboxStore, pub Publisher, interval time.Duration) *OutboxDrainer {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxDrainer{
		db:       db,
		pub:      pub,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (d *OutboxDrainer) Start() {
	go d.run()
}

func (d *OutboxDrainer) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *OutboxDrainer) run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.drain()
		}
	}
}

// drain sends one batch in id order. A failed message stays queued with
// its retry count bumped; after maxRetries it is acked and dropped so it
// cannot block the queue.
func (d *OutboxDrainer) drain() int {
	msgs, err := d.db.ListPendingOutbox(drainBatch)
	if err != nil {
		log.Printf("outbox: list pending: %v", err)
		return 0
	}
	sent := 0
	for _, msg := range msgs {
		if err := d.pub.Publish(msg.Topic, msg.Payload); err != nil {
			if msg.Retries+1 >= maxRetries {
				log.Printf("outbox: dropping %s message %d after %d attempts: %v", msg.MsgType, msg.ID, msg.Retries+1, err)
				d.db.AckOutbox(msg.ID)
				continue
			}
			log.Printf("outbox: publish to %s failed: %v", msg.Topic, err)
			d.db.IncrementOutboxRetries(msg.ID)
			continue
		}
		if err := d.db.AckOutbox(msg.ID); err != nil {
			log.Printf("outbox: ack %d: %v", msg.ID, err)
			continue
		}
		sent++
	}
	return sent
}
