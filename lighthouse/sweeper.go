package lighthouse

import (
	"log"
	"sync"
	"time"
)

// Sweeper periodically recomputes device liveness.
type Sweeper struct {
	registry     *Registry
	interval     time.Duration
	offlineAfter time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewSweeper(registry *Registry, interval, offlineAfter time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		registry:     registry,
		interval:     interval,
		offlineAfter: offlineAfter,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start() {
	go s.loop()
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Sweeper) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if flipped := s.registry.SweepLiveness(s.offlineAfter); len(flipped) > 0 {
				log.Printf("lighthouse: %d device(s) changed liveness", len(flipped))
			}
		}
	}
}
