// Package events fans health transitions out to live subscribers (the SSE
// endpoint). It is a purely in-memory broadcast, not a message bus: events
// are dropped for slow subscribers and nothing is persisted.
package events

import (
	"context"
	"sync"
	"time"
)

// HealthEvent describes one observed liveness transition of a service.
type HealthEvent struct {
	ServiceID string    `json:"service_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs health events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan HealthEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan HealthEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan HealthEvent {
	ch := make(chan HealthEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt HealthEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
