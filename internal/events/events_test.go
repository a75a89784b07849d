package events

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx)
	b := s.Subscribe(ctx)

	evt := HealthEvent{ServiceID: "svc-1", Name: "billing", Status: "unreachable", Timestamp: time.Now()}
	s.Publish(evt)

	for _, ch := range []<-chan HealthEvent{a, b} {
		select {
		case got := <-ch:
			if got.ServiceID != "svc-1" || got.Status != "unreachable" {
				t.Fatalf("unexpected event: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)

	// Fill the buffer and then some; extra events are dropped, never blocking.
	for i := 0; i < 40; i++ {
		s.Publish(HealthEvent{ServiceID: "svc-1"})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received == 0 || received > 16 {
				t.Fatalf("received %d events, want between 1 and 16", received)
			}
			return
		}
	}
}

func TestSubscribeClosesOnContextCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected closed channel, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// Publishing after the subscriber left must be a no-op.
	s.Publish(HealthEvent{ServiceID: "svc-1"})
}
