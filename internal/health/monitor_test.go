package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"authgrid.org/internal/events"
	"authgrid.org/internal/registry"
)

type memStore struct {
	mu       sync.Mutex
	services []*registry.Service
	probes   map[string]int
}

func newMemStore(services ...*registry.Service) *memStore {
	return &memStore{services: services, probes: make(map[string]int)}
}

func (s *memStore) Find(_ context.Context, id string) (*registry.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		if svc.ID == id {
			cp := *svc
			return &cp, nil
		}
	}
	return nil, registry.ErrNotFound
}

func (s *memStore) ListActive(context.Context) ([]*registry.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*registry.Service
	for _, svc := range s.services {
		if svc.IsActive {
			cp := *svc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) List(context.Context, registry.Filter) ([]*registry.Service, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*registry.Service, 0, len(s.services))
	for _, svc := range s.services {
		cp := *svc
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (s *memStore) RecordProbe(_ context.Context, id string, at time.Time, healthy bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[id]++
	for _, svc := range s.services {
		if svc.ID == id {
			svc.LastHealthCheck = &at
			svc.IsHealthy = healthy
		}
	}
	return nil
}

func TestCheckAllReturnsOneResultPerService(t *testing.T) {
	healthySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthySrv.Close()
	failingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failingSrv.Close()

	store := newMemStore(
		&registry.Service{ID: "svc-1", Name: "up", BaseURL: healthySrv.URL, IsActive: true},
		&registry.Service{ID: "svc-2", Name: "down", BaseURL: failingSrv.URL, IsActive: true},
		&registry.Service{ID: "svc-3", Name: "gone", BaseURL: "http://127.0.0.1:1", IsActive: true},
		&registry.Service{ID: "svc-4", Name: "paused", BaseURL: healthySrv.URL, IsActive: false},
	)

	m := NewMonitor(store, NewProber(500*time.Millisecond), time.Minute, WithParallelism(2))
	results, err := m.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}

	// One result per active service; inactive services are never probed.
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	byID := make(map[string]Result)
	for _, res := range results {
		byID[res.ServiceID] = res
	}
	if !byID["svc-1"].Healthy {
		t.Errorf("svc-1 should be healthy: %+v", byID["svc-1"])
	}
	if byID["svc-2"].Status != StatusError {
		t.Errorf("svc-2 status = %s, want error", byID["svc-2"].Status)
	}
	if byID["svc-3"].Healthy {
		t.Error("svc-3 must not be healthy")
	}
	if _, probed := byID["svc-4"]; probed {
		t.Error("inactive service must not be probed")
	}

	// Probe outcomes are recorded even for failures.
	for _, id := range []string{"svc-1", "svc-2", "svc-3"} {
		if store.probes[id] != 1 {
			t.Errorf("probe for %s recorded %d times, want 1", id, store.probes[id])
		}
	}
}

func TestCheckOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newMemStore(&registry.Service{ID: "svc-1", Name: "up", BaseURL: srv.URL, IsActive: true})
	m := NewMonitor(store, NewProber(time.Second), time.Minute)

	res, err := m.CheckOne(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("CheckOne: %v", err)
	}
	if !res.Healthy {
		t.Fatalf("expected healthy, got %+v", res)
	}
	if _, err := m.CheckOne(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown service")
	}
}

func TestMonitorPublishesTransitions(t *testing.T) {
	var healthy bool
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ok := healthy
		mu.Unlock()
		if ok {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	store := newMemStore(&registry.Service{ID: "svc-1", Name: "flappy", BaseURL: srv.URL, IsActive: true})
	stream := events.New()
	m := NewMonitor(store, NewProber(time.Second), time.Minute, WithStream(stream))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := stream.Subscribe(ctx)

	// First observation publishes, steady state does not, transitions do.
	if _, err := m.CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	evt := <-ch
	if evt.Healthy {
		t.Fatalf("first event should be unhealthy: %+v", evt)
	}

	if _, err := m.CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	select {
	case evt := <-ch:
		t.Fatalf("steady state must not publish, got %+v", evt)
	default:
	}

	mu.Lock()
	healthy = true
	mu.Unlock()
	if _, err := m.CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	evt = <-ch
	if !evt.Healthy {
		t.Fatalf("transition event should be healthy: %+v", evt)
	}
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	store := newMemStore()
	m := NewMonitor(store, NewProber(time.Second), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
