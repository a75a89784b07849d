package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"authgrid.org/internal/events"
	"authgrid.org/internal/obs"
	"authgrid.org/internal/registry"
)

// storeAPI is the slice of the registry store the monitor needs.
type storeAPI interface {
	Find(ctx context.Context, id string) (*registry.Service, error)
	ListActive(ctx context.Context) ([]*registry.Service, error)
	List(ctx context.Context, f registry.Filter) ([]*registry.Service, int, error)
	RecordProbe(ctx context.Context, id string, at time.Time, healthy bool) error
}

// Monitor schedules health probes across all active services, bounded to a
// fixed number of concurrent checks per cycle.
type Monitor struct {
	store    storeAPI
	prober   *Prober
	stream   *events.Stream
	interval time.Duration
	parallel int
	now      func() time.Time

	mu   sync.RWMutex
	last map[string]Result
}

// MonitorOption customises a Monitor.
type MonitorOption func(*Monitor)

// WithStream publishes status transitions to the given event stream.
func WithStream(s *events.Stream) MonitorOption {
	return func(m *Monitor) { m.stream = s }
}

// WithParallelism caps concurrent probes per cycle.
func WithParallelism(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.parallel = n
		}
	}
}

// WithClock fixes the monitor's notion of now, for tests.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor builds a monitor probing on the given interval.
func NewMonitor(store storeAPI, prober *Prober, interval time.Duration, opts ...MonitorOption) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	m := &Monitor{
		store:    store,
		prober:   prober,
		interval: interval,
		parallel: 5,
		now:      time.Now,
		last:     make(map[string]Result),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run probes immediately and then on every interval tick until ctx ends.
// A panic inside one cycle is recovered and logged; the loop carries on.
func (m *Monitor) Run(ctx context.Context) {
	m.cycle(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cycle(ctx)
		}
	}
}

func (m *Monitor) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			obs.Event("error", "health cycle panic", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()

	results, err := m.CheckAll(ctx)
	if err != nil {
		obs.Event("error", "health cycle failed", map[string]any{"error": err.Error()})
		return
	}
	obs.Event("info", "health cycle complete", map[string]any{"checked": len(results)})
}

// CheckAll probes every active service with bounded concurrency and returns
// one result per service. Probe outcomes are always recorded, even failures.
func (m *Monitor) CheckAll(ctx context.Context) ([]Result, error) {
	services, err := m.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active services: %w", err)
	}

	results := make([]Result, len(services))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)
	for i, svc := range services {
		i, svc := i, svc
		g.Go(func() error {
			results[i] = m.checkService(gctx, *svc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m.updateFleetGauges(ctx)
	return results, nil
}

// CheckOne triggers a manual probe of a single service.
func (m *Monitor) CheckOne(ctx context.Context, id string) (Result, error) {
	svc, err := m.store.Find(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return m.checkService(ctx, *svc), nil
}

// Last returns the most recent in-memory result for a service, if any.
func (m *Monitor) Last(id string) (Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.last[id]
	return res, ok
}

func (m *Monitor) checkService(ctx context.Context, svc registry.Service) Result {
	res := m.prober.Check(ctx, svc)
	obs.ObserveProbe(res.Status, res.Latency)

	if err := m.store.RecordProbe(ctx, svc.ID, res.CheckedAt, res.Healthy); err != nil {
		obs.Event("error", "record probe failed", map[string]any{"service": svc.Name, "error": err.Error()})
	}

	m.mu.Lock()
	prev, seen := m.last[svc.ID]
	m.last[svc.ID] = res
	m.mu.Unlock()

	if m.stream != nil && (!seen || prev.Healthy != res.Healthy) {
		m.stream.Publish(events.HealthEvent{
			ServiceID: svc.ID,
			Name:      svc.Name,
			Status:    res.Status,
			Healthy:   res.Healthy,
			Detail:    res.Detail,
			Timestamp: res.CheckedAt,
		})
	}
	if !res.Healthy {
		obs.Event("warn", "service unhealthy", map[string]any{"service": svc.Name, "status": res.Status, "detail": res.Detail})
	}
	return res
}

// updateFleetGauges refreshes the service-count gauges from the store.
func (m *Monitor) updateFleetGauges(ctx context.Context) {
	all, _, err := m.store.List(ctx, registry.Filter{Limit: 1000})
	if err != nil {
		return
	}
	var active, inactive, healthy, unhealthy int
	for _, svc := range all {
		if svc.IsActive {
			active++
			if svc.IsHealthy {
				healthy++
			} else {
				unhealthy++
			}
		} else {
			inactive++
		}
	}
	obs.SetServiceCounts(active, inactive, healthy, unhealthy)
}
