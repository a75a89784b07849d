package health

import (
	"testing"
	"time"

	"authgrid.org/internal/registry"
)

func TestNeedsAttention(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Minute)
	stale := now.Add(-45 * time.Minute)
	older := now.Add(-2 * time.Hour)

	services := []*registry.Service{
		{ID: "ok", Name: "ok", IsActive: true, IsHealthy: true, LastHealthCheck: &recent},
		{ID: "down", Name: "down", IsActive: true, IsHealthy: false, LastHealthCheck: &recent},
		{ID: "fresh", Name: "fresh", IsActive: true, IsHealthy: true},
		{ID: "stale", Name: "stale", IsActive: true, IsHealthy: true, LastHealthCheck: &stale},
		{ID: "ancient", Name: "ancient", IsActive: true, IsHealthy: false, LastHealthCheck: &older},
		{ID: "parked", Name: "parked", IsActive: false, IsHealthy: false},
	}

	flagged := NeedsAttention(services, now, 30*time.Minute)

	reasons := make(map[string]string, len(flagged))
	for _, f := range flagged {
		reasons[f.Service.ID] = f.Reason
	}
	if _, ok := reasons["ok"]; ok {
		t.Error("healthy recently-checked service must not be flagged")
	}
	if _, ok := reasons["parked"]; ok {
		t.Error("inactive service must not be flagged")
	}
	if reasons["down"] != ReasonUnhealthy {
		t.Errorf("down reason = %q, want %q", reasons["down"], ReasonUnhealthy)
	}
	if reasons["fresh"] != ReasonNeverChecked {
		t.Errorf("fresh reason = %q, want %q", reasons["fresh"], ReasonNeverChecked)
	}
	if reasons["stale"] != ReasonStaleCheck {
		t.Errorf("stale reason = %q, want %q", reasons["stale"], ReasonStaleCheck)
	}

	// Never-checked first, then by oldest last check.
	wantOrder := []string{"fresh", "ancient", "stale", "down"}
	if len(flagged) != len(wantOrder) {
		t.Fatalf("flagged %d services, want %d", len(flagged), len(wantOrder))
	}
	for i, id := range wantOrder {
		if flagged[i].Service.ID != id {
			t.Errorf("position %d = %s, want %s", i, flagged[i].Service.ID, id)
		}
	}
}

func TestNeedsAttentionEmpty(t *testing.T) {
	if got := NeedsAttention(nil, time.Now(), time.Hour); len(got) != 0 {
		t.Fatalf("expected no flags, got %d", len(got))
	}
}
