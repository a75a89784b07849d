package health

import (
	"testing"

	"authgrid.org/internal/registry"
)

func TestComputeStats(t *testing.T) {
	services := []*registry.Service{
		{IsActive: true, IsHealthy: true},
		{IsActive: true, IsHealthy: true},
		{IsActive: true, IsHealthy: true},
		{IsActive: true, IsHealthy: false},
		{IsActive: false, IsHealthy: false},
	}
	st := ComputeStats(services)
	if st.Total != 5 || st.Active != 4 || st.Inactive != 1 {
		t.Fatalf("counts wrong: %+v", st)
	}
	if st.Healthy != 3 || st.Unhealthy != 1 {
		t.Fatalf("health counts wrong: %+v", st)
	}
	if st.HealthyPercent != 75 {
		t.Fatalf("healthy percent = %v, want 75", st.HealthyPercent)
	}
}

func TestComputeStatsNoActive(t *testing.T) {
	st := ComputeStats([]*registry.Service{{IsActive: false}})
	if st.HealthyPercent != 0 {
		t.Fatalf("healthy percent = %v, want 0", st.HealthyPercent)
	}

	if got := ComputeStats(nil); got.Total != 0 || got.HealthyPercent != 0 {
		t.Fatalf("empty fleet stats wrong: %+v", got)
	}
}
