package health

import "authgrid.org/internal/registry"

// Stats is a fleet-level health summary.
type Stats struct {
	Total          int     `json:"total"`
	Active         int     `json:"active"`
	Inactive       int     `json:"inactive"`
	Healthy        int     `json:"healthy"`
	Unhealthy      int     `json:"unhealthy"`
	HealthyPercent float64 `json:"healthy_percent"`
}

// ComputeStats summarizes the fleet. Health counts only cover active
// services; an empty active fleet reports 0%, not a division error.
func ComputeStats(services []*registry.Service) Stats {
	var st Stats
	st.Total = len(services)
	for _, svc := range services {
		if !svc.IsActive {
			st.Inactive++
			continue
		}
		st.Active++
		if svc.IsHealthy {
			st.Healthy++
		} else {
			st.Unhealthy++
		}
	}
	if st.Active > 0 {
		st.HealthyPercent = float64(st.Healthy) / float64(st.Active) * 100
	}
	return st
}
