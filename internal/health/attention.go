package health

import (
	"sort"
	"time"

	"authgrid.org/internal/registry"
)

// Attention reasons.
const (
	ReasonUnhealthy    = "unhealthy"
	ReasonNeverChecked = "never_checked"
	ReasonStaleCheck   = "stale_check"
)

// Flagged pairs a service with the reason it needs an operator's eye.
type Flagged struct {
	Service *registry.Service `json:"service"`
	Reason  string            `json:"reason"`
}

// NeedsAttention selects the active services an operator should look at:
// failing the last probe, never probed at all, or not probed within
// staleAfter. Never-checked services sort first, then oldest check first.
func NeedsAttention(services []*registry.Service, now time.Time, staleAfter time.Duration) []Flagged {
	var out []Flagged
	for _, svc := range services {
		if !svc.IsActive {
			continue
		}
		switch {
		case svc.LastHealthCheck == nil:
			out = append(out, Flagged{Service: svc, Reason: ReasonNeverChecked})
		case !svc.IsHealthy:
			out = append(out, Flagged{Service: svc, Reason: ReasonUnhealthy})
		case now.Sub(*svc.LastHealthCheck) > staleAfter:
			out = append(out, Flagged{Service: svc, Reason: ReasonStaleCheck})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Service.LastHealthCheck, out[j].Service.LastHealthCheck
		if a == nil {
			return b != nil
		}
		if b == nil {
			return false
		}
		return a.Before(*b)
	})
	return out
}
