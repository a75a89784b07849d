// Package health probes registered services and keeps the liveness picture
// current: the prober performs single checks, the monitor batches them on a
// schedule, and the helpers summarize the fleet for operators.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"authgrid.org/internal/registry"
)

// Probe outcome classes. The distinction matters for operators: "unreachable"
// points at networking or a dead process, "timeout" at a hung one, and
// "error" at a process that answers but is unwell.
const (
	StatusHealthy     = "healthy"
	StatusUnreachable = "unreachable"
	StatusTimeout     = "timeout"
	StatusError       = "error"
)

// Result is the record of one probe attempt against one service.
type Result struct {
	ServiceID  string        `json:"service_id"`
	Name       string        `json:"name"`
	Status     string        `json:"status"`
	Healthy    bool          `json:"healthy"`
	HTTPStatus int           `json:"http_status,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Latency    time.Duration `json:"latency"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// Prober performs HTTP health checks against service endpoints.
type Prober struct {
	client  *http.Client
	timeout time.Duration
	now     func() time.Time
}

// NewProber builds a prober with the given per-check timeout.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		now:     time.Now,
	}
}

// Check probes one service and classifies the outcome. It never returns an
// error: every failure mode is part of the result.
func (p *Prober) Check(ctx context.Context, svc registry.Service) Result {
	res := Result{
		ServiceID: svc.ID,
		Name:      svc.Name,
		CheckedAt: p.now(),
	}

	target := probeURL(svc)
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Status = StatusError
		res.Detail = fmt.Sprintf("invalid probe url: %v", err)
		return res
	}
	req.Header.Set("User-Agent", "authgrid-health/1")

	start := p.now()
	resp, err := p.client.Do(req)
	res.Latency = p.now().Sub(start)
	if err != nil {
		res.Status, res.Detail = classifyErr(err)
		return res
	}
	defer resp.Body.Close()

	res.HTTPStatus = resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 400:
		res.Status = StatusError
		res.Detail = fmt.Sprintf("upstream returned %d", resp.StatusCode)
	case svc.ExpectedResponse != "" && !strings.Contains(string(body), svc.ExpectedResponse):
		res.Status = StatusError
		res.Detail = "response body did not match expected marker"
	default:
		res.Status = StatusHealthy
		res.Healthy = true
	}
	return res
}

// probeURL resolves the check endpoint for a service: an explicit health
// check URL when configured (absolute or relative to the base), otherwise
// <base_url>/health.
func probeURL(svc registry.Service) string {
	base := strings.TrimRight(svc.BaseURL, "/")
	target := svc.HealthCheckURL
	if target == "" {
		return base + "/health"
	}
	if u, err := url.Parse(target); err == nil && u.IsAbs() {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return base + target
}

func classifyErr(err error) (status, detail string) {
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout, "health check timed out"
	case errors.As(err, &nerr) && nerr.Timeout():
		return StatusTimeout, "health check timed out"
	default:
		return StatusUnreachable, trimErr(err)
	}
}

// trimErr strips the url.Error wrapper noise so details stay readable.
func trimErr(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err.Error()
	}
	return err.Error()
}
