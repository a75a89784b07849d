// Package httpapi is the HTTP edge: routing, authentication middleware,
// authorization gates and request/response plumbing. Domain decisions live in
// the auth, registry and health packages; this layer only translates.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"authgrid.org/internal/audit"
	"authgrid.org/internal/auth"
	"authgrid.org/internal/events"
	"authgrid.org/internal/health"
	"authgrid.org/internal/obs"
	"authgrid.org/internal/rate"
	"authgrid.org/internal/registry"
)

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps collects everything the edge needs. Nil optional fields disable the
// corresponding surface (a nil Stream turns off SSE, a nil Limiter the
// per-identity gate).
type Deps struct {
	Ready     ReadyProbe
	Version   string
	Validator *auth.Validator
	Roles     *auth.RoleService
	Registry  *registry.Registry
	Monitor   *health.Monitor
	Stream    *events.Stream
	Auditor   *audit.Recorder
	Limiter   rate.Limiter

	// StaleAfter is the needs-attention staleness window.
	StaleAfter time.Duration
	// Per-IP token bucket in front of everything. Zero values fall back to
	// 50 burst / 25 per second.
	IPBurst     int
	IPPerSecond int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	validator  *auth.Validator
	roles      *auth.RoleService
	registry   *registry.Registry
	monitor    *health.Monitor
	stream     *events.Stream
	auditor    *audit.Recorder
	limiter    rate.Limiter
	staleAfter time.Duration
	ipBurst    int
	ipPerSec   int
	now        func() time.Time
}

func New(d Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: d.Ready,
		version:    d.Version,
		validator:  d.Validator,
		roles:      d.Roles,
		registry:   d.Registry,
		monitor:    d.Monitor,
		stream:     d.Stream,
		auditor:    d.Auditor,
		limiter:    d.Limiter,
		staleAfter: d.StaleAfter,
		ipBurst:    d.IPBurst,
		ipPerSec:   d.IPPerSecond,
		now:        time.Now,
	}
	if a.staleAfter <= 0 {
		a.staleAfter = 24 * time.Hour
	}
	if a.ipBurst <= 0 {
		a.ipBurst = 50
	}
	if a.ipPerSec <= 0 {
		a.ipPerSec = 25
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// token surface
	a.mux.HandleFunc("/v1/auth/verify", a.handleAuthVerify)
	a.mux.HandleFunc("/v1/auth/revoke", a.handleAuthRevoke)
	a.mux.HandleFunc("/v1/identities/", a.handleIdentityScoped)

	// role management
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)

	// service registry + health
	a.mux.HandleFunc("/v1/services", a.handleServices)
	a.mux.HandleFunc("/v1/services/heartbeat", a.handleHeartbeat)
	a.mux.HandleFunc("/v1/services/stats", a.handleServiceStats)
	a.mux.HandleFunc("/v1/services/attention", a.handleServiceAttention)
	a.mux.HandleFunc("/v1/services/events", a.StreamEvents)
	a.mux.HandleFunc("/v1/services/", a.handleServiceResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler wires the middleware chain around the mux. Order matters: metrics
// outermost so denied requests are still counted, authentication after the
// transport guards so limits apply to anonymous traffic too.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.ipBurst, a.ipPerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
