package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Registry is the service layer over the store. It validates input, issues
// API keys for heartbeat authentication, and reports before/after snapshots
// to an optional auditor.
type Registry struct {
	store   Store
	auditor Auditor
	now     func() time.Time
}

// Auditor receives one record per mutation.
type Auditor interface {
	Record(ctx context.Context, action, resourceType, resourceID string, before, after map[string]any)
}

// Option configures a Registry.
type Option func(*Registry)

// WithAuditor wires mutation auditing.
func WithAuditor(a Auditor) Option {
	return func(r *Registry) { r.auditor = a }
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// New builds a Registry.
func New(store Store, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("registry: store is required")
	}
	r := &Registry{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register validates and persists a new service. Uniqueness of name and base
// URL is left to the database; a violation comes back as ErrDuplicate with
// exactly one record surviving. The returned key is shown once and stored
// only as a hash.
func (r *Registry) Register(ctx context.Context, svc *Service) (apiKey string, err error) {
	svc.Name = strings.TrimSpace(strings.ToLower(svc.Name))
	if svc.Name == "" {
		return "", fmt.Errorf("%w: service name is required", ErrInvalidInput)
	}
	svc.BaseURL = strings.TrimRight(strings.TrimSpace(svc.BaseURL), "/")
	if err := validateURL(svc.BaseURL); err != nil {
		return "", fmt.Errorf("%w: base_url: %v", ErrInvalidInput, err)
	}
	if svc.HealthCheckURL != "" {
		if err := validateHealthURL(svc.HealthCheckURL); err != nil {
			return "", fmt.Errorf("%w: health_check_url: %v", ErrInvalidInput, err)
		}
	}

	apiKey, hash, err := newAPIKey()
	if err != nil {
		return "", err
	}
	svc.APIKeyHash = hash
	svc.IsActive = true
	svc.IsHealthy = false

	if err := r.store.Create(ctx, svc); err != nil {
		return "", err
	}
	r.audit(ctx, "registry.service.register", svc.ID, nil, snapshot(svc))
	return apiKey, nil
}

// Get returns a service by id.
func (r *Registry) Get(ctx context.Context, id string) (*Service, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: service id is required", ErrInvalidInput)
	}
	return r.store.Find(ctx, id)
}

// GetByName returns a service by its unique name.
func (r *Registry) GetByName(ctx context.Context, name string) (*Service, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return nil, fmt.Errorf("%w: service name is required", ErrInvalidInput)
	}
	return r.store.FindByName(ctx, name)
}

// List returns a page of services plus the unfiltered total for the filter.
func (r *Registry) List(ctx context.Context, f Filter) ([]*Service, int, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)
	return r.store.List(ctx, f)
}

// Fleet returns every registered service, for fleet-level summaries.
func (r *Registry) Fleet(ctx context.Context) ([]*Service, error) {
	services, _, err := r.store.List(ctx, Filter{Limit: 10000})
	return services, err
}

// Update applies a partial mutation. Name/URL uniqueness is re-checked (by
// the database) only when those fields actually change.
func (r *Registry) Update(ctx context.Context, id string, upd Update) (*Service, error) {
	svc, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := snapshot(svc)

	if upd.Name != nil {
		name := strings.TrimSpace(strings.ToLower(*upd.Name))
		if name == "" {
			return nil, fmt.Errorf("%w: service name is required", ErrInvalidInput)
		}
		svc.Name = name
	}
	if upd.DisplayName != nil {
		svc.DisplayName = strings.TrimSpace(*upd.DisplayName)
	}
	if upd.Description != nil {
		svc.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.BaseURL != nil {
		base := strings.TrimRight(strings.TrimSpace(*upd.BaseURL), "/")
		if err := validateURL(base); err != nil {
			return nil, fmt.Errorf("%w: base_url: %v", ErrInvalidInput, err)
		}
		svc.BaseURL = base
	}
	if upd.HealthCheckURL != nil {
		hc := strings.TrimSpace(*upd.HealthCheckURL)
		if hc != "" {
			if err := validateHealthURL(hc); err != nil {
				return nil, fmt.Errorf("%w: health_check_url: %v", ErrInvalidInput, err)
			}
		}
		svc.HealthCheckURL = hc
	}
	if upd.ExpectedResponse != nil {
		svc.ExpectedResponse = *upd.ExpectedResponse
	}
	if upd.Version != nil {
		svc.Version = strings.TrimSpace(*upd.Version)
	}
	if upd.RequiresAuth != nil {
		svc.RequiresAuth = *upd.RequiresAuth
	}
	if upd.AllowedRoles != nil {
		svc.AllowedRoles = upd.AllowedRoles
	}
	if upd.Metadata != nil {
		svc.Metadata = upd.Metadata
	}

	if err := r.store.Update(ctx, svc); err != nil {
		return nil, err
	}
	r.audit(ctx, "registry.service.update", svc.ID, before, snapshot(svc))
	return svc, nil
}

// Activate administratively enables a service.
func (r *Registry) Activate(ctx context.Context, id string) error {
	return r.setActive(ctx, id, true, "registry.service.activate")
}

// Deactivate logically retires a service without deleting its record.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	return r.setActive(ctx, id, false, "registry.service.deactivate")
}

func (r *Registry) setActive(ctx context.Context, id string, active bool, action string) error {
	svc, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	before := snapshot(svc)
	if err := r.store.SetActive(ctx, svc.ID, active); err != nil {
		return err
	}
	svc.IsActive = active
	r.audit(ctx, action, svc.ID, before, snapshot(svc))
	return nil
}

// Delete removes a service record unconditionally.
func (r *Registry) Delete(ctx context.Context, id string) error {
	svc, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, svc.ID); err != nil {
		return err
	}
	r.audit(ctx, "registry.service.delete", svc.ID, snapshot(svc), nil)
	return nil
}

// RecordHeartbeat ingests a self-reported liveness signal. Unknown services
// return ErrNotRegistered so callers can re-register; services registered
// with RequiresAuth must present their API key.
func (r *Registry) RecordHeartbeat(ctx context.Context, name, apiKey string, hb Heartbeat) (*Service, error) {
	svc, err := r.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, err
	}
	if svc.RequiresAuth {
		if err := verifyAPIKey(svc.APIKeyHash, apiKey); err != nil {
			return nil, ErrBadAPIKey
		}
	}
	status := strings.TrimSpace(strings.ToLower(hb.Status))
	if status != "online" && status != "offline" {
		return nil, fmt.Errorf("%w: status must be online or offline", ErrInvalidInput)
	}

	now := r.now().UTC()
	healthy := status == "online"
	wasHealthy := svc.IsHealthy
	if err := r.store.RecordHeartbeat(ctx, svc.ID, now, healthy, hb.Metadata); err != nil {
		return nil, err
	}
	svc.LastHeartbeat = &now
	svc.IsHealthy = healthy

	if wasHealthy != healthy {
		r.audit(ctx, "registry.service.heartbeat_transition", svc.ID,
			map[string]any{"is_healthy": wasHealthy},
			map[string]any{"is_healthy": healthy, "status": status})
	}
	return svc, nil
}

func (r *Registry) audit(ctx context.Context, action, id string, before, after map[string]any) {
	if r.auditor == nil {
		return
	}
	r.auditor.Record(ctx, action, "service", id, before, after)
}

// snapshot renders the auditable view of a service. The API key hash stays out.
func snapshot(svc *Service) map[string]any {
	return map[string]any{
		"name":          svc.Name,
		"display_name":  svc.DisplayName,
		"base_url":      svc.BaseURL,
		"health_url":    svc.HealthCheckURL,
		"version":       svc.Version,
		"requires_auth": svc.RequiresAuth,
		"allowed_roles": svc.AllowedRoles,
		"is_active":     svc.IsActive,
		"is_healthy":    svc.IsHealthy,
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// validateHealthURL accepts either an absolute http(s) URL or a path that
// the prober resolves against the service base URL.
func validateHealthURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.IsAbs() {
		return validateURL(raw)
	}
	if u.Host != "" || strings.ContainsAny(raw, " \t") {
		return fmt.Errorf("expected an absolute http(s) URL or a path, got %q", raw)
	}
	return nil
}

func newAPIKey() (key, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	key = hex.EncodeToString(buf)
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return key, string(h), nil
}

func verifyAPIKey(hash, key string) error {
	if hash == "" || key == "" {
		return ErrBadAPIKey
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}
