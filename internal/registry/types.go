package registry

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound covers lookups by id.
	ErrNotFound = errors.New("registry: service not found")
	// ErrNotRegistered is the heartbeat-path variant of not-found; the SDK
	// reacts to it by re-registering.
	ErrNotRegistered = errors.New("registry: service not registered")
	// ErrDuplicate reports a name or base URL collision.
	ErrDuplicate = errors.New("registry: duplicate service name or url")
	// ErrInvalidInput reports a malformed registration or update.
	ErrInvalidInput = errors.New("registry: invalid input")
	// ErrBadAPIKey reports a heartbeat with a wrong or missing key.
	ErrBadAPIKey = errors.New("registry: invalid api key")
)

// Service is a registered dependent microservice.
type Service struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	DisplayName      string         `json:"display_name,omitempty"`
	Description      string         `json:"description,omitempty"`
	BaseURL          string         `json:"base_url"`
	HealthCheckURL   string         `json:"health_check_url,omitempty"`
	ExpectedResponse string         `json:"expected_response,omitempty"`
	Version          string         `json:"version,omitempty"`
	RequiresAuth     bool           `json:"requires_auth"`
	AllowedRoles     []string       `json:"allowed_roles,omitempty"`
	IsActive         bool           `json:"is_active"`
	IsHealthy        bool           `json:"is_healthy"`
	LastHealthCheck  *time.Time     `json:"last_health_check,omitempty"`
	LastHeartbeat    *time.Time     `json:"last_heartbeat,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	// APIKeyHash is the bcrypt hash of the key issued at registration.
	// Never serialized.
	APIKeyHash string `json:"-"`
}

// Update is a partial administrative mutation. Nil fields are left untouched.
type Update struct {
	Name             *string
	DisplayName      *string
	Description      *string
	BaseURL          *string
	HealthCheckURL   *string
	ExpectedResponse *string
	Version          *string
	RequiresAuth     *bool
	AllowedRoles     []string
	Metadata         map[string]any
}

// Filter selects services for listing.
type Filter struct {
	Active  *bool
	Healthy *bool
	Search  string
	Limit   int
	Offset  int
}

// Heartbeat is a self-reported liveness signal.
type Heartbeat struct {
	Status   string         `json:"status"` // online | offline
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Store persists service records. Name and base URL uniqueness are enforced
// by database constraints; violations surface as ErrDuplicate.
type Store interface {
	Create(ctx context.Context, svc *Service) error
	Find(ctx context.Context, id string) (*Service, error)
	FindByName(ctx context.Context, name string) (*Service, error)
	List(ctx context.Context, f Filter) ([]*Service, int, error)
	ListActive(ctx context.Context) ([]*Service, error)
	Update(ctx context.Context, svc *Service) error
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	RecordHeartbeat(ctx context.Context, id string, at time.Time, healthy bool, meta map[string]any) error
	RecordProbe(ctx context.Context, id string, at time.Time, healthy bool) error
}
