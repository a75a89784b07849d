package auth

import (
	"context"
	"time"
)

// Identity is an immutable snapshot of a subject fetched from the identity
// store. The core never mutates it; role changes invalidate cached copies.
type Identity struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Roles      []string  `json:"roles"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Role groups permissions under a unique name.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	IsActive    bool      `json:"is_active"`
	System      bool      `json:"system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RevokedToken marks a token unusable before its natural expiry. The record
// expires alongside the token it shadows.
type RevokedToken struct {
	TokenID   string    `json:"token_id"`
	Subject   string    `json:"subject"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RoleUpdate describes a partial role mutation.
type RoleUpdate struct {
	Name        *string
	Description *string
	Permissions []string
	IsActive    *bool
}

// IdentityStore resolves identities and their role assignments.
type IdentityStore interface {
	Find(ctx context.Context, id string) (*Identity, error)
	RolesFor(ctx context.Context, identityID string) ([]Role, error)
	AssignRole(ctx context.Context, identityID, roleID string) error
	RemoveRole(ctx context.Context, identityID, roleID string) error
}

// RoleStore persists roles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error
	AssignmentCount(ctx context.Context, roleID string) (int, error)
	IdentitiesWithRole(ctx context.Context, roleID string) ([]string, error)
}

// RevocationStore persists revoked-token records.
type RevocationStore interface {
	Revoke(ctx context.Context, record *RevokedToken) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
