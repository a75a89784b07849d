package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// System role names seeded by migration. Their names are immutable and the
// root role can never be deactivated or deleted.
const (
	RoleRoot   = "root"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// RoleService implements role administration with the system-role protections
// and keeps cached identity snapshots coherent with role mutations.
type RoleService struct {
	roles      RoleStore
	identities IdentityStore
	invalidate func(ctx context.Context, identityID string)
}

// RoleServiceOption configures a RoleService.
type RoleServiceOption func(*RoleService)

// WithInvalidation registers the cache invalidation hook called for every
// identity whose effective permissions may have changed.
func WithInvalidation(fn func(ctx context.Context, identityID string)) RoleServiceOption {
	return func(s *RoleService) { s.invalidate = fn }
}

// NewRoleService builds a RoleService.
func NewRoleService(roles RoleStore, identities IdentityStore, opts ...RoleServiceOption) (*RoleService, error) {
	if roles == nil || identities == nil {
		return nil, errors.New("auth: role and identity stores are required")
	}
	s := &RoleService{roles: roles, identities: identities}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create validates the permission list against the closed vocabulary and
// persists the role. Name collisions surface as ErrConflict.
func (s *RoleService) Create(ctx context.Context, name, description string, permissions []string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	permissions = dedupeStrings(permissions)
	if invalid := ValidatePermissions(permissions); len(invalid) > 0 {
		return nil, fmt.Errorf("%w: unknown permissions: %s", ErrInvalidInput, strings.Join(invalid, ", "))
	}
	role := &Role{
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: permissions,
		IsActive:    true,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Get returns a role by id.
func (s *RoleService) Get(ctx context.Context, id string) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.roles.Find(ctx, id)
}

// List returns all roles.
func (s *RoleService) List(ctx context.Context) ([]*Role, error) {
	return s.roles.List(ctx)
}

// Update applies a partial mutation honouring the system-role protections.
func (s *RoleService) Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	role, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		if role.System && name != role.Name {
			return nil, fmt.Errorf("%w: system role %q cannot be renamed", ErrInvalidInput, role.Name)
		}
		role.Name = name
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Permissions != nil {
		perms := dedupeStrings(upd.Permissions)
		if invalid := ValidatePermissions(perms); len(invalid) > 0 {
			return nil, fmt.Errorf("%w: unknown permissions: %s", ErrInvalidInput, strings.Join(invalid, ", "))
		}
		role.Permissions = perms
	}
	if upd.IsActive != nil {
		if role.Name == RoleRoot && !*upd.IsActive {
			return nil, fmt.Errorf("%w: the %s role cannot be deactivated", ErrInvalidInput, RoleRoot)
		}
		role.IsActive = *upd.IsActive
	}

	if err := s.roles.Update(ctx, role); err != nil {
		return nil, err
	}
	s.invalidateRoleMembers(ctx, role.ID)
	return role, nil
}

// Delete removes a role. Roles with assigned identities and the root role
// are protected.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	role, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if role.Name == RoleRoot {
		return fmt.Errorf("%w: the %s role cannot be deleted", ErrInvalidInput, RoleRoot)
	}
	count, err := s.roles.AssignmentCount(ctx, role.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: role %q has %d assigned identities", ErrConflict, role.Name, count)
	}
	return s.roles.Delete(ctx, role.ID)
}

// Assign grants the role to an identity and drops its cached snapshot.
func (s *RoleService) Assign(ctx context.Context, identityID, roleID string) error {
	identityID = strings.TrimSpace(identityID)
	roleID = strings.TrimSpace(roleID)
	if identityID == "" || roleID == "" {
		return fmt.Errorf("%w: identity_id and role_id are required", ErrInvalidInput)
	}
	if err := s.identities.AssignRole(ctx, identityID, roleID); err != nil {
		return err
	}
	s.invalidateOne(ctx, identityID)
	return nil
}

// Unassign removes the role from an identity and drops its cached snapshot.
func (s *RoleService) Unassign(ctx context.Context, identityID, roleID string) error {
	identityID = strings.TrimSpace(identityID)
	roleID = strings.TrimSpace(roleID)
	if identityID == "" || roleID == "" {
		return fmt.Errorf("%w: identity_id and role_id are required", ErrInvalidInput)
	}
	if err := s.identities.RemoveRole(ctx, identityID, roleID); err != nil {
		return err
	}
	s.invalidateOne(ctx, identityID)
	return nil
}

// EffectivePermissions returns the deduplicated union of permissions across
// the identity's active roles.
func (s *RoleService) EffectivePermissions(ctx context.Context, identityID string) ([]string, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	roles, err := s.identities.RolesFor(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return Union(roles).List(), nil
}

// EffectiveSet resolves the identity's permission Set for gate checks.
func (s *RoleService) EffectiveSet(ctx context.Context, identityID string) (Set, error) {
	roles, err := s.identities.RolesFor(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return Union(roles), nil
}

func (s *RoleService) invalidateOne(ctx context.Context, identityID string) {
	if s.invalidate != nil {
		s.invalidate(ctx, identityID)
	}
}

func (s *RoleService) invalidateRoleMembers(ctx context.Context, roleID string) {
	if s.invalidate == nil {
		return
	}
	members, err := s.roles.IdentitiesWithRole(ctx, roleID)
	if err != nil {
		return
	}
	for _, id := range members {
		s.invalidate(ctx, id)
	}
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
