package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"authgrid.org/internal/auth"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

type assignmentRequest struct {
	IdentityID string `json:"identity_id"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if a.roles == nil {
		writeError(w, r, http.StatusServiceUnavailable, "role service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		chain(a.listRoles, a.requireAnyPermission(auth.PermRolesRead, auth.PermRolesManage))(w, r)
	case http.MethodPost:
		chain(a.createRole, a.requireVerified(), a.requirePermission(auth.PermRolesManage))(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.roles.List(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roles": roles,
		"total": len(roles),
	})
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.roles.Create(r.Context(), req.Name, req.Description, req.Permissions)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.create", "role", role.ID, nil, map[string]any{
		"name":        role.Name,
		"permissions": role.Permissions,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

// handleRoleResource routes /v1/roles/{id} and /v1/roles/{id}/{assign,unassign}.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if a.roles == nil {
		writeError(w, r, http.StatusServiceUnavailable, "role service unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			chain(func(w http.ResponseWriter, r *http.Request) {
				a.getRole(w, r, roleID)
			}, a.requireAnyPermission(auth.PermRolesRead, auth.PermRolesManage))(w, r)
		case http.MethodPut:
			chain(func(w http.ResponseWriter, r *http.Request) {
				a.updateRole(w, r, roleID)
			}, a.requireVerified(), a.requirePermission(auth.PermRolesManage))(w, r)
		case http.MethodDelete:
			chain(func(w http.ResponseWriter, r *http.Request) {
				a.deleteRole(w, r, roleID)
			}, a.requireVerified(), a.requirePermission(auth.PermRolesManage))(w, r)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case len(parts) == 2 && (parts[1] == "assign" || parts[1] == "unassign"):
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		chain(func(w http.ResponseWriter, r *http.Request) {
			a.changeAssignment(w, r, roleID, parts[1])
		}, a.requireVerified(), a.requirePermission(auth.PermRolesManage))(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request, roleID string) {
	role, err := a.roles.Get(r.Context(), roleID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request, roleID string) {
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.roles.Update(r.Context(), roleID, auth.RoleUpdate{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		IsActive:    req.IsActive,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.update", "role", roleID, nil, map[string]any{
		"name":        role.Name,
		"permissions": role.Permissions,
		"is_active":   role.IsActive,
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request, roleID string) {
	if err := a.roles.Delete(r.Context(), roleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role.delete", "role", roleID, nil, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) changeAssignment(w http.ResponseWriter, r *http.Request, roleID, action string) {
	var req assignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.IdentityID = strings.TrimSpace(req.IdentityID)
	if req.IdentityID == "" {
		writeError(w, r, http.StatusBadRequest, "identity_id is required")
		return
	}

	var err error
	if action == "assign" {
		err = a.roles.Assign(r.Context(), req.IdentityID, roleID)
	} else {
		err = a.roles.Unassign(r.Context(), req.IdentityID, roleID)
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.role."+action, "role", roleID, nil, map[string]any{
		"identity_id": req.IdentityID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// audit records a mutation when a recorder is wired.
func (a *API) audit(ctx context.Context, action, resourceType, resourceID string, before, after map[string]any) {
	if a.auditor == nil {
		return
	}
	a.auditor.Record(ctx, action, resourceType, resourceID, before, after)
}
