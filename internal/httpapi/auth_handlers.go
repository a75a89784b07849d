package httpapi

import (
	"net/http"
	"strings"
	"time"

	"authgrid.org/internal/audit"
	"authgrid.org/internal/auth"
)

type verifyResponse struct {
	Identity    auth.Identity `json:"identity"`
	Permissions []string      `json:"permissions"`
	TokenID     string        `json:"token_id"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	Degraded    bool          `json:"degraded,omitempty"`
}

type revokeRequest struct {
	Token string `json:"token,omitempty"`
}

// handleAuthVerify returns the resolved identity plus the deduplicated
// permission list for the presented token. Services call this on every
// request they receive, so it has to stay cheap: the identity snapshot is
// cached and the permission union is computed from it.
func (a *API) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	session, set, err := a.effectiveSet(r)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	resp := verifyResponse{
		Identity:    session.Identity,
		Permissions: set.List(),
		TokenID:     session.TokenID,
		Degraded:    session.Degraded,
	}
	if session.Claims != nil && session.Claims.ExpiresAt != nil {
		t := session.Claims.ExpiresAt.Time
		resp.ExpiresAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAuthRevoke invalidates a token before its natural expiry. Callers
// always may revoke the token they presented; revoking someone else's token
// needs tokens.revoke.
func (a *API) handleAuthRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.NewError(auth.CodeTokenMalformed, "authentication required"))
		return
	}

	var req revokeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	claims := session.Claims
	if raw := strings.TrimSpace(req.Token); raw != "" {
		parsed, err := a.validator.Parse(raw)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if parsed.Subject != session.Identity.ID {
			_, set, err := a.effectiveSet(r)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}
			if !set.Has(auth.PermTokensRevoke) {
				writeAuthError(w, r, auth.NewError(auth.CodeInsufficientPermissions, "insufficient permissions").
					With("required", auth.PermTokensRevoke))
				return
			}
		}
		claims = parsed
	}

	if err := a.validator.Revoke(r.Context(), claims); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.token.revoked", map[string]any{
		"subject":  claims.Subject,
		"token_id": claims.TokenID(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleIdentityScoped routes /v1/identities/{id}/... paths.
func (a *API) handleIdentityScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/identities/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	identityID := parts[0]
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	handler := func(w http.ResponseWriter, r *http.Request) {
		perms, err := a.roles.EffectivePermissions(r.Context(), identityID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"identity_id": identityID,
			"permissions": perms,
		})
	}
	chain(handler, a.selfOrPermission(func(*http.Request) string { return identityID }, auth.PermIdentitiesRead))(w, r)
}
