package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"authgrid.org/internal/auth"
)

// gate wraps a handler with one authorization check. Gates compose left to
// right: chain(h, gateA, gateB) runs gateA first.
type gate func(http.HandlerFunc) http.HandlerFunc

func chain(h http.HandlerFunc, gates ...gate) http.HandlerFunc {
	for i := len(gates) - 1; i >= 0; i-- {
		h = gates[i](h)
	}
	return h
}

// effectiveSet resolves the caller's permission set. Degraded sessions carry
// no trusted role data, so they resolve to the empty set and every
// permission gate denies.
func (a *API) effectiveSet(r *http.Request) (auth.Session, auth.Set, error) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		return auth.Session{}, nil, auth.NewError(auth.CodeTokenMalformed, "authentication required")
	}
	if session.Degraded {
		return session, auth.Set{}, nil
	}
	set, err := a.roles.EffectiveSet(r.Context(), session.Identity.ID)
	if err != nil {
		return session, nil, auth.NewError(auth.CodeIdentityUnavailable, "permission lookup failed")
	}
	return session, set, nil
}

// requirePermission denies unless the caller holds every listed permission.
func (a *API) requirePermission(perms ...string) gate {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			_, set, err := a.effectiveSet(r)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}
			if !set.HasAll(perms...) {
				writeAuthError(w, r, auth.NewError(auth.CodeInsufficientPermissions, "insufficient permissions").
					With("required", strings.Join(perms, ",")))
				return
			}
			next(w, r)
		}
	}
}

// requireAnyPermission denies unless the caller holds at least one of them.
func (a *API) requireAnyPermission(perms ...string) gate {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			_, set, err := a.effectiveSet(r)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}
			if !set.HasAny(perms...) {
				writeAuthError(w, r, auth.NewError(auth.CodeInsufficientPermissions, "insufficient permissions").
					With("required_any", strings.Join(perms, ",")))
				return
			}
			next(w, r)
		}
	}
}

// requireRole denies unless the caller is assigned one of the named roles.
func (a *API) requireRole(roles ...string) gate {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			session, ok := auth.SessionFromContext(r.Context())
			if !ok {
				writeAuthError(w, r, auth.NewError(auth.CodeTokenMalformed, "authentication required"))
				return
			}
			for _, want := range roles {
				for _, have := range session.Identity.Roles {
					if have == want {
						next(w, r)
						return
					}
				}
			}
			writeAuthError(w, r, auth.NewError(auth.CodeInsufficientRole, "insufficient role").
				With("required_any", strings.Join(roles, ",")))
		}
	}
}

// requireVerified denies callers whose account has not completed
// verification.
func (a *API) requireVerified() gate {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			session, ok := auth.SessionFromContext(r.Context())
			if !ok {
				writeAuthError(w, r, auth.NewError(auth.CodeTokenMalformed, "authentication required"))
				return
			}
			if !session.Identity.IsVerified {
				writeAuthError(w, r, auth.NewError(auth.CodeAccountNotVerified, "account not verified"))
				return
			}
			next(w, r)
		}
	}
}

// selfOrPermission lets callers through when the request targets their own
// identity; everyone else needs the permission.
func (a *API) selfOrPermission(target func(*http.Request) string, perm string) gate {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			session, ok := auth.SessionFromContext(r.Context())
			if !ok {
				writeAuthError(w, r, auth.NewError(auth.CodeTokenMalformed, "authentication required"))
				return
			}
			if id := target(r); id != "" && id == session.Identity.ID {
				next(w, r)
				return
			}
			a.requirePermission(perm)(next)(w, r)
		}
	}
}

// rateLimitIdentity applies the shared fixed-window limiter per caller
// identity within a scope, so one hot endpoint cannot consume another's
// budget.
func (a *API) rateLimitIdentity(scope string) gate {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if a.limiter == nil {
				next(w, r)
				return
			}
			session, ok := auth.SessionFromContext(r.Context())
			if !ok {
				next(w, r)
				return
			}
			res, err := a.limiter.Allow(r.Context(), scope+":"+session.Identity.ID)
			if err != nil {
				// Fail open: losing the limiter backend must not take
				// authenticated traffic down with it.
				next(w, r)
				return
			}
			if !res.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter.Seconds())))
				writeAuthError(w, r, auth.NewError(auth.CodeRateLimitExceeded, "rate limit exceeded"))
				return
			}
			next(w, r)
		}
	}
}
