package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"authgrid.org/internal/auth"
	"authgrid.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/services/heartbeat",
	"/",
}

// withAuth validates the bearer token on every non-public request and puts
// the resolved session on the context. Failures are logged as security
// events with the caller address so lockout decisions have a trail.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.validator == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.LogSecurityEvent("auth.missing_token", map[string]any{
				"path":       r.URL.Path,
				"remote":     clientIP(r),
				"user_agent": r.UserAgent(),
			})
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		session, err := a.validator.Validate(r.Context(), token)
		if err != nil {
			code, _ := auth.CodeOf(err)
			obs.LogSecurityEvent("auth.token_rejected", map[string]any{
				"path":       r.URL.Path,
				"remote":     clientIP(r),
				"user_agent": r.UserAgent(),
				"code":       string(code),
			})
			handleAuthError(w, r, err)
			return
		}

		ctx := auth.ContextWithSession(r.Context(), session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
