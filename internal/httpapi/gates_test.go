package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"authgrid.org/internal/auth"
)

func sessionRequest(t *testing.T, s auth.Session) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	return req.WithContext(auth.ContextWithSession(req.Context(), s))
}

func allow(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestDegradedSessionDeniesPermissionGates(t *testing.T) {
	a := &API{}
	var called bool
	h := chain(allow(&called), a.requirePermission(auth.PermServicesRead))

	rr := httptest.NewRecorder()
	h(rr, sessionRequest(t, auth.Session{
		Identity: auth.Identity{ID: "user-42", Roles: []string{"admin"}},
		Degraded: true,
	}))

	if called {
		t.Fatal("degraded session must not pass a permission gate")
	}
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestGateRequiresSession(t *testing.T) {
	a := &API{}
	var called bool
	h := chain(allow(&called), a.requirePermission(auth.PermServicesRead))

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/protected", nil))

	if called || rr.Code != http.StatusUnauthorized {
		t.Fatalf("called=%v status=%d, want gate denial with 401", called, rr.Code)
	}
}

func TestRequireRole(t *testing.T) {
	a := &API{}
	var called bool
	h := chain(allow(&called), a.requireRole("admin", "operator"))

	rr := httptest.NewRecorder()
	h(rr, sessionRequest(t, auth.Session{
		Identity: auth.Identity{ID: "user-42", Roles: []string{"operator"}},
	}))
	if !called {
		t.Fatalf("matching role denied, status = %d", rr.Code)
	}

	called = false
	rr = httptest.NewRecorder()
	h(rr, sessionRequest(t, auth.Session{
		Identity: auth.Identity{ID: "user-43", Roles: []string{"member"}},
	}))
	if called || rr.Code != http.StatusForbidden {
		t.Fatalf("called=%v status=%d, want 403", called, rr.Code)
	}
}

func TestRequireVerified(t *testing.T) {
	a := &API{}
	var called bool
	h := chain(allow(&called), a.requireVerified())

	rr := httptest.NewRecorder()
	h(rr, sessionRequest(t, auth.Session{
		Identity: auth.Identity{ID: "user-42", IsVerified: false},
	}))
	if called || rr.Code != http.StatusForbidden {
		t.Fatalf("called=%v status=%d, want 403 for unverified", called, rr.Code)
	}

	rr = httptest.NewRecorder()
	h(rr, sessionRequest(t, auth.Session{
		Identity: auth.Identity{ID: "user-42", IsVerified: true},
	}))
	if !called {
		t.Fatalf("verified caller denied, status = %d", rr.Code)
	}
}

func TestSelfOrPermissionAllowsSelf(t *testing.T) {
	a := &API{}
	var called bool
	target := func(r *http.Request) string { return "user-42" }
	h := chain(allow(&called), a.selfOrPermission(target, auth.PermIdentitiesRead))

	rr := httptest.NewRecorder()
	h(rr, sessionRequest(t, auth.Session{
		Identity: auth.Identity{ID: "user-42"},
	}))
	if !called {
		t.Fatalf("self access denied, status = %d", rr.Code)
	}
}
