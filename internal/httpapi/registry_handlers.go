package httpapi

import (
	"net/http"
	"strings"

	"authgrid.org/internal/auth"
	"authgrid.org/internal/health"
	"authgrid.org/internal/registry"
)

type registerServiceRequest struct {
	Name             string         `json:"name"`
	DisplayName      string         `json:"display_name,omitempty"`
	Description      string         `json:"description,omitempty"`
	BaseURL          string         `json:"base_url"`
	HealthCheckURL   string         `json:"health_check_url,omitempty"`
	ExpectedResponse string         `json:"expected_response,omitempty"`
	Version          string         `json:"version,omitempty"`
	RequiresAuth     bool           `json:"requires_auth"`
	AllowedRoles     []string       `json:"allowed_roles,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type registerServiceResponse struct {
	Service *registry.Service `json:"service"`
	// APIKey is returned exactly once, at registration.
	APIKey string `json:"api_key"`
}

type updateServiceRequest struct {
	Name             *string        `json:"name,omitempty"`
	DisplayName      *string        `json:"display_name,omitempty"`
	Description      *string        `json:"description,omitempty"`
	BaseURL          *string        `json:"base_url,omitempty"`
	HealthCheckURL   *string        `json:"health_check_url,omitempty"`
	ExpectedResponse *string        `json:"expected_response,omitempty"`
	Version          *string        `json:"version,omitempty"`
	RequiresAuth     *bool          `json:"requires_auth,omitempty"`
	AllowedRoles     []string       `json:"allowed_roles,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type heartbeatRequest struct {
	Name     string         `json:"name"`
	APIKey   string         `json:"api_key,omitempty"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (a *API) handleServices(w http.ResponseWriter, r *http.Request) {
	if a.registry == nil {
		writeError(w, r, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		chain(a.listServices, a.requireAnyPermission(auth.PermServicesRead, auth.PermServicesManage))(w, r)
	case http.MethodPost:
		chain(a.registerService, a.requireVerified(), a.requirePermission(auth.PermServicesRegister), a.rateLimitIdentity("svc_register"))(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) registerService(w http.ResponseWriter, r *http.Request) {
	var req registerServiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	svc := &registry.Service{
		Name:             req.Name,
		DisplayName:      req.DisplayName,
		Description:      req.Description,
		BaseURL:          req.BaseURL,
		HealthCheckURL:   req.HealthCheckURL,
		ExpectedResponse: req.ExpectedResponse,
		Version:          req.Version,
		RequiresAuth:     req.RequiresAuth,
		AllowedRoles:     req.AllowedRoles,
		Metadata:         req.Metadata,
	}
	apiKey, err := a.registry.Register(r.Context(), svc)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/services/"+svc.ID)
	writeJSON(w, http.StatusCreated, registerServiceResponse{Service: svc, APIKey: apiKey})
}

func (a *API) listServices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parsePositiveInt(q.Get("offset"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	f := registry.Filter{
		Search: strings.TrimSpace(q.Get("search")),
		Limit:  limit,
		Offset: offset,
	}
	if raw := q.Get("active"); raw != "" {
		v := raw == "true"
		f.Active = &v
	}
	if raw := q.Get("healthy"); raw != "" {
		v := raw == "true"
		f.Healthy = &v
	}

	services, total, err := a.registry.List(r.Context(), f)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"services": services,
		"total":    total,
		"limit":    f.Limit,
		"offset":   f.Offset,
	})
}

// handleServiceResource routes /v1/services/{id} and its sub-actions.
func (a *API) handleServiceResource(w http.ResponseWriter, r *http.Request) {
	if a.registry == nil {
		writeError(w, r, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/services/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	serviceID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			chain(func(w http.ResponseWriter, r *http.Request) {
				a.getService(w, r, serviceID)
			}, a.requireAnyPermission(auth.PermServicesRead, auth.PermServicesManage))(w, r)
		case http.MethodPut:
			chain(func(w http.ResponseWriter, r *http.Request) {
				a.updateService(w, r, serviceID)
			}, a.requireVerified(), a.requirePermission(auth.PermServicesManage))(w, r)
		case http.MethodDelete:
			chain(func(w http.ResponseWriter, r *http.Request) {
				a.deleteService(w, r, serviceID)
			}, a.requireVerified(), a.requirePermission(auth.PermServicesDelete))(w, r)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case len(parts) == 2 && (parts[1] == "activate" || parts[1] == "deactivate"):
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		chain(func(w http.ResponseWriter, r *http.Request) {
			a.toggleService(w, r, serviceID, parts[1] == "activate")
		}, a.requireVerified(), a.requirePermission(auth.PermServicesManage))(w, r)
	case len(parts) == 2 && parts[1] == "check":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		chain(func(w http.ResponseWriter, r *http.Request) {
			a.checkService(w, r, serviceID)
		}, a.requirePermission(auth.PermHealthTrigger), a.rateLimitIdentity("health_check"))(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getService(w http.ResponseWriter, r *http.Request, id string) {
	svc, err := a.registry.Get(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (a *API) updateService(w http.ResponseWriter, r *http.Request, id string) {
	var req updateServiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	svc, err := a.registry.Update(r.Context(), id, registry.Update{
		Name:             req.Name,
		DisplayName:      req.DisplayName,
		Description:      req.Description,
		BaseURL:          req.BaseURL,
		HealthCheckURL:   req.HealthCheckURL,
		ExpectedResponse: req.ExpectedResponse,
		Version:          req.Version,
		RequiresAuth:     req.RequiresAuth,
		AllowedRoles:     req.AllowedRoles,
		Metadata:         req.Metadata,
	})
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (a *API) deleteService(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.registry.Delete(r.Context(), id); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) toggleService(w http.ResponseWriter, r *http.Request, id string, active bool) {
	var err error
	if active {
		err = a.registry.Activate(r.Context(), id)
	} else {
		err = a.registry.Deactivate(r.Context(), id)
	}
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkService triggers an immediate probe outside the monitor schedule.
func (a *API) checkService(w http.ResponseWriter, r *http.Request, id string) {
	if a.monitor == nil {
		writeError(w, r, http.StatusServiceUnavailable, "health monitor unavailable")
		return
	}
	result, err := a.monitor.CheckOne(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleServiceStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	chain(func(w http.ResponseWriter, r *http.Request) {
		services, err := a.registry.Fleet(r.Context())
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, health.ComputeStats(services))
	}, a.requireAnyPermission(auth.PermHealthRead, auth.PermServicesRead))(w, r)
}

func (a *API) handleServiceAttention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	chain(func(w http.ResponseWriter, r *http.Request) {
		services, err := a.registry.Fleet(r.Context())
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		flagged := health.NeedsAttention(services, a.now(), a.staleAfter)
		writeJSON(w, http.StatusOK, map[string]any{
			"services": flagged,
			"total":    len(flagged),
		})
	}, a.requireAnyPermission(auth.PermHealthRead, auth.PermServicesRead))(w, r)
}

// handleHeartbeat is the one write endpoint that authenticates by API key
// instead of bearer token: the emitting service is the principal, not a
// person.
func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.registry == nil {
		writeError(w, r, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	var req heartbeatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	svc, err := a.registry.RecordHeartbeat(r.Context(), req.Name, req.APIKey, registry.Heartbeat{
		Status:   req.Status,
		Metadata: req.Metadata,
	})
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":        svc.Name,
		"last_heartbeat": svc.LastHeartbeat,
		"is_healthy":     svc.IsHealthy,
	})
}
