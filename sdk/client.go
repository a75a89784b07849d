// Package sdk is the client dependent services embed to register themselves
// and keep a heartbeat running against the control plane.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ErrNotRegistered reports a heartbeat the control plane did not recognize.
// The heartbeat loop reacts by re-registering.
var ErrNotRegistered = errors.New("sdk: service not registered")

// Descriptor is the registration payload for the calling service.
type Descriptor struct {
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

// Client talks to the control plane's registry endpoints.
type Client struct {
	baseURL    string
	descriptor Descriptor
	httpClient *http.Client
	token      string

	mu        sync.Mutex
	serviceID string
	apiKey    string

	startedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithToken sets the bearer token used for the registration call. Heartbeats
// authenticate with the issued API key instead.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New builds a Client for the control plane at baseURL.
func New(baseURL string, d Descriptor, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("sdk: base url is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return nil, errors.New("sdk: service name is required")
	}
	if strings.TrimSpace(d.BaseURL) == "" {
		return nil, errors.New("sdk: service base url is required")
	}
	c := &Client{
		baseURL:    baseURL,
		descriptor: d,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ServiceID returns the id assigned at registration, or "".
func (c *Client) ServiceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serviceID
}

type registerResponse struct {
	Service struct {
		ID string `json:"id"`
	} `json:"service"`
	APIKey string `json:"api_key"`
}

// Register announces the service to the control plane and retains the
// assigned id and API key for subsequent heartbeats.
func (c *Client) Register(ctx context.Context) error {
	body, err := json.Marshal(c.descriptor)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/services", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("sdk: register failed: %s", readError(resp))
	}
	var parsed registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}

	c.mu.Lock()
	c.serviceID = parsed.Service.ID
	c.apiKey = parsed.APIKey
	c.mu.Unlock()
	return nil
}

// Heartbeat posts one liveness signal. A 404 from the control plane means
// the registration is gone and surfaces as ErrNotRegistered.
func (c *Client) Heartbeat(ctx context.Context) error {
	c.mu.Lock()
	apiKey := c.apiKey
	c.mu.Unlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	payload := map[string]any{
		"name":    c.descriptor.Name,
		"api_key": apiKey,
		"status":  "online",
		"metadata": map[string]any{
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
			"uptime_seconds":  int(time.Since(c.startedAt).Seconds()),
			"memory_alloc_mb": mem.Alloc / (1 << 20),
			"version":         c.descriptor.Version,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/services/heartbeat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotRegistered
	default:
		return fmt.Errorf("sdk: heartbeat failed: %s", readError(resp))
	}
}

// StartHeartbeat runs the heartbeat loop until ctx is cancelled. When the
// control plane forgets the service, the loop re-registers and retries the
// heartbeat in the same tick.
func (c *Client) StartHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	beat := func() {
		err := c.Heartbeat(ctx)
		if errors.Is(err, ErrNotRegistered) {
			if err := c.Register(ctx); err != nil {
				return
			}
			_ = c.Heartbeat(ctx)
		}
	}

	beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

func readError(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != "" {
		return fmt.Sprintf("%d: %s", resp.StatusCode, parsed.Error)
	}
	return fmt.Sprintf("%d", resp.StatusCode)
}
