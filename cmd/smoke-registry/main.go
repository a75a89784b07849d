package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"authgrid.org/sdk"
)

// Smoke test against a running control plane: register a scratch service,
// send a heartbeat and confirm it shows up in the listing.
func main() {
	base := os.Getenv("AUTHGRID_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	token := os.Getenv("AUTHGRID_SMOKE_TOKEN")
	if token == "" {
		log.Fatal("AUTHGRID_SMOKE_TOKEN is required (needs services.register and services.read)")
	}

	name := "smoke-" + uuid.NewString()[:8]
	client, err := sdk.New(base, sdk.Descriptor{
		Name:    name,
		BaseURL: "http://localhost:19999",
		Version: "smoke",
	}, sdk.WithToken(token))
	if err != nil {
		log.Fatalf("sdk: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.Register(ctx); err != nil {
		log.Fatalf("register: %v", err)
	}
	if client.ServiceID() == "" {
		log.Fatal("register returned no service id")
	}
	if err := client.Heartbeat(ctx); err != nil {
		log.Fatalf("heartbeat: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/services?search="+name, nil)
	if err != nil {
		log.Fatalf("list request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Fatalf("list returned %d: %s", resp.StatusCode, body)
	}
	var listing struct {
		Total    int `json:"total"`
		Services []struct {
			Name          string     `json:"name"`
			LastHeartbeat *time.Time `json:"last_heartbeat"`
		} `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		log.Fatalf("decode listing: %v", err)
	}

	found := false
	for _, svc := range listing.Services {
		if svc.Name == name {
			found = true
			if svc.LastHeartbeat == nil {
				log.Fatalf("service %s listed without heartbeat", name)
			}
		}
	}
	if !found {
		log.Fatalf("service %s missing from listing (total=%d)", name, listing.Total)
	}

	fmt.Printf("✅ registry smoke test passed: service=%s id=%s\n", name, client.ServiceID())
}
