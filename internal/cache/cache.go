// Package cache provides the read-through cache used for identity snapshots.
// Two backends are supported: in-process memory (development, single node)
// and redis (shared across replicas).
package cache

import (
	"context"
	"time"
)

// Client defines the cache operations the validator depends on.
type Client interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Removing a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration
}

type errNotFound struct{}

func (errNotFound) Error() string { return "cache: key not found" }

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errNotFound{}

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

// New builds a client for the configured driver. Unknown drivers fall back
// to the memory backend.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	}
}
