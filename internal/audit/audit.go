// Package audit provides the append-only record of state-changing and
// security-relevant decisions. Every entry is written to the database and
// mirrored as a JSON log line.
package audit

import (
	"context"
	"time"
)

// Entry is one append-only audit record.
type Entry struct {
	ID           string         `json:"id"`
	OccurredAt   time.Time      `json:"occurred_at"`
	ActorID      string         `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Before       map[string]any `json:"before,omitempty"`
	After        map[string]any `json:"after,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
}

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
}
