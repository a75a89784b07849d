package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"authgrid.org/internal/auth"
	"authgrid.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Recorder writes audit entries to the store and mirrors them to the log.
// A nil store degrades to log-only recording.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder builds a Recorder over an optional store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record appends one entry, enriching it with the actor and request id from
// the context. Store failures are logged, never propagated: an audit write
// must not fail the action it describes.
func (r *Recorder) Record(ctx context.Context, action, resourceType, resourceID string, before, after map[string]any) {
	entry := &Entry{
		OccurredAt:   r.now().UTC(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Before:       Redact(before),
		After:        Redact(after),
		RequestID:    requestIDFromContext(ctx),
	}
	if actor, ok := auth.SubjectFromContext(ctx); ok {
		entry.ActorID = actor
	}

	if r.store != nil {
		if err := r.store.Append(ctx, entry); err != nil {
			obs.LogRequest(map[string]any{
				"type":  "audit",
				"level": "error",
				"msg":   "audit append failed",
				"error": err.Error(),
			})
		}
	}
	_ = LogEvent(ctx, action, map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"before":        entry.Before,
		"after":         entry.After,
	})
}

// LogEvent writes an audit log line enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if actor, ok := auth.SubjectFromContext(ctx); ok {
		entry["actor_id"] = actor
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
