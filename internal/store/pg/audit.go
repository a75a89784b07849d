package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"authgrid.org/internal/audit"
	"authgrid.org/internal/ids"
)

var _ audit.Store = (*AuditStore)(nil)

// AuditStore appends audit entries. Rows are never updated or deleted.
type AuditStore struct {
	db *sql.DB
}

// Audit returns the audit store bound to the shared pool.
func (s *Store) Audit() *AuditStore { return &AuditStore{db: s.db} }

func (s *AuditStore) Append(ctx context.Context, entry *audit.Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	before, _ := json.Marshal(entry.Before)
	after, _ := json.Marshal(entry.After)
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log(id, occurred_at, actor_id, action, resource_type, resource_id,
			before_state, after_state, request_id)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.ID, entry.OccurredAt, entry.ActorID, entry.Action, entry.ResourceType,
		entry.ResourceID, before, after, entry.RequestID)
	return err
}
