package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"authgrid.org/internal/ids"
	"authgrid.org/internal/registry"
)

var _ registry.Store = (*RegistryStore)(nil)

// RegistryStore implements registry.Store on PostgreSQL. Name and base URL
// uniqueness are enforced by database constraints so concurrent registrations
// cannot race past an application-level pre-check.
type RegistryStore struct {
	db *sql.DB
}

// Registry returns the registry store bound to the shared pool.
func (s *Store) Registry() *RegistryStore { return &RegistryStore{db: s.db} }

const serviceColumns = `id, name, display_name, description, base_url, health_check_url,
	expected_response, version, requires_auth, allowed_roles, is_active, is_healthy,
	last_health_check, last_heartbeat, metadata, api_key_hash, created_at, updated_at`

func (s *RegistryStore) Create(ctx context.Context, svc *registry.Service) error {
	if svc.ID == "" {
		svc.ID = ids.New()
	}
	roles, _ := json.Marshal(svc.AllowedRoles)
	meta, _ := json.Marshal(svc.Metadata)
	_, err := s.db.ExecContext(ctx, `
		insert into services(id, name, display_name, description, base_url, health_check_url,
			expected_response, version, requires_auth, allowed_roles, is_active, is_healthy,
			metadata, api_key_hash)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		svc.ID, svc.Name, svc.DisplayName, svc.Description, svc.BaseURL, svc.HealthCheckURL,
		svc.ExpectedResponse, svc.Version, svc.RequiresAuth, roles, svc.IsActive, svc.IsHealthy,
		meta, svc.APIKeyHash)
	return mapUniqueError(err)
}

func (s *RegistryStore) Find(ctx context.Context, id string) (*registry.Service, error) {
	return s.findBy(ctx, `id=$1`, id)
}

func (s *RegistryStore) FindByName(ctx context.Context, name string) (*registry.Service, error) {
	return s.findBy(ctx, `name=$1`, name)
}

func (s *RegistryStore) findBy(ctx context.Context, where, arg string) (*registry.Service, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+serviceColumns+` from services where `+where, arg)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, err
	}
	return svc, nil
}

func (s *RegistryStore) List(ctx context.Context, f registry.Filter) ([]*registry.Service, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Active != nil {
		conds = append(conds, "is_active = "+arg(*f.Active))
	}
	if f.Healthy != nil {
		conds = append(conds, "is_healthy = "+arg(*f.Healthy))
	}
	if f.Search != "" {
		p := arg("%" + strings.ToLower(f.Search) + "%")
		conds = append(conds, fmt.Sprintf(
			"(lower(name) like %s or lower(display_name) like %s or lower(description) like %s or lower(base_url) like %s)",
			p, p, p, p))
	}
	where := ""
	if len(conds) > 0 {
		where = " where " + strings.Join(conds, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from services`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `select ` + serviceColumns + ` from services` + where +
		` order by name asc limit ` + arg(f.Limit) + ` offset ` + arg(f.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []*registry.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, svc)
	}
	return res, total, rows.Err()
}

func (s *RegistryStore) ListActive(ctx context.Context) ([]*registry.Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+serviceColumns+` from services where is_active order by name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*registry.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, svc)
	}
	return res, rows.Err()
}

func (s *RegistryStore) Update(ctx context.Context, svc *registry.Service) error {
	roles, _ := json.Marshal(svc.AllowedRoles)
	meta, _ := json.Marshal(svc.Metadata)
	res, err := s.db.ExecContext(ctx, `
		update services
		set name=$2, display_name=$3, description=$4, base_url=$5, health_check_url=$6,
			expected_response=$7, version=$8, requires_auth=$9, allowed_roles=$10,
			metadata=$11, updated_at=now()
		where id=$1`,
		svc.ID, svc.Name, svc.DisplayName, svc.Description, svc.BaseURL, svc.HealthCheckURL,
		svc.ExpectedResponse, svc.Version, svc.RequiresAuth, roles, meta)
	if err != nil {
		return mapUniqueError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func (s *RegistryStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from services where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func (s *RegistryStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update services set is_active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func (s *RegistryStore) RecordHeartbeat(ctx context.Context, id string, at time.Time, healthy bool, meta map[string]any) error {
	metaJSON, _ := json.Marshal(meta)
	res, err := s.db.ExecContext(ctx, `
		update services
		set last_heartbeat=$2, is_healthy=$3,
			metadata = coalesce(metadata, '{}'::jsonb) || $4::jsonb,
			updated_at=now()
		where id=$1`,
		id, at, healthy, metaJSON)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func (s *RegistryStore) RecordProbe(ctx context.Context, id string, at time.Time, healthy bool) error {
	res, err := s.db.ExecContext(ctx, `
		update services
		set last_health_check=$2, is_healthy=$3, updated_at=now()
		where id=$1`,
		id, at, healthy)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// Helpers -------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*registry.Service, error) {
	var (
		svc           registry.Service
		roles, meta   []byte
		lastCheck     sql.NullTime
		lastHeartbeat sql.NullTime
	)
	if err := row.Scan(
		&svc.ID, &svc.Name, &svc.DisplayName, &svc.Description, &svc.BaseURL, &svc.HealthCheckURL,
		&svc.ExpectedResponse, &svc.Version, &svc.RequiresAuth, &roles, &svc.IsActive, &svc.IsHealthy,
		&lastCheck, &lastHeartbeat, &meta, &svc.APIKeyHash, &svc.CreatedAt, &svc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastCheck.Valid {
		t := lastCheck.Time
		svc.LastHealthCheck = &t
	}
	if lastHeartbeat.Valid {
		t := lastHeartbeat.Time
		svc.LastHeartbeat = &t
	}
	_ = json.Unmarshal(roles, &svc.AllowedRoles)
	_ = json.Unmarshal(meta, &svc.Metadata)
	return &svc, nil
}

func mapUniqueError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return registry.ErrDuplicate
	}
	return err
}
