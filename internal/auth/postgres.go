package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"authgrid.org/internal/ids"
)

// PGStore bundles the PostgreSQL-backed auth stores.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Identities() IdentityStore    { return &identityStore{db: s.db} }
func (s *PGStore) Roles() RoleStore             { return &roleStore{db: s.db} }
func (s *PGStore) Revocations() RevocationStore { return &revocationStore{db: s.db} }

// Identity store ------------------------------------------------------------

type identityStore struct{ db *sql.DB }

func (s *identityStore) Find(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, display_name, is_active, is_verified, created_at, updated_at
		from identities where id=$1`, id)
	var ident Identity
	if err := row.Scan(&ident.ID, &ident.Email, &ident.Name, &ident.IsActive, &ident.IsVerified, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select r.name from roles r
		join identity_roles ir on ir.role_id = r.id
		where ir.identity_id = $1
		order by r.name asc`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		ident.Roles = append(ident.Roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &ident, nil
}

func (s *identityStore) RolesFor(ctx context.Context, identityID string) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.permissions, r.is_active, r.is_system, r.created_at, r.updated_at
		from roles r
		join identity_roles ir on ir.role_id = r.id
		where ir.identity_id = $1
		order by r.name asc`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *role)
	}
	return res, rows.Err()
}

func (s *identityStore) AssignRole(ctx context.Context, identityID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into identity_roles(identity_id, role_id)
		values($1,$2)
		on conflict (identity_id, role_id) do nothing`, identityID, roleID)
	return mapPGError(err)
}

func (s *identityStore) RemoveRole(ctx context.Context, identityID, roleID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from identity_roles where identity_id=$1 and role_id=$2`, identityID, roleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Role store ----------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	perms, _ := json.Marshal(role.Permissions)
	_, err := s.db.ExecContext(ctx, `
		insert into roles(id, name, description, permissions, is_active, is_system)
		values($1,$2,$3,$4,$5,$6)`,
		role.ID, role.Name, role.Description, perms, role.IsActive, role.System)
	return mapPGError(err)
}

func (s *roleStore) Find(ctx context.Context, id string) (*Role, error) {
	return s.findBy(ctx, `id=$1`, id)
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	return s.findBy(ctx, `name=$1`, name)
}

func (s *roleStore) findBy(ctx context.Context, where, arg string) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, description, permissions, is_active, is_system, created_at, updated_at
		from roles where `+where, arg)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return role, nil
}

func (s *roleStore) List(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, permissions, is_active, is_system, created_at, updated_at
		from roles order by name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, role)
	}
	return res, rows.Err()
}

func (s *roleStore) Update(ctx context.Context, role *Role) error {
	perms, _ := json.Marshal(role.Permissions)
	res, err := s.db.ExecContext(ctx, `
		update roles
		set name=$2, description=$3, permissions=$4, is_active=$5, updated_at=now()
		where id=$1`,
		role.ID, role.Name, role.Description, perms, role.IsActive)
	if err != nil {
		return mapPGError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *roleStore) AssignmentCount(ctx context.Context, roleID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from identity_roles where role_id=$1`, roleID).Scan(&count)
	return count, err
}

func (s *roleStore) IdentitiesWithRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select identity_id from identity_roles where role_id=$1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

// Revocation store ----------------------------------------------------------

type revocationStore struct{ db *sql.DB }

func (s *revocationStore) Revoke(ctx context.Context, record *RevokedToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens(token_id, subject, revoked_at, expires_at)
		values($1,$2,$3,$4)
		on conflict (token_id) do nothing`,
		record.TokenID, record.Subject, record.RevokedAt, record.ExpiresAt)
	return err
}

func (s *revocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from revoked_tokens where token_id=$1 and expires_at > now())`,
		tokenID).Scan(&exists)
	return exists, err
}

func (s *revocationStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from revoked_tokens where expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Helpers -------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*Role, error) {
	var (
		role  Role
		perms []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &perms, &role.IsActive, &role.System, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(perms, &role.Permissions)
	return &role, nil
}

// mapPGError translates unique-constraint violations into ErrConflict so the
// uniqueness invariant is enforced by the database, not by pre-checks.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}
