package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"authgrid.org/internal/registry"
)

func newMock(t *testing.T) (*RegistryStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewStore(db).Registry(), mock, func() { db.Close() }
}

func serviceRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "display_name", "description", "base_url", "health_check_url",
		"expected_response", "version", "requires_auth", "allowed_roles", "is_active",
		"is_healthy", "last_health_check", "last_heartbeat", "metadata", "api_key_hash",
		"created_at", "updated_at",
	})
}

func TestRegistryStoreCreate(t *testing.T) {
	store, mock, closeFn := newMock(t)
	defer closeFn()

	mock.ExpectExec("insert into services").
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := &registry.Service{Name: "billing", BaseURL: "http://billing:8080"}
	if err := store.Create(context.Background(), svc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if svc.ID == "" {
		t.Fatal("Create must assign an id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRegistryStoreCreateDuplicate(t *testing.T) {
	store, mock, closeFn := newMock(t)
	defer closeFn()

	mock.ExpectExec("insert into services").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "services_name_key"})

	err := store.Create(context.Background(), &registry.Service{Name: "billing", BaseURL: "http://billing:8080"})
	if !errors.Is(err, registry.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestRegistryStoreFind(t *testing.T) {
	store, mock, closeFn := newMock(t)
	defer closeFn()

	now := time.Now()
	check := now.Add(-time.Minute)
	mock.ExpectQuery("(?s)select id, name, display_name.*from services where id=").
		WithArgs("svc-1").
		WillReturnRows(serviceRows().AddRow(
			"svc-1", "billing", "Billing", "invoices", "http://billing:8080", "",
			"", "1.2.0", true, []byte(`["admin"]`), true,
			true, check, nil, []byte(`{"region":"eu-1"}`), "hash",
			now, now))

	svc, err := store.Find(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if svc.Name != "billing" || !svc.RequiresAuth {
		t.Fatalf("unexpected service: %+v", svc)
	}
	if len(svc.AllowedRoles) != 1 || svc.AllowedRoles[0] != "admin" {
		t.Fatalf("allowed roles wrong: %v", svc.AllowedRoles)
	}
	if svc.LastHealthCheck == nil || svc.LastHeartbeat != nil {
		t.Fatalf("timestamp decoding wrong: check=%v heartbeat=%v", svc.LastHealthCheck, svc.LastHeartbeat)
	}
	if svc.Metadata["region"] != "eu-1" {
		t.Fatalf("metadata wrong: %v", svc.Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRegistryStoreFindMissing(t *testing.T) {
	store, mock, closeFn := newMock(t)
	defer closeFn()

	mock.ExpectQuery("(?s)select id, name, display_name.*from services where id=").
		WithArgs("ghost").
		WillReturnRows(serviceRows())

	if _, err := store.Find(context.Background(), "ghost"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryStoreListFilters(t *testing.T) {
	store, mock, closeFn := newMock(t)
	defer closeFn()

	now := time.Now()
	mock.ExpectQuery("select count\\(\\*\\) from services where is_active = \\$1 and \\(lower\\(name\\) like \\$2").
		WithArgs(true, "%bill%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("(?s)select id, name, display_name.*from services where is_active = \\$1.*order by name asc limit \\$3 offset \\$4").
		WithArgs(true, "%bill%", 20, 0).
		WillReturnRows(serviceRows().AddRow(
			"svc-1", "billing", "Billing", "", "http://billing:8080", "",
			"", "", false, []byte(`[]`), true,
			true, nil, nil, []byte(`{}`), "",
			now, now))

	active := true
	services, total, err := store.List(context.Background(), registry.Filter{
		Active: &active,
		Search: "Bill",
		Limit:  20,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(services) != 1 {
		t.Fatalf("got %d/%d, want 1/1", len(services), total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRegistryStoreRecordHeartbeat(t *testing.T) {
	store, mock, closeFn := newMock(t)
	defer closeFn()

	at := time.Now()
	mock.ExpectExec("(?s)update services.*set last_heartbeat=").
		WithArgs("svc-1", at, true, []byte(`{"go_version":"go1.24"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.RecordHeartbeat(context.Background(), "svc-1", at, true,
		map[string]any{"go_version": "go1.24"})
	if err != nil {
		t.Fatalf("RecordHeartbeat: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRegistryStoreUpdateMissing(t *testing.T) {
	store, mock, closeFn := newMock(t)
	defer closeFn()

	mock.ExpectExec("update services").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), &registry.Service{ID: "ghost", Name: "x", BaseURL: "http://x"})
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryStoreDeleteMissing(t *testing.T) {
	store, mock, closeFn := newMock(t)
	defer closeFn()

	mock.ExpectExec("delete from services").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "ghost"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
