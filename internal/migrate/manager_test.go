package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func expectEnsureTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesOnlyPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	writeFile(t, dir, "0001_init.up.sql", "create table widgets(id text primary key);")
	writeFile(t, dir, "0002_indexes.up.sql", "create index widgets_id_idx on widgets(id);")

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))

	// Only the pending migration runs, inside a transaction.
	mock.ExpectBegin()
	mock.ExpectExec("create index widgets_id_idx").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_indexes.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := NewManager(db, dir, "")
	require.NoError(t, m.Up(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownWithoutHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	m := NewManager(db, t.TempDir(), "")
	require.EqualError(t, m.Down(context.Background()), "no migrations applied")
}

func TestSeedRunsOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	writeFile(t, dir, "0001_roles.sql", "insert into roles(name) values ('admin');")

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_seeds").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_roles.sql"))

	m := NewManager(db, "", dir)
	require.NoError(t, m.Seed(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectSQLSortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0002_second.up.sql", "")
	writeFile(t, dir, "0001_first.up.sql", "")
	writeFile(t, dir, "0001_first.down.sql", "")
	writeFile(t, dir, "notes.txt", "")

	files, err := collectSQL(dir, ".up.sql")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "0001_first.up.sql", files[0].Base)
	require.Equal(t, "0002_second.up.sql", files[1].Base)

	// A missing directory is treated as empty, not an error.
	files, err = collectSQL(filepath.Join(dir, "missing"), ".up.sql")
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`insert into t(v) values ('a;b'); delete from t;`)
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "'a;b'")
	require.Contains(t, stmts[1], "delete from t")
}
