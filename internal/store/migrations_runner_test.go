package store

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

const (
	expectTableExists = `table_name='schema_migrations'`
	expectCountTables = `COUNT\(\*\) FROM information_schema.tables`
	expectApplied     = `schema_migrations WHERE version=\$1`
	expectRecord      = `INSERT INTO schema_migrations`
	expectCreateTable = `CREATE TABLE IF NOT EXISTS schema_migrations`
)

func boolRow(v bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"exists"}).AddRow(v)
}

func expectMigrationTx(mock pgxmock.PgxPoolIface, header, version string) {
	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectExec(header).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(expectRecord).WithArgs(version).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
}

func TestApplyMigrationsEmptyDatabase(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(expectTableExists).WillReturnRows(boolRow(false))
	mock.ExpectQuery(expectCountTables).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(expectCreateTable).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectQuery(expectApplied).WithArgs("001_init.sql").WillReturnRows(boolRow(false))
	expectMigrationTx(mock, "-- Initial schema for bookings", "001_init.sql")
	mock.ExpectQuery(expectApplied).WithArgs("002_apps.sql").WillReturnRows(boolRow(false))
	expectMigrationTx(mock, "-- Bundled apps and credentials", "002_apps.sql")

	if err := ApplyMigrations(context.Background(), mock); err != nil {
		t.Fatalf("expected migrations to apply, got error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyMigrationsPopulatedWithoutTracking(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(expectTableExists).WillReturnRows(boolRow(false))
	mock.ExpectQuery(expectCountTables).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec(expectCreateTable).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(expectRecord).WithArgs("001_init.sql").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectQuery(expectApplied).WithArgs("001_init.sql").WillReturnRows(boolRow(true))
	mock.ExpectQuery(expectApplied).WithArgs("002_apps.sql").WillReturnRows(boolRow(false))
	expectMigrationTx(mock, "-- Bundled apps and credentials", "002_apps.sql")

	if err := ApplyMigrations(context.Background(), mock); err != nil {
		t.Fatalf("expected migrations to apply without replaying init, got error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyMigrationsAllAlreadyApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(expectTableExists).WillReturnRows(boolRow(true))
	mock.ExpectQuery(expectApplied).WithArgs("001_init.sql").WillReturnRows(boolRow(true))
	mock.ExpectQuery(expectApplied).WithArgs("002_apps.sql").WillReturnRows(boolRow(true))

	if err := ApplyMigrations(context.Background(), mock); err != nil {
		t.Fatalf("expected no-op migrations, got error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyMigrationsRollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(expectTableExists).WillReturnRows(boolRow(true))
	mock.ExpectQuery(expectApplied).WithArgs("001_init.sql").WillReturnRows(boolRow(true))
	mock.ExpectQuery(expectApplied).WithArgs("002_apps.sql").WillReturnRows(boolRow(false))
	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectExec("-- Bundled apps and credentials").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	if err := ApplyMigrations(context.Background(), mock); err == nil {
		t.Fatal("expected migration failure to be reported")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoadMigrationsSortsAndSkipsNonSQL(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql": {Data: []byte("-- later")},
		"002_first.sql": {Data: []byte("-- first")},
		"README.md":     {Data: []byte("docs")},
	}

	got, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(got))
	}
	if got[0].version != "002_first.sql" || got[1].version != "010_later.sql" {
		t.Fatalf("unexpected order: %s, %s", got[0].version, got[1].version)
	}
}
