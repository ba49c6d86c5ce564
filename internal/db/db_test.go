package db

import (
	"context"
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func TestMigrations_EmbeddedInPairs(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no migrations embedded")
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file in migrations: %s", name)
		}
	}

	var names []string
	for n := range ups {
		names = append(names, n)
		if !downs[n] {
			t.Errorf("migration %s has no down file", n)
		}
	}
	for n := range downs {
		if !ups[n] {
			t.Errorf("migration %s has no up file", n)
		}
	}
	sort.Strings(names)
	if !strings.HasPrefix(names[0], "000001_") {
		t.Errorf("first migration = %s, want 000001_*", names[0])
	}
}

func TestMigrations_OrganizationsSchema(t *testing.T) {
	b, err := fs.ReadFile(migrationsFS, "migrations/000002_create_organizations.up.sql")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	sql := string(b)
	for _, col := range []string{"name", "registration_code", "established_on", "address"} {
		if !strings.Contains(sql, col) {
			t.Errorf("organizations migration missing column %q", col)
		}
	}
	if strings.Contains(strings.ToUpper(sql), "UNIQUE") {
		t.Error("registration_code must not carry a UNIQUE constraint")
	}
}

func TestRunMigrations_InvalidDirection(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	err = RunMigrations(db, "sideways")
	if err == nil || !strings.Contains(err.Error(), "invalid migration direction") {
		t.Errorf("RunMigrations(sideways) err = %v, want invalid direction error", err)
	}
}

func TestConnect_BadDSN(t *testing.T) {
	// Port 1 on localhost is never a PostgreSQL server.
	_, err := Connect(context.Background(), "host=127.0.0.1 port=1 user=x dbname=x sslmode=disable connect_timeout=1", 1, 1)
	if err == nil {
		t.Fatal("expected error connecting to closed port")
	}
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestClearDirtyFlag_Dirty(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT version, dirty FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "dirty"}).AddRow(2, true))
	mock.ExpectExec("UPDATE schema_migrations SET dirty = false").
		WillReturnResult(sqlmock.NewResult(0, 1))

	version, wasDirty, err := ClearDirtyFlag(context.Background(), db)
	if err != nil {
		t.Fatalf("ClearDirtyFlag() error: %v", err)
	}
	if version != 2 || !wasDirty {
		t.Errorf("ClearDirtyFlag() = (%d, %v), want (2, true)", version, wasDirty)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestClearDirtyFlag_CleanLeavesStateAlone(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT version, dirty FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "dirty"}).AddRow(1, false))

	version, wasDirty, err := ClearDirtyFlag(context.Background(), db)
	if err != nil {
		t.Fatalf("ClearDirtyFlag() error: %v", err)
	}
	if version != 1 || wasDirty {
		t.Errorf("ClearDirtyFlag() = (%d, %v), want (1, false)", version, wasDirty)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestClearDirtyFlag_NeverMigrated(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT version, dirty FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "dirty"}))

	version, wasDirty, err := ClearDirtyFlag(context.Background(), db)
	if err != nil || version != 0 || wasDirty {
		t.Errorf("ClearDirtyFlag() = (%d, %v, %v), want (0, false, nil)", version, wasDirty, err)
	}
}
