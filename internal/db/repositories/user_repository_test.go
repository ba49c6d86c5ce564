package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vivadrive/organization-api/internal/db/models"
)

var userCols = []string{
	"id", "username", "email", "password_hash", "first_name", "last_name",
	"is_active", "is_staff", "is_superuser", "last_login", "date_joined",
}

func sampleUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(int64(2), "theCOO", "dinesh@vivadrive.io", "$2a$10$hash", "Dinesh", "Kumar",
			true, true, false, nil, time.Now())
}

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestUserCreate_Success(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	u := &models.User{Username: "admin", PasswordHash: "h", IsActive: true, IsSuperuser: true}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != 3 {
		t.Errorf("ID = %d, want 3", u.ID)
	}
	if u.DateJoined.IsZero() {
		t.Error("DateJoined not set")
	}
}

func TestUserCreate_DuplicateUsername(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), &models.User{Username: "admin", PasswordHash: "h"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("err = %v, want ErrUsernameTaken", err)
	}
}

func TestUserGetByUsername_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE username").
		WithArgs("theCOO").
		WillReturnRows(sampleUserRow())

	u, err := repo.GetByUsername(context.Background(), "theCOO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil {
		t.Fatal("expected user, got nil")
	}
	if u.FullName() != "Dinesh Kumar" {
		t.Errorf("FullName = %q, want Dinesh Kumar", u.FullName())
	}
	if !u.IsStaff || u.IsSuperuser {
		t.Errorf("flags = staff:%v superuser:%v, want staff only", u.IsStaff, u.IsSuperuser)
	}
	if u.LastLogin != nil {
		t.Errorf("LastLogin = %v, want nil", u.LastLogin)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WillReturnRows(sqlmock.NewRows(userCols))

	u, err := repo.GetByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Error("expected nil, got non-nil")
	}
}

func TestUserUpdateLastLogin(t *testing.T) {
	repo, mock := newUserRepo(t)
	at := time.Now()
	mock.ExpectExec("UPDATE users SET last_login").
		WithArgs(int64(2), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateLastLogin(context.Background(), 2, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUserDelete_Error(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("DELETE FROM users").WillReturnError(errors.New("db error"))

	if _, err := repo.Delete(context.Background(), 2); err == nil {
		t.Fatal("expected error, got nil")
	}
}
