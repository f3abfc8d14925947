package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"credential-control-plane/internal/user/domain"
)

var userCols = []string{
	"id", "email", "password_hash", "password_changed_at", "email_verified",
	"two_factor_enabled", "two_factor_secret", "active_session_count",
	"created_at", "updated_at",
}

func TestGetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now().UTC()
	changed := now.Add(-time.Hour)
	mock.ExpectQuery("(?s)SELECT .* FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			"u1", "alice@example.com", "bcrypt-hash", changed, true,
			true, "JBSWY3DP", 2, now, now,
		))

	u, err := repo.GetByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if u.ID != "u1" || !u.EmailVerified || !u.TwoFactorEnabled {
		t.Errorf("GetByEmail = %+v", u)
	}
	if u.TwoFactorSecret != "JBSWY3DP" {
		t.Errorf("secret = %q", u.TwoFactorSecret)
	}
	if u.PasswordChangedAt == nil || !u.PasswordChangedAt.Equal(changed) {
		t.Errorf("password_changed_at = %v, want %v", u.PasswordChangedAt, changed)
	}
	if u.ActiveSessionCount != 2 {
		t.Errorf("active_session_count = %d", u.ActiveSessionCount)
	}
}

func TestGetByEmail_NullableFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("(?s)SELECT .* FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			"u1", "alice@example.com", "bcrypt-hash", nil, false,
			false, nil, 0, now, now,
		))

	u, err := repo.GetByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if u.PasswordChangedAt != nil {
		t.Errorf("password_changed_at should be nil, got %v", u.PasswordChangedAt)
	}
	if u.TwoFactorSecret != "" {
		t.Errorf("secret should be empty, got %q", u.TwoFactorSecret)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery("(?s)SELECT .* FROM users WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userCols))

	u, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u != nil {
		t.Errorf("missing user should be (nil, nil), got %+v", u)
	}
}

func TestCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now().UTC()
	u := &domain.User{
		ID:           "u1",
		Email:        "alice@example.com",
		PasswordHash: "bcrypt-hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	mock.ExpectExec("INSERT INTO users").
		WithArgs("u1", "alice@example.com", "bcrypt-hash", sqlmock.AnyArg(), false,
			false, sqlmock.AnyArg(), 0, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	changedAt := time.Now().UTC()
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("u1", "new-hash", changedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdatePassword(context.Background(), "u1", "new-hash", changedAt); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
}

func TestEnableTwoFactor_RequiresPendingSecret(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	// No row matches when two_factor_secret is NULL.
	mock.ExpectExec("UPDATE users SET two_factor_enabled = TRUE").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.EnableTwoFactor(context.Background(), "u1"); err == nil {
		t.Fatal("enabling without a stored secret must fail")
	}

	mock.ExpectExec("UPDATE users SET two_factor_enabled = TRUE").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.EnableTwoFactor(context.Background(), "u1"); err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
}
