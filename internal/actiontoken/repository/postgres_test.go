package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"credential-control-plane/internal/actiontoken/domain"
)

var tokenCols = []string{"id", "user_id", "token_hash", "kind", "is_used", "expires_at", "created_at"}

func TestCreateAndInvalidate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now().UTC()
	token := &domain.ActionToken{
		ID:        "t1",
		UserID:    "u1",
		TokenHash: "hash-1",
		Kind:      domain.KindPasswordReset,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}

	mock.ExpectExec("UPDATE action_tokens SET is_used = TRUE").
		WithArgs("u1", domain.KindPasswordReset).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO action_tokens").
		WithArgs("t1", "u1", "hash-1", domain.KindPasswordReset, token.ExpiresAt, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.InvalidateUnused(context.Background(), "u1", domain.KindPasswordReset); err != nil {
		t.Fatalf("InvalidateUnused: %v", err)
	}
	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConsume(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("(?s)UPDATE action_tokens SET is_used = TRUE.*RETURNING").
		WithArgs("hash-1", domain.KindPasswordReset, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(tokenCols).AddRow(
			"t1", "u1", "hash-1", string(domain.KindPasswordReset), true, now.Add(time.Hour), now,
		))

	token, err := repo.Consume(context.Background(), "hash-1", domain.KindPasswordReset, now)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if token.ID != "t1" || token.UserID != "u1" || !token.IsUsed {
		t.Errorf("Consume = %+v", token)
	}
}

// The conditional UPDATE matches no row for consumed or expired tokens; the
// repository reports that as (nil, nil).
func TestConsume_NoMatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery("(?s)UPDATE action_tokens SET is_used = TRUE.*RETURNING").
		WithArgs("hash-spent", domain.KindEmailVerification, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(tokenCols))

	token, err := repo.Consume(context.Background(), "hash-spent", domain.KindEmailVerification, time.Now())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if token != nil {
		t.Errorf("spent token should be (nil, nil), got %+v", token)
	}
}

func TestDeleteExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectExec("DELETE FROM action_tokens WHERE expires_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted %d, want 4", n)
	}
}
