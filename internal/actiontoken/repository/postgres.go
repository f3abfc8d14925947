package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"credential-control-plane/internal/actiontoken/domain"
	"credential-control-plane/internal/db"
)

// PostgresRepository persists action tokens over the given db handle, which
// may be a *sql.DB or an open transaction.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an action token repository that uses the given db for persistence.
func NewPostgresRepository(dbtx db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: dbtx}
}

const tokenColumns = `id, user_id, token_hash, kind, is_used, expires_at, created_at`

// Create persists t. The unique constraint on token_hash rejects a colliding
// raw value, which at 256 bits of entropy indicates a caller bug.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.ActionToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO action_tokens (id, user_id, token_hash, kind, is_used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6)`,
		t.ID, t.UserID, t.TokenHash, t.Kind, t.ExpiresAt, t.CreatedAt,
	)
	return err
}

// InvalidateUnused burns all outstanding tokens of the kind for the user.
func (r *PostgresRepository) InvalidateUnused(ctx context.Context, userID string, kind domain.Kind) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE action_tokens SET is_used = TRUE
		WHERE user_id = $1 AND kind = $2 AND NOT is_used`,
		userID, kind,
	)
	return err
}

// Consume flips is_used in the same statement that checks it, so two
// concurrent consumers of one token cannot both get a row back.
func (r *PostgresRepository) Consume(ctx context.Context, tokenHash string, kind domain.Kind, now time.Time) (*domain.ActionToken, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE action_tokens SET is_used = TRUE
		WHERE token_hash = $1 AND kind = $2 AND NOT is_used AND expires_at > $3
		RETURNING `+tokenColumns,
		tokenHash, kind, now,
	)
	var t domain.ActionToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Kind, &t.IsUsed, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// DeleteExpired removes tokens past their expiry, used or not. Called by the
// janitor; Consume checks expiry independently.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM action_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
