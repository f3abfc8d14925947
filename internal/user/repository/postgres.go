package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"credential-control-plane/internal/db"
	"credential-control-plane/internal/user/domain"
)

// PostgresRepository persists users over the given db handle, which may be
// a *sql.DB or an open transaction.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(dbtx db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: dbtx}
}

const userColumns = `id, email, password_hash, password_changed_at, email_verified,
	two_factor_enabled, two_factor_secret, active_session_count, created_at, updated_at`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user for email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// Create persists the user to the database. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, password_changed_at, email_verified,
			two_factor_enabled, two_factor_secret, active_session_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, u.PasswordHash, timeToNullTime(u.PasswordChangedAt), u.EmailVerified,
		u.TwoFactorEnabled, nullString(u.TwoFactorSecret), u.ActiveSessionCount, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

// UpdatePassword sets a new password hash and stamps password_changed_at.
// The stamp is what invalidates access tokens issued before the change.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, password_changed_at = $3, updated_at = $3
		WHERE id = $1`,
		id, passwordHash, changedAt,
	)
	return err
}

// SetEmailVerified marks the user's email address as verified.
func (r *PostgresRepository) SetEmailVerified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET email_verified = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}

// SetTwoFactorSecret stores an unconfirmed TOTP secret for the user (mid-setup state).
func (r *PostgresRepository) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET two_factor_secret = $2, updated_at = now() WHERE id = $1`,
		id, nullString(secret))
	return err
}

// EnableTwoFactor flips two_factor_enabled for a user whose secret is already stored.
// The conditional WHERE keeps the enabled-implies-secret invariant even under races.
func (r *PostgresRepository) EnableTwoFactor(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET two_factor_enabled = TRUE, updated_at = now()
		WHERE id = $1 AND two_factor_secret IS NOT NULL`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("no pending two-factor secret")
	}
	return nil
}

// DisableTwoFactor clears the secret and the enabled flag.
func (r *PostgresRepository) DisableTwoFactor(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET two_factor_enabled = FALSE, two_factor_secret = NULL, updated_at = now()
		WHERE id = $1`, id)
	return err
}

// SetActiveSessionCount persists the recomputed active-session count for observability.
func (r *PostgresRepository) SetActiveSessionCount(ctx context.Context, id string, n int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET active_session_count = $2 WHERE id = $1`, id, n)
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u       domain.User
		changed sql.NullTime
		secret  sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &changed, &u.EmailVerified,
		&u.TwoFactorEnabled, &secret, &u.ActiveSessionCount, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if changed.Valid {
		u.PasswordChangedAt = &changed.Time
	}
	if secret.Valid {
		u.TwoFactorSecret = secret.String
	}
	return &u, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
