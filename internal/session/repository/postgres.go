package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"credential-control-plane/internal/db"
	"credential-control-plane/internal/session/domain"
)

// PostgresRepository persists sessions over the given db handle, which may be
// a *sql.DB or an open transaction.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(dbtx db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: dbtx}
}

const sessionColumns = `id, user_id, device_fingerprint, device_browser, device_os,
	device_platform, device_name, ip_address, refresh_token_hash, is_active,
	last_active_at, expires_at, created_at`

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// UpsertActive inserts s as a new active session, or, when an active session
// already exists for (user_id, device_fingerprint), refreshes that row's
// device info, last_active_at, and expires_at in place. One statement, one
// serialization point: the ON CONFLICT targets the partial unique index, so
// two concurrent logins from the same device can never both insert.
// Returns the persisted row; its ID is the existing session's on refresh.
func (r *PostgresRepository) UpsertActive(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, user_id, device_fingerprint, device_browser, device_os,
			device_platform, device_name, ip_address, refresh_token_hash, is_active,
			last_active_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', TRUE, $9, $10, $11)
		ON CONFLICT (user_id, device_fingerprint) WHERE is_active
		DO UPDATE SET
			device_browser  = EXCLUDED.device_browser,
			device_os       = EXCLUDED.device_os,
			device_platform = EXCLUDED.device_platform,
			device_name     = EXCLUDED.device_name,
			ip_address      = EXCLUDED.ip_address,
			last_active_at  = EXCLUDED.last_active_at,
			expires_at      = EXCLUDED.expires_at
		RETURNING `+sessionColumns,
		s.ID, s.UserID, s.DeviceFingerprint, s.DeviceInfo.Browser, s.DeviceInfo.OS,
		s.DeviceInfo.Platform, s.DeviceInfo.Device, s.DeviceInfo.IP,
		s.LastActiveAt, s.ExpiresAt, s.CreatedAt,
	)
	return scanSession(row)
}

// UpdateRefreshToken overwrites the stored refresh-token hash and bumps
// last_active_at. The old refresh token becomes unusable immediately since
// comparison is by hash equality.
func (r *PostgresRepository) UpdateRefreshToken(ctx context.Context, id, refreshTokenHash string, lastActiveAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET refresh_token_hash = $2, last_active_at = $3 WHERE id = $1`,
		id, refreshTokenHash, lastActiveAt,
	)
	return err
}

// RotateRefreshToken compare-and-swaps the stored refresh-token hash. Returns
// false when oldHash no longer matches, meaning a concurrent rotation or a
// revocation won; exactly one of N concurrent rotations of the same token succeeds.
func (r *PostgresRepository) RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, lastActiveAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET refresh_token_hash = $3, last_active_at = $4
		WHERE id = $1 AND refresh_token_hash = $2 AND is_active`,
		id, oldHash, newHash, lastActiveAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListActiveByUser returns the user's active, unexpired sessions sorted by
// last_active_at descending. Expired-but-unswept rows are filtered here;
// eviction is not a correctness dependency.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND is_active AND expires_at > $2
		ORDER BY last_active_at DESC`,
		userID, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountActiveByUser returns the number of active, unexpired sessions for the user.
func (r *PostgresRepository) CountActiveByUser(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM sessions
		WHERE user_id = $1 AND is_active AND expires_at > $2`,
		userID, now,
	).Scan(&n)
	return n, err
}

// CountActive returns the total number of active, unexpired sessions.
func (r *PostgresRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM sessions WHERE is_active AND expires_at > $1`, now).Scan(&n)
	return n, err
}

// Revoke deactivates the session matching both id and owner. Returns false
// when the session is absent, already inactive, or owned by another user;
// matching on user_id prevents cross-user revocation.
func (r *PostgresRepository) Revoke(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = FALSE
		WHERE id = $1 AND user_id = $2 AND is_active`,
		id, userID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeAllByUser deactivates all active sessions for the user, optionally
// excluding one (used by "logout all other devices"). Returns the number revoked.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID, exceptID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = FALSE
		WHERE user_id = $1 AND is_active AND ($2 = '' OR id <> $2)`,
		userID, exceptID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeactivateExpired deactivates sessions past their expires_at. Called by the
// janitor; readers filter on expiry independently.
func (r *PostgresRepository) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = FALSE
		WHERE is_active AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	s, err := scanSessionFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scanSessionRows(rows *sql.Rows) (*domain.Session, error) {
	return scanSessionFrom(rows)
}

func scanSessionFrom(sc rowScanner) (*domain.Session, error) {
	var s domain.Session
	err := sc.Scan(&s.ID, &s.UserID, &s.DeviceFingerprint, &s.DeviceInfo.Browser,
		&s.DeviceInfo.OS, &s.DeviceInfo.Platform, &s.DeviceInfo.Device, &s.DeviceInfo.IP,
		&s.RefreshTokenHash, &s.IsActive, &s.LastActiveAt, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
