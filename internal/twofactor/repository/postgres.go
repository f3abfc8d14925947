package repository

import (
	"context"
	"time"

	"credential-control-plane/internal/db"
)

// PostgresRepository persists backup codes over the given db handle, which
// may be a *sql.DB or an open transaction.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a backup-code repository that uses the given db for persistence.
func NewPostgresRepository(dbtx db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: dbtx}
}

// Replace clears the user's codes and inserts the new set. Run inside a
// transaction by callers that need the swap to be atomic.
func (r *PostgresRepository) Replace(ctx context.Context, userID string, codeHashes []string, createdAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, h := range codeHashes {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO backup_codes (user_id, code_hash, created_at)
			VALUES ($1, $2, $3)`,
			userID, h, createdAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Consume deletes the matching code in a single statement; the primary key
// on (user_id, code_hash) means at most one row can go.
func (r *PostgresRepository) Consume(ctx context.Context, userID, codeHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM backup_codes WHERE user_id = $1 AND code_hash = $2`,
		userID, codeHash,
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

// CountForUser returns how many codes the user has left.
func (r *PostgresRepository) CountForUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM backup_codes WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

// DeleteForUser removes the user's entire code set.
func (r *PostgresRepository) DeleteForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID)
	return err
}
