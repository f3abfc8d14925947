package repository

import (
	"context"
	"time"

	"credential-control-plane/internal/session/domain"
)

// Repository defines persistence for sessions.
//
// UpsertActive must be a single atomic conditional write against the
// partial unique index on (user_id, device_fingerprint) WHERE is_active,
// never a read-then-write, so concurrent logins from the same device
// serialize in the storage layer.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	UpsertActive(ctx context.Context, s *domain.Session) (*domain.Session, error)
	UpdateRefreshToken(ctx context.Context, id, refreshTokenHash string, lastActiveAt time.Time) error
	RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, lastActiveAt time.Time) (bool, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	CountActiveByUser(ctx context.Context, userID string, now time.Time) (int, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
	Revoke(ctx context.Context, id, userID string) (bool, error)
	RevokeAllByUser(ctx context.Context, userID, exceptID string) (int, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
}
