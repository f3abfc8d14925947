// Package service implements the session store: atomic create-or-refresh per
// (user, device), refresh-token rotation, revocation, and active-session listing.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"credential-control-plane/internal/db"
	"credential-control-plane/internal/obs"
	"credential-control-plane/internal/security"
	"credential-control-plane/internal/session/domain"
	sessionrepo "credential-control-plane/internal/session/repository"
	userrepo "credential-control-plane/internal/user/repository"
)

// Sentinel errors for the session store; callers map them to transport responses.
var (
	// ErrInvalidOrRevoked is returned when a refresh token fails verification,
	// references a missing/inactive/expired session, or no longer matches the stored hash.
	ErrInvalidOrRevoked = errors.New("invalid or revoked refresh token")
	// ErrNotFound is returned by Revoke for an absent, inactive, or foreign session.
	ErrNotFound = errors.New("session not found")
)

// SessionCountWriter persists the recomputed active-session count on the user row.
type SessionCountWriter interface {
	SetActiveSessionCount(ctx context.Context, id string, n int) error
}

// Repos groups the repositories bound to one storage handle (connection or transaction).
type Repos struct {
	Sessions sessionrepo.Repository
	Users    SessionCountWriter
}

// Storage provides repositories and transactional execution. InTx must run fn
// inside one transaction with snapshot isolation and roll back on error.
type Storage interface {
	Repos() Repos
	InTx(ctx context.Context, fn func(Repos) error) error
}

// PgStorage implements Storage over Postgres.
type PgStorage struct {
	db *sql.DB
}

// NewPgStorage returns Storage backed by the given database.
func NewPgStorage(database *sql.DB) *PgStorage {
	return &PgStorage{db: database}
}

// Repos returns repositories bound to the connection pool.
func (p *PgStorage) Repos() Repos {
	return Repos{
		Sessions: sessionrepo.NewPostgresRepository(p.db),
		Users:    userrepo.NewPostgresRepository(p.db),
	}
}

// InTx runs fn within one REPEATABLE READ transaction, committing on success
// and rolling back on error. A timed-out transaction is rolled back by the
// driver, so partial writes are never observable.
func (p *PgStorage) InTx(ctx context.Context, fn func(Repos) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return err
	}
	repos := Repos{
		Sessions: sessionrepo.NewPostgresRepository(tx),
		Users:    userrepo.NewPostgresRepository(tx),
	}
	if err := fn(repos); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Store owns the session lifecycle. All cross-process coordination lives in
// the storage layer (the partial unique index); Store holds no locks.
type Store struct {
	storage    Storage
	tokens     *security.TokenProvider
	sessionTTL time.Duration
	nowF       func() time.Time
}

// NewStore returns a session store minting tokens with the given provider.
// Session lifetime is bound to the refresh-token lifetime.
func NewStore(storage Storage, tokens *security.TokenProvider) *Store {
	return &Store{
		storage:    storage,
		tokens:     tokens,
		sessionTTL: tokens.RefreshTTL(),
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrRefresh creates an active session for (userID, fingerprint) or
// refreshes the existing one in place, then mints a token pair bound to the
// persisted session id and stores the refresh token's hash. The upsert, the
// hash write, and the active-count recomputation run in one transaction.
//
// If the upsert loses its race to a concurrent login (unique violation or
// serialization failure), the transaction is retried exactly once; the row
// now exists, so the retry updates it. A conflict surviving the retry is a
// design-invariant violation and surfaces as storage unavailability.
func (s *Store) CreateOrRefresh(ctx context.Context, userID, fingerprint string, info domain.DeviceInfo) (*domain.Session, *security.TokenPair, error) {
	var (
		sess *domain.Session
		pair *security.TokenPair
	)
	attempt := func() error {
		return s.storage.InTx(ctx, func(r Repos) error {
			now := s.nowF()
			persisted, err := r.Sessions.UpsertActive(ctx, &domain.Session{
				ID:                uuid.New().String(),
				UserID:            userID,
				DeviceFingerprint: fingerprint,
				DeviceInfo:        info,
				IsActive:          true,
				LastActiveAt:      now,
				ExpiresAt:         now.Add(s.sessionTTL),
				CreatedAt:         now,
			})
			if err != nil {
				return err
			}
			p, err := s.tokens.IssuePair(userID, persisted.ID)
			if err != nil {
				return err
			}
			hash := security.HashToken(p.RefreshToken)
			if err := r.Sessions.UpdateRefreshToken(ctx, persisted.ID, hash, now); err != nil {
				return err
			}
			count, err := r.Sessions.CountActiveByUser(ctx, userID, now)
			if err != nil {
				return err
			}
			if err := r.Users.SetActiveSessionCount(ctx, userID, count); err != nil {
				return err
			}
			persisted.RefreshTokenHash = hash
			sess, pair = persisted, p
			return nil
		})
	}

	err := attempt()
	if err != nil && isUpsertRace(err) {
		err = attempt()
	}
	if err != nil {
		if isUpsertRace(err) {
			return nil, nil, fmt.Errorf("%w: create-or-refresh conflict persisted after retry: %v", db.ErrUnavailable, err)
		}
		return nil, nil, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return sess, pair, nil
}

// RotateOnRefresh validates a presented refresh token against its session and
// rotates it: a new pair is minted and the stored hash is compare-and-swapped,
// so the presented token becomes unusable immediately and exactly one of N
// concurrent rotations succeeds.
func (s *Store) RotateOnRefresh(ctx context.Context, rawRefreshToken string) (*security.TokenPair, error) {
	info, err := s.tokens.VerifyRefresh(rawRefreshToken)
	if err != nil {
		return nil, ErrInvalidOrRevoked
	}
	r := s.storage.Repos()
	sess, err := r.Sessions.GetByID(ctx, info.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	now := s.nowF()
	if sess == nil || !sess.Live(now) {
		return nil, ErrInvalidOrRevoked
	}
	if !security.TokenHashEqual(rawRefreshToken, sess.RefreshTokenHash) {
		return nil, ErrInvalidOrRevoked
	}
	pair, err := s.tokens.IssuePair(sess.UserID, sess.ID)
	if err != nil {
		return nil, err
	}
	ok, err := r.Sessions.RotateRefreshToken(ctx, sess.ID, sess.RefreshTokenHash, security.HashToken(pair.RefreshToken), now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	if !ok {
		return nil, ErrInvalidOrRevoked
	}
	obs.RecordTokenRotation()
	return pair, nil
}

// Revoke deactivates the session matching both id and owner. Returns
// ErrNotFound when the session is absent, already inactive, or owned by
// another user.
func (s *Store) Revoke(ctx context.Context, sessionID, userID string) error {
	ok, err := s.storage.Repos().Sessions.Revoke(ctx, sessionID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	obs.RecordSessionsRevoked(1)
	return nil
}

// RevokeAll deactivates every active session for the user, optionally keeping
// exceptSessionID (pass "" to revoke everything). Returns the number revoked.
func (s *Store) RevokeAll(ctx context.Context, userID, exceptSessionID string) (int, error) {
	n, err := s.storage.Repos().Sessions.RevokeAllByUser(ctx, userID, exceptSessionID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	obs.RecordSessionsRevoked(n)
	return n, nil
}

// ListActive returns the user's active, unexpired sessions sorted by
// last_active_at descending. Refresh-token hashes are never exposed.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	sessions, err := s.storage.Repos().Sessions.ListActiveByUser(ctx, userID, s.nowF())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	for _, sess := range sessions {
		sess.RefreshTokenHash = ""
	}
	return sessions, nil
}

// IsActive reports whether the session exists, is active, and is unexpired.
// Consumed by the caller's authorization layer for access-token cross-checks.
func (s *Store) IsActive(ctx context.Context, sessionID string) (bool, error) {
	sess, err := s.storage.Repos().Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return sess != nil && sess.Live(s.nowF()), nil
}

// isUpsertRace reports whether err is a unique violation or serialization
// failure, the two ways a concurrent login from the same device can surface.
func isUpsertRace(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation || pgErr.Code == pgerrcode.SerializationFailure
}
