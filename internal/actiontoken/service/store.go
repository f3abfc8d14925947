// Package service implements issuing and consuming single-use action tokens.
//
// Issuing invalidates the user's outstanding tokens of the same kind inside
// the same transaction that creates the new one, so at most one live token
// per kind per user exists. Consuming is a single conditional update in the
// repository, so a token can be consumed at most once no matter how many
// requests race on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"credential-control-plane/internal/actiontoken/domain"
	"credential-control-plane/internal/actiontoken/repository"
	"credential-control-plane/internal/security"
)

// ErrInvalidOrExpired is returned by Consume for any token that cannot be
// used: unknown, already consumed, expired, or of the wrong kind. Callers
// cannot tell these apart.
var ErrInvalidOrExpired = errors.New("action token invalid or expired")

// Storage provides the token repository and transactional execution.
type Storage interface {
	Repo() repository.Repository
	InTx(ctx context.Context, fn func(repository.Repository) error) error
}

// Store issues and consumes action tokens.
type Store struct {
	storage Storage
	ttls    map[domain.Kind]time.Duration

	nowF func() time.Time
}

// NewStore returns a token store with the given per-kind lifetimes.
func NewStore(storage Storage, verificationTTL, resetTTL time.Duration) *Store {
	return &Store{
		storage: storage,
		ttls: map[domain.Kind]time.Duration{
			domain.KindEmailVerification: verificationTTL,
			domain.KindPasswordReset:     resetTTL,
		},
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Issue mints a fresh token for the user and kind, invalidating any earlier
// unused tokens of that kind. The returned raw value is shown to the caller
// exactly once; only its hash is stored.
func (s *Store) Issue(ctx context.Context, userID string, kind domain.Kind) (string, *domain.ActionToken, error) {
	if !kind.Valid() {
		return "", nil, fmt.Errorf("unknown action token kind %q", kind)
	}
	raw, err := security.NewOpaqueToken()
	if err != nil {
		return "", nil, fmt.Errorf("generating action token: %w", err)
	}

	now := s.nowF()
	token := &domain.ActionToken{
		ID:        ulid.Make().String(),
		UserID:    userID,
		TokenHash: security.HashToken(raw),
		Kind:      kind,
		ExpiresAt: now.Add(s.ttls[kind]),
		CreatedAt: now,
	}
	err = s.storage.InTx(ctx, func(repo repository.Repository) error {
		if err := repo.InvalidateUnused(ctx, userID, kind); err != nil {
			return err
		}
		return repo.Create(ctx, token)
	})
	if err != nil {
		return "", nil, fmt.Errorf("issuing action token: %w", err)
	}
	return raw, token, nil
}

// Consume redeems a raw token of the given kind. It succeeds at most once
// per token; every other outcome is ErrInvalidOrExpired.
func (s *Store) Consume(ctx context.Context, raw string, kind domain.Kind) (*domain.ActionToken, error) {
	token, err := s.storage.Repo().Consume(ctx, security.HashToken(raw), kind, s.nowF())
	if err != nil {
		return nil, fmt.Errorf("consuming action token: %w", err)
	}
	if token == nil {
		return nil, ErrInvalidOrExpired
	}
	return token, nil
}
