// Package repository provides persistence for action tokens.
package repository

import (
	"context"
	"time"

	"credential-control-plane/internal/actiontoken/domain"
)

// Repository defines storage operations for action tokens. Methods return
// (nil, nil) or (false, nil) for rows that do not match; errors are reserved
// for storage failures.
type Repository interface {
	// Create persists a new token row.
	Create(ctx context.Context, t *domain.ActionToken) error
	// InvalidateUnused marks every unused token of the given kind for the
	// user as used, so at most one live token per kind per user exists
	// after the next Create.
	InvalidateUnused(ctx context.Context, userID string, kind domain.Kind) error
	// Consume marks the token matching (tokenHash, kind) as used, provided
	// it is unused and unexpired, and returns it. Returns nil when no such
	// token exists. The check and the write are one statement.
	Consume(ctx context.Context, tokenHash string, kind domain.Kind, now time.Time) (*domain.ActionToken, error)
	// DeleteExpired removes tokens past their expiry. Returns the number removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
