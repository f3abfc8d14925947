// Package repository provides persistence for two-factor backup codes.
// Only code hashes are stored; consumption is deletion, so a consumed code
// can never match again.
package repository

import (
	"context"
	"time"
)

// Repository defines storage operations for backup codes.
type Repository interface {
	// Replace swaps the user's full backup-code set for the given hashes.
	Replace(ctx context.Context, userID string, codeHashes []string, createdAt time.Time) error
	// Consume deletes the code matching (userID, codeHash) and reports
	// whether a row was deleted. The match and the delete are one
	// statement, so one code admits at most one login.
	Consume(ctx context.Context, userID, codeHash string) (bool, error)
	// CountForUser returns the number of unused codes remaining.
	CountForUser(ctx context.Context, userID string) (int, error)
	// DeleteForUser removes all of the user's codes.
	DeleteForUser(ctx context.Context, userID string) error
}
