package service

import (
	"errors"

	"credential-control-plane/internal/db"
)

// Error kinds surfaced by the lifecycle service. Callers branch on these
// with errors.Is and show users the stable messages from UserMessage; the
// wrapped detail is for logs only.
var (
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified rejects logins before the address is confirmed.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrEmailTaken rejects duplicate registrations.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidOrExpiredToken covers action tokens and refresh tokens that
	// are unknown, tampered, consumed, superseded, or past expiry.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrSessionRevoked covers revoking a session that is absent, already
	// inactive, or owned by someone else. One error for all three.
	ErrSessionRevoked = errors.New("session revoked or not found")
	// ErrInvalidTwoFactorCode covers wrong TOTP codes, spent backup codes,
	// and paced-out attempts.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrStorageUnavailable is fatal for the request and worth alerting on.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// UserMessage maps an error to a stable string safe to show directly to the
// user. Messages never reveal whether an account exists.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Incorrect email or password."
	case errors.Is(err, ErrEmailNotVerified):
		return "Please verify your email address before logging in."
	case errors.Is(err, ErrEmailTaken):
		return "This email address cannot be used."
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return "This link is invalid or has expired."
	case errors.Is(err, ErrSessionRevoked):
		return "This session is no longer active."
	case errors.Is(err, ErrInvalidTwoFactorCode):
		return "Invalid two-factor code."
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, db.ErrUnavailable):
		return "Service temporarily unavailable. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
