package domain

import (
	"errors"
	"time"
)

// User is the credential owner: password hash, verification state, and
// second-factor enrollment. TwoFactorSecret is set while enrollment is
// pending or enabled; it must be present whenever TwoFactorEnabled is true.
type User struct {
	ID                 string
	Email              string
	PasswordHash       string
	PasswordChangedAt  *time.Time // nil until the password is first changed
	EmailVerified      bool
	TwoFactorEnabled   bool
	TwoFactorSecret    string // empty unless enabled or mid-setup
	ActiveSessionCount int    // recomputed on create-or-refresh; observability only
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.TwoFactorEnabled && u.TwoFactorSecret == "" {
		return errors.New("two-factor secret is required when two-factor is enabled")
	}
	return nil
}

// PasswordChangedAfter reports whether the password was changed strictly
// after the given instant. Access tokens issued before a password change
// must be treated as invalid by the caller's authorization layer.
func (u *User) PasswordChangedAfter(at time.Time) bool {
	return u.PasswordChangedAt != nil && u.PasswordChangedAt.After(at)
}
