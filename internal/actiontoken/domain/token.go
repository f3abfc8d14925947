// Package domain defines the action token entity: a short-lived, single-use
// credential mailed to the user to prove control of an email address or to
// authorize a password reset.
package domain

import "time"

// Kind discriminates what consuming a token authorizes. A token issued for
// one kind can never be consumed as another.
type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindPasswordReset     Kind = "password_reset"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindEmailVerification || k == KindPasswordReset
}

// ActionToken is the stored form of an issued token. Only the SHA-256 hash
// of the raw value is persisted; the raw value exists solely in the email
// sent to the user.
type ActionToken struct {
	ID        string
	UserID    string
	TokenHash string
	Kind      Kind
	IsUsed    bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Usable reports whether the token can still be consumed at the given time.
func (t *ActionToken) Usable(now time.Time) bool {
	return !t.IsUsed && t.ExpiresAt.After(now)
}
