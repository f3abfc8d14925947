// Package activity defines the typed activity events the lifecycle services
// emit and the fire-and-forget sink they flow into. Events are best effort;
// no lifecycle operation depends on a sink write for correctness.
//
// Each event kind is a closed struct rather than an open key-value bag, so
// the set of fields per kind is fixed at compile time.
package activity

import "time"

// Event is implemented by every activity event kind.
type Event interface {
	// Kind returns a stable machine-readable event name.
	Kind() string
}

type UserRegistered struct {
	UserID string    `json:"user_id"`
	Email  string    `json:"email"`
	At     time.Time `json:"at"`
}

func (UserRegistered) Kind() string { return "user.registered" }

type LoginSucceeded struct {
	UserID            string    `json:"user_id"`
	SessionID         string    `json:"session_id"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	IP                string    `json:"ip,omitempty"`
	At                time.Time `json:"at"`
}

func (LoginSucceeded) Kind() string { return "login.succeeded" }

type LoginFailed struct {
	Email  string    `json:"email"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

func (LoginFailed) Kind() string { return "login.failed" }

type TwoFactorChallenged struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

func (TwoFactorChallenged) Kind() string { return "login.two_factor_challenged" }

type EmailVerified struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

func (EmailVerified) Kind() string { return "email.verified" }

type PasswordResetRequested struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

func (PasswordResetRequested) Kind() string { return "password.reset_requested" }

type PasswordResetCompleted struct {
	UserID          string    `json:"user_id"`
	SessionsRevoked int       `json:"sessions_revoked"`
	At              time.Time `json:"at"`
}

func (PasswordResetCompleted) Kind() string { return "password.reset_completed" }

type PasswordChanged struct {
	UserID          string    `json:"user_id"`
	SessionsRevoked int       `json:"sessions_revoked"`
	At              time.Time `json:"at"`
}

func (PasswordChanged) Kind() string { return "password.changed" }

type SessionRevoked struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

func (SessionRevoked) Kind() string { return "session.revoked" }

type AllSessionsRevoked struct {
	UserID string    `json:"user_id"`
	Count  int       `json:"count"`
	At     time.Time `json:"at"`
}

func (AllSessionsRevoked) Kind() string { return "session.revoked_all" }
