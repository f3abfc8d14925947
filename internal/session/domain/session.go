package domain

import "time"

// DeviceInfo describes the device a session was created from.
// Descriptive only; deduplication uses the fingerprint, not these fields.
type DeviceInfo struct {
	Browser  string
	OS       string
	Platform string
	Device   string
	IP       string
}

// Session represents one active login from one device. For a given
// (UserID, DeviceFingerprint) at most one row is active at a time;
// the storage layer enforces this with a partial unique index.
type Session struct {
	ID                string
	UserID            string
	DeviceFingerprint string // opaque hash of UA+IP supplied by the caller
	DeviceInfo        DeviceInfo
	RefreshTokenHash  string // SHA-256 of the current refresh token; rotated on every refresh
	IsActive          bool
	LastActiveAt      time.Time
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

// Live reports whether the session is active and unexpired at the given instant.
// Expiry eviction is a garbage-collection concern; readers must filter independently.
func (s *Session) Live(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}
