package security

import (
	"crypto/rand"
	"encoding/base64"
)

const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewOpaqueToken returns a URL-safe random token with 256 bits of entropy.
// Used as the raw value for email verification and password reset links;
// only its hash is stored.
func NewOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewBackupCode returns an 8-character alphanumeric backup code.
// The alphabet omits easily confused characters (0/O, 1/I).
func NewBackupCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	code := make([]byte, 8)
	for i := range b {
		code[i] = backupCodeAlphabet[int(b[i])%len(backupCodeAlphabet)]
	}
	return string(code), nil
}
