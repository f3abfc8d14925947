// Package twofactor wraps TOTP secret generation and code validation with
// the fixed parameters the rest of the system assumes: SHA-1, 6 digits,
// 30-second steps, and a 4-step tolerance window either side of now.
package twofactor

import (
	"encoding/base32"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP time step in seconds.
	Period = 30
	// Skew is the number of steps accepted either side of the current one.
	Skew = 4
)

var validateOpts = totp.ValidateOpts{
	Period:    Period,
	Skew:      Skew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateSecret creates a fresh shared secret and the provisioning URI that
// embeds it. Both come from the same key, so the authenticator app and the
// server can never disagree on parameters.
func GenerateSecret(issuer, accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      Period,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generating totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// ProvisioningURI rebuilds the otpauth URI for an already stored secret, for
// re-display during enrollment.
func ProvisioningURI(secret, issuer, accountName string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("decoding stored totp secret: %w", err)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      Period,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("rebuilding provisioning uri: %w", err)
	}
	return key.URL(), nil
}

// ValidateCode reports whether code is valid for secret at the given time,
// within the tolerance window.
func ValidateCode(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, validateOpts)
	return err == nil && ok
}

// GenerateCode computes the code for secret at the given time. Used by
// enrollment tests and nowhere on a hot path.
func GenerateCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, validateOpts)
}
