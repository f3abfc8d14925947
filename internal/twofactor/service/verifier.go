// Package service implements second-factor enrollment and verification.
//
// Verification at login tries the TOTP code first and falls back to the
// backup-code set; a matching backup code is deleted in the same statement
// that matches it. Failed and rate-limited attempts are indistinguishable to
// the caller, both report an invalid code.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"credential-control-plane/internal/obs"
	"credential-control-plane/internal/security"
	"credential-control-plane/internal/twofactor"
	"credential-control-plane/internal/twofactor/repository"
	userrepo "credential-control-plane/internal/user/repository"
)

const backupCodeCount = 10

var (
	// ErrInvalidCode is returned when the submitted code matches neither
	// the TOTP secret nor a backup code during enrollment confirmation.
	ErrInvalidCode = errors.New("invalid two-factor code")
	// ErrNoPendingSecret is returned by Enable when GenerateSecret was
	// never called for the user.
	ErrNoPendingSecret = errors.New("no pending two-factor secret")
	// ErrNotFound is returned when the user does not exist.
	ErrNotFound = errors.New("user not found")
)

// Attempt pacing for VerifyLogin: a small burst, then one guess per two
// seconds per user. 6 digits at this pace is not brute-forceable within a
// code's validity window.
const (
	attemptInterval = 2 * time.Second
	attemptBurst    = 5
)

// Verifier manages TOTP enrollment and login-time second-factor checks.
type Verifier struct {
	users  userrepo.Repository
	codes  repository.Repository
	issuer string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	nowF func() time.Time
}

// NewVerifier returns a verifier that stores secrets on the user record and
// backup codes in the given repository. issuer names this service in
// provisioning URIs.
func NewVerifier(users userrepo.Repository, codes repository.Repository, issuer string) *Verifier {
	return &Verifier{
		users:    users,
		codes:    codes,
		issuer:   issuer,
		limiters: make(map[string]*rate.Limiter),
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// GenerateSecret creates and persists an unconfirmed secret for the user and
// returns it with its provisioning URI. Calling it again replaces the
// pending secret. It does not touch an already enabled enrollment; the
// secret only becomes active through Enable.
func (v *Verifier) GenerateSecret(ctx context.Context, userID string) (secret, uri string, err error) {
	user, err := v.users.GetByID(ctx, userID)
	if err != nil {
		return "", "", fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return "", "", ErrNotFound
	}
	secret, uri, err = twofactor.GenerateSecret(v.issuer, user.Email)
	if err != nil {
		return "", "", err
	}
	if err := v.users.SetTwoFactorSecret(ctx, userID, secret); err != nil {
		return "", "", fmt.Errorf("storing two-factor secret: %w", err)
	}
	return secret, uri, nil
}

// Enable confirms enrollment: the user proves possession of the secret by
// submitting a current code, after which the secret becomes active and a
// fresh set of backup codes is generated. The raw codes are returned exactly
// once; only hashes are stored.
func (v *Verifier) Enable(ctx context.Context, userID, code string) ([]string, error) {
	user, err := v.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if user.TwoFactorSecret == "" {
		return nil, ErrNoPendingSecret
	}
	if !twofactor.ValidateCode(code, user.TwoFactorSecret, v.nowF()) {
		return nil, ErrInvalidCode
	}
	if err := v.users.EnableTwoFactor(ctx, userID); err != nil {
		return nil, fmt.Errorf("enabling two-factor: %w", err)
	}

	raw := make([]string, 0, backupCodeCount)
	hashes := make([]string, 0, backupCodeCount)
	for len(raw) < backupCodeCount {
		c, err := security.NewBackupCode()
		if err != nil {
			return nil, fmt.Errorf("generating backup code: %w", err)
		}
		raw = append(raw, c)
		hashes = append(hashes, security.HashToken(c))
	}
	if err := v.codes.Replace(ctx, userID, hashes, v.nowF()); err != nil {
		return nil, fmt.Errorf("storing backup codes: %w", err)
	}
	return raw, nil
}

// VerifyLogin checks a second-factor code at login: the TOTP secret first,
// then the backup-code set. A matching backup code is consumed. Returns
// false for every failure, including pacing rejections, so the caller
// applies uniform invalid-code handling.
func (v *Verifier) VerifyLogin(ctx context.Context, userID, code string) (bool, error) {
	if !v.limiter(userID).Allow() {
		obs.RecordTwoFactorFailure()
		return false, nil
	}
	user, err := v.users.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("loading user: %w", err)
	}
	if user == nil || !user.TwoFactorEnabled {
		return false, nil
	}
	if twofactor.ValidateCode(code, user.TwoFactorSecret, v.nowF()) {
		return true, nil
	}
	ok, err := v.codes.Consume(ctx, userID, security.HashToken(code))
	if err != nil {
		return false, fmt.Errorf("consuming backup code: %w", err)
	}
	if !ok {
		obs.RecordTwoFactorFailure()
	}
	return ok, nil
}

// Disable clears the secret and the backup-code set.
func (v *Verifier) Disable(ctx context.Context, userID string) error {
	if err := v.users.DisableTwoFactor(ctx, userID); err != nil {
		return fmt.Errorf("disabling two-factor: %w", err)
	}
	if err := v.codes.DeleteForUser(ctx, userID); err != nil {
		return fmt.Errorf("clearing backup codes: %w", err)
	}
	return nil
}

// RemainingBackupCodes reports how many backup codes the user has left.
func (v *Verifier) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	return v.codes.CountForUser(ctx, userID)
}

func (v *Verifier) limiter(userID string) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, ok := v.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(attemptInterval), attemptBurst)
		v.limiters[userID] = l
	}
	return l
}
