// Package service orchestrates the credential lifecycle: registration with
// email verification, password login optionally gated by a second factor,
// password reset with mass session invalidation, and logout.
//
// The service owns no storage of its own. It composes the user repository,
// the session store, the action token store, and the two-factor verifier,
// and maps their failures onto a small set of caller-facing error kinds.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	actiondomain "credential-control-plane/internal/actiontoken/domain"
	actionservice "credential-control-plane/internal/actiontoken/service"
	"credential-control-plane/internal/activity"
	"credential-control-plane/internal/db"
	"credential-control-plane/internal/obs"
	"credential-control-plane/internal/security"
	sessiondomain "credential-control-plane/internal/session/domain"
	sessionservice "credential-control-plane/internal/session/service"
	userdomain "credential-control-plane/internal/user/domain"
	userrepo "credential-control-plane/internal/user/repository"
)

// Mailer delivers lifecycle emails. The raw token appears only in the mail;
// delivery transport is outside this service.
type Mailer interface {
	SendVerification(ctx context.Context, email, rawToken string) error
	SendPasswordReset(ctx context.Context, email, rawToken string) error
}

// SessionStore is the session lifecycle surface the service composes.
// Implemented by the session service's Store.
type SessionStore interface {
	CreateOrRefresh(ctx context.Context, userID, fingerprint string, info sessiondomain.DeviceInfo) (*sessiondomain.Session, *security.TokenPair, error)
	RotateOnRefresh(ctx context.Context, rawRefreshToken string) (*security.TokenPair, error)
	Revoke(ctx context.Context, sessionID, userID string) error
	RevokeAll(ctx context.Context, userID, exceptSessionID string) (int, error)
	ListActive(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	IsActive(ctx context.Context, sessionID string) (bool, error)
}

// ActionTokenStore issues and consumes single-use email tokens. Implemented
// by the action token service's Store.
type ActionTokenStore interface {
	Issue(ctx context.Context, userID string, kind actiondomain.Kind) (string, *actiondomain.ActionToken, error)
	Consume(ctx context.Context, raw string, kind actiondomain.Kind) (*actiondomain.ActionToken, error)
}

// TwoFactorVerifier checks second-factor codes at login. Implemented by the
// two-factor service's Verifier.
type TwoFactorVerifier interface {
	VerifyLogin(ctx context.Context, userID, code string) (bool, error)
}

// Authenticated is the outcome of a fully completed login.
type Authenticated struct {
	User    *userdomain.User
	Session *sessiondomain.Session
	Tokens  *security.TokenPair
}

// TwoFactorRequired tells the caller to re-present the user's second factor
// via CompleteTwoFactor. It is a stateless marker, not a stored pending
// session; it grants nothing by itself.
type TwoFactorRequired struct {
	UserID string
}

// Device is the caller-derived device context for a login.
type Device struct {
	Fingerprint string
	Info        sessiondomain.DeviceInfo
}

// Service implements the credential lifecycle operations.
type Service struct {
	users     userrepo.Repository
	sessions  SessionStore
	tokens    ActionTokenStore
	twoFactor TwoFactorVerifier
	hasher    *security.Hasher
	mailer    Mailer
	sink      activity.Sink

	nowF func() time.Time
}

// New wires the lifecycle service. sink may be nil to disable activity
// events; mailer must not be nil.
func New(
	users userrepo.Repository,
	sessions SessionStore,
	tokens ActionTokenStore,
	twoFactor TwoFactorVerifier,
	hasher *security.Hasher,
	mailer Mailer,
	sink activity.Sink,
) *Service {
	return &Service{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		twoFactor: twoFactor,
		hasher:    hasher,
		mailer:    mailer,
		sink:      sink,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an unverified account and mails a verification token.
// Email delivery is best effort; the account exists either way and the
// token can be reissued via ResendVerification.
func (s *Service) Register(ctx context.Context, email, password string) (*userdomain.User, error) {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("looking up email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	now := s.nowF()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	if err := s.sendActionMail(ctx, user, actiondomain.KindEmailVerification); err != nil {
		log.Printf("identity: verification mail for %s: %v", user.ID, err)
	}
	activity.EmitAsync(s.sink, ctx, activity.UserRegistered{UserID: user.ID, Email: user.Email, At: now})
	return user, nil
}

// Login checks the password and either completes the session or, when a
// second factor is enrolled, stops and returns a TwoFactorRequired marker.
// Unknown email and wrong password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string, device Device) (*Authenticated, *TwoFactorRequired, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up email: %w", err)
	}
	if user == nil || s.hasher.Compare(user.PasswordHash, []byte(password)) != nil {
		obs.RecordLogin("failure")
		activity.EmitAsync(s.sink, ctx, activity.LoginFailed{Email: email, Reason: "invalid credentials", At: s.nowF()})
		return nil, nil, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		obs.RecordLogin("failure")
		return nil, nil, ErrEmailNotVerified
	}
	if user.TwoFactorEnabled {
		activity.EmitAsync(s.sink, ctx, activity.TwoFactorChallenged{UserID: user.ID, At: s.nowF()})
		return nil, &TwoFactorRequired{UserID: user.ID}, nil
	}

	auth, err := s.finishLogin(ctx, user, device)
	if err != nil {
		return nil, nil, err
	}
	return auth, nil, nil
}

// CompleteTwoFactor finishes a login that Login paused for a second factor.
func (s *Service) CompleteTwoFactor(ctx context.Context, userID, code string, device Device) (*Authenticated, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	ok, err := s.twoFactor.VerifyLogin(ctx, userID, code)
	if err != nil {
		return nil, fmt.Errorf("verifying second factor: %w", err)
	}
	if !ok {
		obs.RecordLogin("failure")
		return nil, ErrInvalidTwoFactorCode
	}
	return s.finishLogin(ctx, user, device)
}

func (s *Service) finishLogin(ctx context.Context, user *userdomain.User, device Device) (*Authenticated, error) {
	sess, pair, err := s.sessions.CreateOrRefresh(ctx, user.ID, device.Fingerprint, device.Info)
	if err != nil {
		if errors.Is(err, db.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return nil, fmt.Errorf("creating session: %w", err)
	}
	obs.RecordLogin("success")
	activity.EmitAsync(s.sink, ctx, activity.LoginSucceeded{
		UserID:            user.ID,
		SessionID:         sess.ID,
		DeviceFingerprint: sess.DeviceFingerprint,
		IP:                device.Info.IP,
		At:                s.nowF(),
	})
	return &Authenticated{User: user, Session: sess, Tokens: pair}, nil
}

// RefreshTokens rotates a refresh token into a new pair.
func (s *Service) RefreshTokens(ctx context.Context, rawRefreshToken string) (*security.TokenPair, error) {
	pair, err := s.sessions.RotateOnRefresh(ctx, rawRefreshToken)
	if err != nil {
		if errors.Is(err, sessionservice.ErrInvalidOrRevoked) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}
	return pair, nil
}

// VerifyEmail consumes a verification token and marks the address verified.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	token, err := s.consume(ctx, rawToken, actiondomain.KindEmailVerification)
	if err != nil {
		return err
	}
	if err := s.users.SetEmailVerified(ctx, token.UserID); err != nil {
		return fmt.Errorf("marking email verified: %w", err)
	}
	activity.EmitAsync(s.sink, ctx, activity.EmailVerified{UserID: token.UserID, At: s.nowF()})
	return nil
}

// ResendVerification reissues a verification token. The response is
// identical whether or not the account exists or is already verified, so
// the endpoint cannot be used to probe for accounts.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("looking up email: %w", err)
	}
	if user == nil || user.EmailVerified {
		return nil
	}
	return s.sendActionMail(ctx, user, actiondomain.KindEmailVerification)
}

// ForgotPassword issues a password reset token. Success-shaped regardless
// of account existence, same as ResendVerification.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("looking up email: %w", err)
	}
	if user == nil {
		return nil
	}
	if err := s.sendActionMail(ctx, user, actiondomain.KindPasswordReset); err != nil {
		return err
	}
	activity.EmitAsync(s.sink, ctx, activity.PasswordResetRequested{UserID: user.ID, At: s.nowF()})
	return nil
}

// ResetPassword consumes a reset token, stores the new password, and
// revokes every session the user has, including the one that requested the
// reset. Earlier-issued access tokens die with the password change stamp.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	token, err := s.consume(ctx, rawToken, actiondomain.KindPasswordReset)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	now := s.nowF()
	if err := s.users.UpdatePassword(ctx, token.UserID, hash, now); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	revoked, err := s.sessions.RevokeAll(ctx, token.UserID, "")
	if err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	activity.EmitAsync(s.sink, ctx, activity.PasswordResetCompleted{UserID: token.UserID, SessionsRevoked: revoked, At: now})
	return nil
}

// ChangePassword is the authenticated companion to ResetPassword: the user
// proves the current password, and every other session is revoked while the
// one performing the change stays alive.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, keepSessionID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	if user == nil || s.hasher.Compare(user.PasswordHash, []byte(currentPassword)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	now := s.nowF()
	if err := s.users.UpdatePassword(ctx, userID, hash, now); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	revoked, err := s.sessions.RevokeAll(ctx, userID, keepSessionID)
	if err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	activity.EmitAsync(s.sink, ctx, activity.PasswordChanged{UserID: userID, SessionsRevoked: revoked, At: now})
	return nil
}

// Logout revokes one session. Absent, already revoked, and foreign sessions
// all produce ErrSessionRevoked.
func (s *Service) Logout(ctx context.Context, sessionID, userID string) error {
	if err := s.sessions.Revoke(ctx, sessionID, userID); err != nil {
		if errors.Is(err, sessionservice.ErrNotFound) {
			return ErrSessionRevoked
		}
		return fmt.Errorf("revoking session: %w", err)
	}
	activity.EmitAsync(s.sink, ctx, activity.SessionRevoked{UserID: userID, SessionID: sessionID, At: s.nowF()})
	return nil
}

// LogoutAll revokes every session the user has and returns how many went.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	revoked, err := s.sessions.RevokeAll(ctx, userID, "")
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w", err)
	}
	activity.EmitAsync(s.sink, ctx, activity.AllSessionsRevoked{UserID: userID, Count: revoked, At: s.nowF()})
	return revoked, nil
}

// ListSessions returns the user's active sessions for display.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListActive(ctx, userID)
}

// HasPasswordChangedAfter reports whether the user's password changed
// strictly after the given instant. The caller's authorization layer uses
// it to reject access tokens issued before a password change.
func (s *Service) HasPasswordChangedAfter(ctx context.Context, userID string, at time.Time) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return true, nil
	}
	return user.PasswordChangedAfter(at), nil
}

// IsSessionActive reports whether the session is active and unexpired. The
// second required external check for the caller's authorization layer.
func (s *Service) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	return s.sessions.IsActive(ctx, sessionID)
}

func (s *Service) consume(ctx context.Context, rawToken string, kind actiondomain.Kind) (*actiondomain.ActionToken, error) {
	token, err := s.tokens.Consume(ctx, rawToken, kind)
	if err != nil {
		if errors.Is(err, actionservice.ErrInvalidOrExpired) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("consuming token: %w", err)
	}
	return token, nil
}

func (s *Service) sendActionMail(ctx context.Context, user *userdomain.User, kind actiondomain.Kind) error {
	raw, _, err := s.tokens.Issue(ctx, user.ID, kind)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	switch kind {
	case actiondomain.KindEmailVerification:
		err = s.mailer.SendVerification(ctx, user.Email, raw)
	case actiondomain.KindPasswordReset:
		err = s.mailer.SendPasswordReset(ctx, user.Email, raw)
	}
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}
