package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, has a bad signature,
	// or was signed for a different kind (e.g. a refresh token presented as access).
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token's signature is valid but its exp is in the past.
	ErrTokenExpired = errors.New("token expired")
)

// SessionClaims holds the JWT claims shared by access and refresh tokens:
// the user (sub), the session the token is bound to, and issuance time.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// TokenInfo is the verified content of an access or refresh token.
type TokenInfo struct {
	UserID    string
	SessionID string
	IssuedAt  time.Time
}

// TokenPair is an access/refresh token pair minted for one session.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenProvider issues and validates JWT access and refresh tokens using RS256 or ES256.
// Access and refresh tokens are signed with distinct key pairs so one kind can never
// be replayed as the other. The keys are immutable after construction.
type TokenProvider struct {
	accessKey  crypto.Signer
	accessPub  crypto.PublicKey
	refreshKey crypto.Signer
	refreshPub crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider signing access tokens with accessKey and
// refresh tokens with refreshKey (RSA or ECDSA). issuer and audience are set on
// claims and validated on verification.
func NewTokenProvider(accessKey crypto.Signer, accessPub crypto.PublicKey, refreshKey crypto.Signer, refreshPub crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		accessKey:  accessKey,
		accessPub:  accessPub,
		refreshKey: refreshKey,
		refreshPub: refreshPub,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT bound to the given session.
// Returns the token string and its expiration time.
func (p *TokenProvider) IssueAccess(userID, sessionID string) (string, time.Time, error) {
	return p.issue(p.accessKey, userID, sessionID, p.accessTTL)
}

// IssueRefresh issues a long-lived refresh JWT bound to the given session.
// Callers must store only its hash on the session row.
func (p *TokenProvider) IssueRefresh(userID, sessionID string) (string, time.Time, error) {
	return p.issue(p.refreshKey, userID, sessionID, p.refreshTTL)
}

// IssuePair mints a matching access/refresh pair for one session.
func (p *TokenProvider) IssuePair(userID, sessionID string) (*TokenPair, error) {
	access, accessExp, err := p.IssueAccess(userID, sessionID)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := p.IssueRefresh(userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (p *TokenProvider) issue(key crypto.Signer, userID, sessionID string, ttl time.Duration) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
	}
	var method jwt.SigningMethod
	switch key.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	signed, err := t.SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccess parses and validates an access token (signature, exp, iss, aud).
func (p *TokenProvider) VerifyAccess(tokenString string) (*TokenInfo, error) {
	return p.verify(tokenString, p.accessPub)
}

// VerifyRefresh parses and validates a refresh token (signature, exp, iss, aud).
func (p *TokenProvider) VerifyRefresh(tokenString string) (*TokenInfo, error) {
	return p.verify(tokenString, p.refreshPub)
}

func (p *TokenProvider) verify(tokenString string, pub crypto.PublicKey) (*TokenInfo, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return pub, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return pub, nil
		}
		return nil, ErrInvalidToken
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer {
		return nil, ErrInvalidToken
	}
	audOk := false
	for _, a := range claims.Audience {
		if a == p.audience {
			audOk = true
			break
		}
	}
	if !audOk {
		return nil, ErrInvalidToken
	}
	info := &TokenInfo{UserID: claims.Subject, SessionID: claims.SessionID}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	return info, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
