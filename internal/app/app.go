// Package app assembles the lifecycle services from configuration. The
// transport layer (HTTP, gRPC, whatever embeds this module) constructs an
// App once at startup and calls into its services.
package app

import (
	"database/sql"
	"fmt"

	actionservice "credential-control-plane/internal/actiontoken/service"
	"credential-control-plane/internal/activity"
	"credential-control-plane/internal/config"
	"credential-control-plane/internal/db"
	identityservice "credential-control-plane/internal/identity/service"
	"credential-control-plane/internal/security"
	sessionservice "credential-control-plane/internal/session/service"
	twofactorrepo "credential-control-plane/internal/twofactor/repository"
	twofactorservice "credential-control-plane/internal/twofactor/service"
	userrepo "credential-control-plane/internal/user/repository"
)

// App is the wired service graph.
type App struct {
	DB        *sql.DB
	Tokens    *security.TokenProvider
	Users     userrepo.Repository
	Sessions  *sessionservice.Store
	TwoFactor *twofactorservice.Verifier
	Identity  *identityservice.Service
}

// New opens the database and wires every service from cfg. mailer delivers
// verification and reset emails; sink may be nil to disable activity events.
func New(cfg *config.Config, mailer identityservice.Mailer, sink activity.Sink) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("app: DATABASE_URL is required")
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: opening database: %w", err)
	}

	tokens, err := tokenProvider(cfg)
	if err != nil {
		database.Close()
		return nil, err
	}

	users := userrepo.NewPostgresRepository(database)
	sessions := sessionservice.NewStore(sessionservice.NewPgStorage(database), tokens)
	actionTokens := actionservice.NewStore(
		actionservice.NewPgStorage(database), cfg.VerificationTTL(), cfg.ResetTTL())
	verifier := twofactorservice.NewVerifier(
		users, twofactorrepo.NewPostgresRepository(database), cfg.TOTPIssuer)
	hasher := security.NewHasher(cfg.BcryptCost)
	identity := identityservice.New(users, sessions, actionTokens, verifier, hasher, mailer, sink)

	return &App{
		DB:        database,
		Tokens:    tokens,
		Users:     users,
		Sessions:  sessions,
		TwoFactor: verifier,
		Identity:  identity,
	}, nil
}

// Close releases the database handle.
func (a *App) Close() error {
	return a.DB.Close()
}

func tokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	accessKey, err := security.ParsePrivateKey(cfg.AccessPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("app: JWT_ACCESS_PRIVATE_KEY: %w", err)
	}
	accessPub, err := security.ParsePublicKey(cfg.AccessPublicKey)
	if err != nil {
		return nil, fmt.Errorf("app: JWT_ACCESS_PUBLIC_KEY: %w", err)
	}
	refreshKey, err := security.ParsePrivateKey(cfg.RefreshPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("app: JWT_REFRESH_PRIVATE_KEY: %w", err)
	}
	refreshPub, err := security.ParsePublicKey(cfg.RefreshPublicKey)
	if err != nil {
		return nil, fmt.Errorf("app: JWT_REFRESH_PUBLIC_KEY: %w", err)
	}
	return security.NewTokenProvider(
		accessKey, accessPub, refreshKey, refreshPub,
		cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL(),
	), nil
}
