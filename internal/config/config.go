// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// AccessPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; signs access tokens.
	AccessPrivateKey string `mapstructure:"JWT_ACCESS_PRIVATE_KEY"`
	// AccessPublicKey is the PEM-encoded public key or path to file; verifies access tokens.
	AccessPublicKey string `mapstructure:"JWT_ACCESS_PUBLIC_KEY"`
	// RefreshPrivateKey is the PEM-encoded private key or path to file; signs refresh tokens.
	// Must be a different key than AccessPrivateKey so a refresh token never passes access verification.
	RefreshPrivateKey string `mapstructure:"JWT_REFRESH_PRIVATE_KEY"`
	// RefreshPublicKey is the PEM-encoded public key or path to file; verifies refresh tokens.
	RefreshPublicKey string `mapstructure:"JWT_REFRESH_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "ccp-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "ccp-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h"). Also bounds session lifetime.
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// EmailVerificationTTL is the email verification token lifetime (e.g. "24h").
	EmailVerificationTTL string `mapstructure:"EMAIL_VERIFICATION_TTL"`
	// PasswordResetTTL is the password reset token lifetime (e.g. "1h").
	PasswordResetTTL string `mapstructure:"PASSWORD_RESET_TTL"`
	// TOTPIssuer is the issuer label embedded in TOTP provisioning URIs.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`
	// JanitorInterval is how often cmd/worker sweeps expired sessions and action tokens (e.g. "5m").
	JanitorInterval string `mapstructure:"JANITOR_INTERVAL"`
	// MetricsAddr is the address cmd/worker serves Prometheus metrics on; empty disables the endpoint.
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "ccp-auth")
	v.SetDefault("JWT_AUDIENCE", "ccp-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("EMAIL_VERIFICATION_TTL", "24h")
	v.SetDefault("PASSWORD_RESET_TTL", "1h")
	v.SetDefault("TOTP_ISSUER", "credential-control-plane")
	v.SetDefault("JANITOR_INTERVAL", "5m")
	v.SetDefault("METRICS_ADDR", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// VerificationTTL parses EmailVerificationTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) VerificationTTL() time.Duration {
	d, err := time.ParseDuration(c.EmailVerificationTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// ResetTTL parses PasswordResetTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	d, err := time.ParseDuration(c.PasswordResetTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// SweepInterval parses JanitorInterval as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	d, err := time.ParseDuration(c.JanitorInterval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}
