package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.JWTIssuer != "ccp-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "ccp-auth")
	}
	if cfg.JWTAudience != "ccp-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "ccp-api")
	}
	if cfg.JWTAccessTTL != "15m" {
		t.Errorf("JWTAccessTTL = %q, want %q", cfg.JWTAccessTTL, "15m")
	}
	if cfg.JWTRefreshTTL != "168h" {
		t.Errorf("JWTRefreshTTL = %q, want %q", cfg.JWTRefreshTTL, "168h")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.EmailVerificationTTL != "24h" {
		t.Errorf("EmailVerificationTTL = %q, want %q", cfg.EmailVerificationTTL, "24h")
	}
	if cfg.PasswordResetTTL != "1h" {
		t.Errorf("PasswordResetTTL = %q, want %q", cfg.PasswordResetTTL, "1h")
	}
	if cfg.TOTPIssuer != "credential-control-plane" {
		t.Errorf("TOTPIssuer = %q, want default", cfg.TOTPIssuer)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want empty", cfg.MetricsAddr)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")
	os.Setenv("PASSWORD_RESET_TTL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.ResetTTL() != 30*time.Minute {
		t.Errorf("ResetTTL = %v, want 30m", cfg.ResetTTL())
	}
}

func TestLoad_InvalidBcryptCost(t *testing.T) {
	os.Clearenv()
	os.Setenv("BCRYPT_COST", "99")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject BCRYPT_COST out of range")
	}
}

func TestDurationAccessors_Fallbacks(t *testing.T) {
	cfg := &Config{
		JWTAccessTTL:         "bogus",
		JWTRefreshTTL:        "",
		EmailVerificationTTL: "-5m",
		PasswordResetTTL:     "nope",
		JanitorInterval:      "",
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL fallback = %v, want 15m", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL fallback = %v, want 168h", cfg.RefreshTTL())
	}
	if cfg.VerificationTTL() != 24*time.Hour {
		t.Errorf("VerificationTTL fallback = %v, want 24h", cfg.VerificationTTL())
	}
	if cfg.ResetTTL() != time.Hour {
		t.Errorf("ResetTTL fallback = %v, want 1h", cfg.ResetTTL())
	}
	if cfg.SweepInterval() != 5*time.Minute {
		t.Errorf("SweepInterval fallback = %v, want 5m", cfg.SweepInterval())
	}
}
