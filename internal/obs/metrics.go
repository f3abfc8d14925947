// Package obs registers and exposes Prometheus metrics for the credential lifecycle.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"result"},
	)

	tokenRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Successful refresh-token rotations.",
	})

	sessionsRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_revoked_total",
		Help: "Sessions revoked by logout, logout-all, or password reset.",
	})

	twoFactorFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_two_factor_failures_total",
		Help: "Rejected second-factor attempts (wrong code, exhausted backup code, or rate limited).",
	})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "auth_active_sessions",
		Help: "Active unexpired sessions at the last janitor sweep.",
	})

	janitorSweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_janitor_swept_total",
			Help: "Rows evicted by the expiry janitor.",
		},
		[]string{"target"},
	)
)

// Init registers all metrics with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(loginsTotal, tokenRotationsTotal, sessionsRevokedTotal,
		twoFactorFailuresTotal, activeSessions, janitorSweepsTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordLogin counts a login attempt; result is "success", "invalid",
// "unverified", or "two_factor_required".
func RecordLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// RecordTokenRotation counts a successful refresh-token rotation.
func RecordTokenRotation() {
	tokenRotationsTotal.Inc()
}

// RecordSessionsRevoked counts revoked sessions.
func RecordSessionsRevoked(n int) {
	sessionsRevokedTotal.Add(float64(n))
}

// RecordTwoFactorFailure counts a rejected second-factor attempt.
func RecordTwoFactorFailure() {
	twoFactorFailuresTotal.Inc()
}

// SetActiveSessions records the total active-session count observed by the janitor.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// RecordSweep counts janitor evictions for the given target ("sessions" or "action_tokens").
func RecordSweep(target string, n int) {
	janitorSweepsTotal.WithLabelValues(target).Add(float64(n))
}
