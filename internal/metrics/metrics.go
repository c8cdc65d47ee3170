// Package metrics exposes Prometheus collectors for the login gate.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LoginAttempts counts login requests by outcome.
	// Labels:
	//   - outcome: "success", "invalid_credentials", "locked", "captcha_required",
	//     "captcha_failed", "captcha_unavailable", "store_unavailable", "error"
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffgate_login_attempts_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ThrottleFailures counts failures recorded against throttle records.
	ThrottleFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staffgate_throttle_failures_total",
			Help: "Total number of failed login attempts recorded by the throttle",
		},
	)

	// ThrottleLockouts counts failures that left the account locked.
	ThrottleLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staffgate_throttle_lockouts_total",
			Help: "Total number of account lockouts",
		},
	)

	// ThrottleResets counts throttle record deletions after success or admin unlock.
	ThrottleResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staffgate_throttle_resets_total",
			Help: "Total number of throttle resets",
		},
	)

	// ThrottleStoreErrors counts store failures surfaced by the throttle.
	ThrottleStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffgate_throttle_store_errors_total",
			Help: "Total number of throttle store errors by operation",
		},
		[]string{"op"},
	)

	// ThrottleSweepDeleted counts records removed by the inactivity sweep.
	ThrottleSweepDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staffgate_throttle_sweep_deleted_total",
			Help: "Total number of inactive throttle records removed by the sweep",
		},
	)

	// CaptchaVerifications counts CAPTCHA provider calls.
	// Labels:
	//   - outcome: "success", "rejected", "unavailable"
	CaptchaVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffgate_captcha_verifications_total",
			Help: "Total number of CAPTCHA verifications by outcome",
		},
		[]string{"outcome"},
	)

	// CaptchaDuration measures CAPTCHA provider latency.
	CaptchaDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "staffgate_captcha_verification_duration_seconds",
			Help:    "Duration of CAPTCHA verification calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	// CircuitBreakerState tracks breaker state (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "staffgate_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// Handler serves the default Prometheus registry
func Handler() http.Handler {
	return promhttp.Handler()
}
