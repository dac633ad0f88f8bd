package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Login outcomes recorded on auth_login_attempts_total.
const (
	OutcomeOTPSent             = "otp_sent"
	OutcomeAdmitted            = "admitted"
	OutcomeForceLogoutRequired = "force_logout_required"
	OutcomeInvalidCredentials  = "invalid_credentials"
	OutcomeLocked              = "locked"
	OutcomeUnverified          = "unverified"
	OutcomeUnknownUser         = "unknown_user"
	OutcomeOTPRejected         = "otp_rejected"
	OutcomeError               = "error"
)

// AuthMetrics holds the domain collectors of the authentication flows.
type AuthMetrics struct {
	LoginAttempts   *prometheus.CounterVec
	Lockouts        prometheus.Counter
	OTPIssued       prometheus.Counter
	ForceLogouts    prometheus.Counter
	SessionsEvicted *prometheus.CounterVec
}

// NewAuthMetrics registers the collectors with reg, reusing collectors that are
// already registered under the same name.
func NewAuthMetrics(reg prometheus.Registerer, namespace string) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "auth"
	}

	loginAttempts, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Login attempts partitioned by method and outcome.",
	}, []string{"method", "outcome"}))
	if err != nil {
		return nil, err
	}

	lockouts, err := Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Accounts locked after repeated password failures.",
	}))
	if err != nil {
		return nil, err
	}

	otpIssued, err := Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "otp_issued_total",
		Help:      "Login one-time codes issued.",
	}))
	if err != nil {
		return nil, err
	}

	forceLogouts, err := Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "force_logout_total",
		Help:      "Confirmed force logouts replacing existing sessions.",
	}))
	if err != nil {
		return nil, err
	}

	evicted, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_evicted_total",
		Help:      "Sessions removed partitioned by reason.",
	}, []string{"reason"}))
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		LoginAttempts:   loginAttempts,
		Lockouts:        lockouts,
		OTPIssued:       otpIssued,
		ForceLogouts:    forceLogouts,
		SessionsEvicted: evicted,
	}, nil
}

// NewNopAuthMetrics returns collectors registered nowhere, for tests and tools.
func NewNopAuthMetrics() *AuthMetrics {
	m, _ := NewAuthMetrics(prometheus.NewRegistry(), "auth")
	return m
}

// LoginAttempt increments the login attempt counter.
func (m *AuthMetrics) LoginAttempt(method, outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(method, outcome).Inc()
}

// Lockout records an account lock.
func (m *AuthMetrics) Lockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

// OTPIssue records an issued login code.
func (m *AuthMetrics) OTPIssue() {
	if m == nil {
		return
	}
	m.OTPIssued.Inc()
}

// ForceLogout records a confirmed force logout.
func (m *AuthMetrics) ForceLogout() {
	if m == nil {
		return
	}
	m.ForceLogouts.Inc()
}

// SessionsEvict adds n evicted sessions for reason.
func (m *AuthMetrics) SessionsEvict(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsEvicted.WithLabelValues(reason).Add(float64(n))
}

// Register adds collector to reg, reusing an identical collector registered earlier.
func Register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return collector, fmt.Errorf("register collector: %w", err)
	}
	return collector, nil
}
