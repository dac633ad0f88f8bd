package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAuthMetricsRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewAuthMetrics(registry, "auth")
	if err != nil {
		t.Fatalf("NewAuthMetrics returned error: %v", err)
	}

	metrics.LoginAttempt("password", OutcomeOTPSent)
	metrics.LoginAttempt("password", OutcomeOTPSent)
	metrics.Lockout()
	metrics.OTPIssue()
	metrics.ForceLogout()
	metrics.SessionsEvict("inactivity", 2)
	metrics.SessionsEvict("expired", 0)

	if got := testutil.ToFloat64(metrics.LoginAttempts.WithLabelValues("password", OutcomeOTPSent)); got != 2 {
		t.Fatalf("expected 2 login attempts, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Lockouts); got != 1 {
		t.Fatalf("expected 1 lockout, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.OTPIssued); got != 1 {
		t.Fatalf("expected 1 otp, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.ForceLogouts); got != 1 {
		t.Fatalf("expected 1 force logout, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.SessionsEvicted.WithLabelValues("inactivity")); got != 2 {
		t.Fatalf("expected 2 evictions, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.SessionsEvicted); got != 1 {
		t.Fatalf("zero evictions must not create a series, got %d", got)
	}
}

func TestAuthMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewAuthMetrics(registry, "auth")
	if err != nil {
		t.Fatalf("NewAuthMetrics returned error: %v", err)
	}
	second, err := NewAuthMetrics(registry, "auth")
	if err != nil {
		t.Fatalf("second NewAuthMetrics returned error: %v", err)
	}

	first.Lockout()
	if got := testutil.ToFloat64(second.Lockouts); got != 1 {
		t.Fatalf("expected shared collector, got %f", got)
	}
}

func TestAuthMetricsNilSafe(t *testing.T) {
	var metrics *AuthMetrics
	metrics.LoginAttempt("password", OutcomeError)
	metrics.Lockout()
	metrics.OTPIssue()
	metrics.ForceLogout()
	metrics.SessionsEvict("logout", 1)
}
