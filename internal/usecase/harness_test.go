package usecase

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
	"github.com/RASA-RCS/userauth-service/internal/infra/telemetry"
)

type harness struct {
	cfg      *config.AppConfig
	clock    *testClock
	store    *memoryUserStore
	tokens   *stubTokens
	mailer   *stubMailer
	events   *recordingPublisher
	metrics  *telemetry.AuthMetrics
	registry *prometheus.Registry

	credentials *CredentialVerifier
	otp         *OTPManager
	sessions    *SessionRegistry
	federated   *FederatedReconciler
	auth        *AuthService
}

func newHarness(t *testing.T, users ...domain.User) *harness {
	t.Helper()

	h := &harness{
		cfg:      testConfig(),
		clock:    newTestClock(),
		store:    newMemoryUserStore(users...),
		tokens:   newStubTokens(),
		mailer:   &stubMailer{},
		events:   &recordingPublisher{},
		registry: prometheus.NewRegistry(),
	}

	metrics, err := telemetry.NewAuthMetrics(h.registry, "auth")
	if err != nil {
		t.Fatalf("NewAuthMetrics returned error: %v", err)
	}
	h.metrics = metrics

	log := zap.NewNop()
	h.credentials = NewCredentialVerifier(h.cfg, h.store, stubHasher{}, h.events, h.metrics, log)
	h.credentials.WithClock(h.clock.Now)

	h.otp = NewOTPManager(h.cfg, h.store, h.mailer, h.events, h.metrics, log)
	h.otp.WithClock(h.clock.Now)
	h.otp.WithGenerator(func() (int, error) { return 123456, nil })

	h.sessions = NewSessionRegistry(h.cfg, h.store, h.events, h.metrics, log)
	h.sessions.WithClock(h.clock.Now)

	h.federated = NewFederatedReconciler(h.cfg, h.store, h.events, log)
	h.federated.WithClock(h.clock.Now)

	h.auth = NewAuthService(h.cfg, h.store, h.credentials, h.otp, h.sessions, h.federated, h.tokens, h.mailer, h.metrics, log)
	return h
}
