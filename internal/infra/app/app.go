package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/port"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
	"github.com/RASA-RCS/userauth-service/internal/infra/database"
	kafkainfra "github.com/RASA-RCS/userauth-service/internal/infra/kafka"
	"github.com/RASA-RCS/userauth-service/internal/infra/logger"
	"github.com/RASA-RCS/userauth-service/internal/infra/mail"
	mongoinfra "github.com/RASA-RCS/userauth-service/internal/infra/mongodb"
	redisinfra "github.com/RASA-RCS/userauth-service/internal/infra/redis"
	"github.com/RASA-RCS/userauth-service/internal/infra/scheduler"
	"github.com/RASA-RCS/userauth-service/internal/infra/security"
	"github.com/RASA-RCS/userauth-service/internal/infra/telemetry"
	mongorepo "github.com/RASA-RCS/userauth-service/internal/repository/mongo"
	postgresrepo "github.com/RASA-RCS/userauth-service/internal/repository/postgres"
	redisrepo "github.com/RASA-RCS/userauth-service/internal/repository/redis"
	"github.com/RASA-RCS/userauth-service/internal/transport/http/middleware"
	"github.com/RASA-RCS/userauth-service/internal/transport/http/routes"
	"github.com/RASA-RCS/userauth-service/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	sweeper *scheduler.Sweeper
	closers []func(ctx context.Context) error
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env,
		logger.WithLevel(cfg.App.LogLevel),
		logger.WithFields(map[string]any{"service": cfg.App.Name, "env": cfg.App.Env}),
	)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	fail := func(err error) (*Application, error) {
		a.close(context.Background())
		return nil, err
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
	if err != nil {
		return fail(fmt.Errorf("init tracing: %w", err))
	}
	a.onClose(tracer.Shutdown)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	authMetrics, err := telemetry.NewAuthMetrics(registry, cfg.Telemetry.MetricsNamespace)
	if err != nil {
		return fail(fmt.Errorf("init auth metrics: %w", err))
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Registerer: registry,
		Namespace:  cfg.Telemetry.MetricsNamespace,
	})
	if err != nil {
		return fail(fmt.Errorf("init http metrics: %w", err))
	}

	users, store, err := a.openUserStore(ctx, log)
	if err != nil {
		return fail(err)
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fail(fmt.Errorf("init redis: %w", err))
	}
	a.onClose(func(context.Context) error { return redisClient.Close() })
	denylist := redisrepo.NewLinkDenylist(redisClient.Client(), cfg.Redis.LinkPrefix)

	events := a.eventPublisher(log)

	mailer, err := mail.New(cfg.Mail, log)
	if err != nil {
		return fail(fmt.Errorf("init mailer: %w", err))
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fail(fmt.Errorf("configure argon2: %w", err))
	}
	policy := security.NewPasswordPolicy()

	tokens, err := security.NewJWTIssuer(cfg.Secrets.SessionKey, cfg.Token.Issuer, cfg.Token.TTL)
	if err != nil {
		return fail(fmt.Errorf("init session tokens: %w", err))
	}
	links, err := security.NewLinkSigner(cfg.Secrets.VerificationKey, cfg.Secrets.ResetKey, cfg.Token.VerificationTTL, cfg.Token.ResetTTL)
	if err != nil {
		return fail(fmt.Errorf("init link signer: %w", err))
	}

	credentials := usecase.NewCredentialVerifier(cfg, users, hasher, events, authMetrics, log)
	otp := usecase.NewOTPManager(cfg, users, mailer, events, authMetrics, log)
	sessions := usecase.NewSessionRegistry(cfg, users, events, authMetrics, log)
	federated := usecase.NewFederatedReconciler(cfg, users, events, log)

	authService := usecase.NewAuthService(cfg, users, credentials, otp, sessions, federated, tokens, mailer, authMetrics, log)
	registrationService := usecase.NewRegistrationService(cfg, users, hasher, policy, links, denylist, mailer, events, log)
	passwordService := usecase.NewPasswordService(cfg, users, hasher, policy, links, denylist, mailer, events, log)

	if cfg.Session.SweepSchedule != "" {
		sweeper, err := scheduler.NewSweeper(cfg.Session.SweepSchedule, sessions, log)
		if err != nil {
			return fail(fmt.Errorf("init session sweeper: %w", err))
		}
		a.sweeper = sweeper
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		HTTPMetrics: httpMetrics,
		Gatherer:    registry,
		Tracer:      tracer.Tracer("userauth-service/http"),
		Store:       store,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			Passwords:    passwordService,
		},
	})

	return a, nil
}

// openUserStore connects the backend named by store.driver.
func (a *Application) openUserStore(ctx context.Context, log *zap.Logger) (port.UserStore, routes.ReadinessChecker, error) {
	switch a.cfg.Store.Driver {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres, log)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres: %w", err)
		}
		a.onClose(func(context.Context) error {
			pool.Close()
			return nil
		})
		return postgresrepo.NewUserRepository(pool), routes.CheckFunc(pool.Ping), nil
	case "mongo":
		client, err := mongoinfra.NewClient(ctx, a.cfg.Mongo, log)
		if err != nil {
			return nil, nil, fmt.Errorf("init mongo: %w", err)
		}
		a.onClose(client.Close)
		return mongorepo.NewUserRepository(client.Users()), client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", a.cfg.Store.Driver)
	}
}

func (a *Application) eventPublisher(log *zap.Logger) port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.cfg.App.Name, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.onClose(func(context.Context) error { return producer.Close() })
	log.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, log)
}

func (a *Application) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *Application) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("resource close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.close(closeCtx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if a.sweeper != nil {
		a.sweeper.Start()
		a.logger.Info("session sweeper started", zap.String("schedule", a.cfg.Session.SweepSchedule))
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("store", a.cfg.Store.Driver),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.sweeper != nil {
		if err := a.sweeper.Stop(shutdownCtx); err != nil {
			a.logger.Warn("session sweeper did not stop cleanly", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}
	return runErr
}
