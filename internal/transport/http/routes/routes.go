package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/infra/config"
	"github.com/RASA-RCS/userauth-service/internal/transport/http/handlers"
	"github.com/RASA-RCS/userauth-service/internal/transport/http/middleware"
)

// APIPrefix is the mount point of every authentication route.
const APIPrefix = "/api/auth"

// AuthService is the login orchestrator as seen by the HTTP layer.
type AuthService interface {
	handlers.LoginService
	middleware.SessionAuthenticator
}

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         AuthService
	Registration handlers.SignupService
	Passwords    handlers.CredentialService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Services    ServiceSet
	HTTPMetrics *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Tracer      trace.Tracer
	Store       ReadinessChecker
	Cache       ReadinessChecker
}

// ReadinessChecker exposes readiness behaviour for backing stores.
type ReadinessChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Tracing(deps.Tracer))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	if origin := deps.Config.App.FrontendURL; origin != "" {
		r.Use(middleware.CORS([]string{origin}))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Store != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck(deps.Config.Store.Driver, deps.Store.HealthCheck))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(metricsHandler(deps.Gatherer)))

	api := r.Group(APIPrefix)
	{
		if deps.Services.Auth != nil {
			requireSession := middleware.RequireSession(deps.Services.Auth)

			handlers.NewAuthHandler(deps.Services.Auth).RegisterRoutes(api)
			handlers.NewSessionHandler(deps.Services.Auth).RegisterRoutes(api, requireSession)

			if deps.Services.Passwords != nil {
				handlers.NewPasswordHandler(deps.Services.Passwords).RegisterRoutes(api, requireSession)
			}
		}

		if deps.Services.Registration != nil {
			handlers.NewRegistrationHandler(deps.Services.Registration).RegisterRoutes(api)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.NewErrorResponse(c, "route not found"))
	})

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// CheckFunc adapts a plain probe, such as pgxpool.Pool.Ping, to ReadinessChecker.
type CheckFunc func(ctx context.Context) error

// HealthCheck implements ReadinessChecker.
func (f CheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}
