package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// HealthOption configures the health handler.
type HealthOption func(*HealthHandler)

// WithReadinessCheck registers a named dependency probe for /readyz.
func WithReadinessCheck(name string, check func(ctx context.Context) error) HealthOption {
	return func(h *HealthHandler) {
		if check == nil {
			return
		}
		h.checks = append(h.checks, readinessCheck{name: name, check: check})
	}
}

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	startedAt time.Time
	checks    []readinessCheck
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{startedAt: time.Now().UTC()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Status godoc
// @Summary Service health check
// @Description Returns the status and start time of the service.
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
	})
}

// Readiness godoc
// @Summary Service readiness check
// @Description Probes the store and cache; 503 when any probe fails.
// @Tags Health
// @Produce json
// @Success 200 {object} ReadyResponse
// @Failure 503 {object} ReadyResponse
// @Router /readyz [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	resp := ReadyResponse{
		Status:    "ready",
		Checks:    make(map[string]string, len(h.checks)),
		Timestamp: time.Now().UTC(),
	}

	for _, rc := range h.checks {
		if err := rc.check(ctx); err != nil {
			resp.Checks[rc.name] = "unavailable"
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			_ = c.Error(err)
			continue
		}
		resp.Checks[rc.name] = "ok"
	}

	c.JSON(status, resp)
}
