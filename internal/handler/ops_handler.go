package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-maintenance-api/internal/service"
	appErrors "github.com/noah-isme/sma-maintenance-api/pkg/errors"
	"github.com/noah-isme/sma-maintenance-api/pkg/response"
)

// ReadinessCheck probes one backing dependency.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// OpsHandler exposes liveness, readiness and Prometheus endpoints.
type OpsHandler struct {
	metrics *service.MetricsService
	checks  []ReadinessCheck
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpsHandler constructs an ops handler.
func NewOpsHandler(metrics *service.MetricsService, logger *zap.Logger, checks ...ReadinessCheck) *OpsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpsHandler{metrics: metrics, checks: checks, timeout: 2 * time.Second, logger: logger}
}

// Register mounts the ops routes.
func (h *OpsHandler) Register(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *OpsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "metrics disabled"))
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness probes.
func (h *OpsHandler) Health(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// Ready pings every dependency and reports which ones are failing.
func (h *OpsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	failing := make(map[string]interface{})
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			failing[check.Name] = err.Error()
			h.logger.Warn("readiness check failed", zap.String("check", check.Name), zap.Error(err))
		}
	}
	if len(failing) > 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "dependencies not ready"), failing)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "ready"})
}
