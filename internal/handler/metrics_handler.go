package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-registrar-api/internal/service"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
	"github.com/noah-isme/univ-registrar-api/pkg/response"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics    *service.MetricsService
	dependency Pinger
}

// NewMetricsHandler constructs a metrics handler. A nil dependency is always ready.
func NewMetricsHandler(metrics *service.MetricsService, dependency Pinger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, dependency: dependency}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready checks the backing store before reporting ready.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.dependency != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.dependency.PingContext(ctx); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "database unavailable"))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
