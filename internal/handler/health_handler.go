package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"bsn-realtime/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthTimeout = 3 * time.Second

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	instanceID string
	checks     map[string]Check
}

func NewHealthHandler(instanceID string, checks map[string]Check) *HealthHandler {
	return &HealthHandler{instanceID: instanceID, checks: checks}
}

func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.OK(gin.H{"message": "pong"}))
}

// Health runs every check and reports 503 if any fails.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := httpdto.HealthResponse{Status: "healthy", InstanceID: h.instanceID, Components: map[string]string{}}
	status := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			zap.L().Warn("health check failed", zap.String("component", name), zap.Error(err))
			resp.Components[name] = "unhealthy"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}

	c.JSON(status, httpdto.OK(resp))
}
