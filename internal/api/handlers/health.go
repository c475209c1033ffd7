package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// HealthHandler reports service liveness and dependency health.
type HealthHandler struct {
	redisClient *redis.Client // nil when event publishing is disabled
	logger      *logrus.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(redisClient *redis.Client, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{redisClient: redisClient, logger: logger}
}

// GetHealth reports liveness plus dependency checks.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	checks := map[string]string{}
	status := "healthy"

	if h.redisClient != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = "degraded"
		} else {
			checks["redis"] = "ok"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"service":   "course-dispatch",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// GetReady reports readiness to accept traffic.
func (h *HealthHandler) GetReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ready": true})
}
