package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	registry *tracker.Registry
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(registry *tracker.Registry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.registry.Len(),
	})
}
