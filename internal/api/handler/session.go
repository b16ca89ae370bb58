package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saedlagr/foodio-beta-sub000/internal/api/middleware"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
)

// SessionHandler handles balance and session lifecycle endpoints.
type SessionHandler struct {
	registry *tracker.Registry
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(registry *tracker.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// Balance handles GET /api/v1/balance.
func (h *SessionHandler) Balance(c *gin.Context) {
	s, err := h.registry.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	tokens, err := s.Balance(c.Request.Context())
	if err != nil {
		if cached, ok := s.CachedBalance(); ok {
			middleware.GetLogger(c).WithError(err).Warn("Serving cached balance")
			c.JSON(http.StatusOK, gin.H{"tokens": cached, "stale": true})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Balance unavailable: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// End handles DELETE /api/v1/session, as on sign-out. All tracking stops.
func (h *SessionHandler) End(c *gin.Context) {
	if h.registry.End(middleware.UserID(c)) {
		logger.CtxInfo(c.Request.Context(), "Session ended by user")
	}
	c.Status(http.StatusNoContent)
}
