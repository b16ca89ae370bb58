package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saedlagr/foodio-beta-sub000/internal/api/middleware"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
)

const keepAliveInterval = 15 * time.Second

// EventHandler streams session updates as server-sent events.
type EventHandler struct {
	registry  *tracker.Registry
	keepAlive time.Duration
}

// NewEventHandler creates a new event handler.
func NewEventHandler(registry *tracker.Registry) *EventHandler {
	return &EventHandler{registry: registry, keepAlive: keepAliveInterval}
}

// Stream handles GET /api/v1/events. The first event is a "snapshot" of every
// job; later events carry the update type as their name.
func (h *EventHandler) Stream(c *gin.Context) {
	s, err := h.registry.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	updates, cancel := s.Subscribe()
	defer cancel()

	ctx := logger.SetComponent(c.Request.Context(), "events")
	logger.CtxDebug(ctx, "Event stream opened")
	defer logger.CtxDebug(ctx, "Event stream closed")

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("snapshot", gin.H{"jobs": s.Jobs()})
	if tokens, ok := s.CachedBalance(); ok {
		c.SSEvent(string(tracker.UpdateBalance), tracker.Update{Type: tracker.UpdateBalance, Balance: &tokens})
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case u, ok := <-updates:
			if !ok {
				return false
			}
			if u.Type == tracker.UpdateJob && u.Job != nil {
				view, err := s.Job(u.Job.ID)
				if err == nil {
					c.SSEvent(string(u.Type), view)
					return true
				}
			}
			c.SSEvent(string(u.Type), u)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
