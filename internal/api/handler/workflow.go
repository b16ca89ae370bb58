package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/service"
)

const webhookSecretHeader = "X-Webhook-Secret"

// WorkflowUpdater applies status reports from the enhancement workflow.
type WorkflowUpdater interface {
	ApplyWorkflowUpdate(ctx context.Context, recordID string, patch map[string]interface{}) (*domain.JobRecord, error)
}

// WorkflowHandler receives status callbacks from the enhancement workflow.
type WorkflowHandler struct {
	updater WorkflowUpdater
	secret  string
}

// NewWorkflowHandler creates a new workflow handler. An empty secret disables
// the endpoint.
func NewWorkflowHandler(updater WorkflowUpdater, secret string) *WorkflowHandler {
	return &WorkflowHandler{updater: updater, secret: secret}
}

// WorkflowUpdateRequest is the callback body.
type WorkflowUpdateRequest struct {
	Metadata map[string]interface{} `json:"metadata" binding:"required"`
}

// Update handles POST /api/v1/workflow/records/:id.
func (h *WorkflowHandler) Update(c *gin.Context) {
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(c.GetHeader(webhookSecretHeader)), []byte(h.secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook secret"})
		return
	}

	var req WorkflowUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	rec, err := h.updater.ApplyWorkflowUpdate(c.Request.Context(), c.Param("id"), req.Metadata)
	if err != nil {
		if errors.Is(err, service.ErrEmptyUpdate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
