package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/saedlagr/foodio-beta-sub000/internal/api/middleware"
	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
)

// HistoryReader reads a user's stored records.
type HistoryReader interface {
	History(ctx context.Context, userID string, limit int) ([]domain.JobRecord, error)
	OpenOriginal(ctx context.Context, userID, recordID string) (io.ReadCloser, string, error)
}

// HistoryHandler serves records that outlive a tracking session.
type HistoryHandler struct {
	reader HistoryReader
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(reader HistoryReader) *HistoryHandler {
	return &HistoryHandler{reader: reader}
}

// List handles GET /api/v1/history?limit=n.
func (h *HistoryHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return
	}
	recs, err := h.reader.History(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

// Original handles GET /api/v1/history/:id/original.
func (h *HistoryHandler) Original(c *gin.Context) {
	body, contentType, err := h.reader.OpenOriginal(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer body.Close()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}
