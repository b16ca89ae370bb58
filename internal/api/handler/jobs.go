package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saedlagr/foodio-beta-sub000/internal/api/middleware"
	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
)

const uploadField = "images"

// JobHandler handles enhancement job endpoints.
type JobHandler struct {
	registry *tracker.Registry
	maxBytes int64
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - registry: per-user tracking sessions.
//   - maxBytes: per-file upload limit.
//
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(registry *tracker.Registry, maxBytes int64) *JobHandler {
	return &JobHandler{registry: registry, maxBytes: maxBytes}
}

func (h *JobHandler) session(c *gin.Context) (*tracker.Session, bool) {
	s, err := h.registry.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

// Submit handles POST /api/v1/jobs (multipart, one or more "images").
func (h *JobHandler) Submit(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a multipart form: " + err.Error()})
		return
	}
	files := form.File[uploadField]
	if len(files) == 0 {
		respondError(c, domain.ErrNoImages)
		return
	}

	uploads := make([]tracker.Upload, 0, len(files))
	for _, fh := range files {
		data, err := h.readFile(fh)
		if err != nil {
			respondError(c, err)
			return
		}
		uploads = append(uploads, tracker.Upload{FileName: fh.Filename, Data: data})
	}

	s, ok := h.session(c)
	if !ok {
		return
	}
	jobs, err := s.Submit(c.Request.Context(), uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobs": jobs})
}

func (h *JobHandler) readFile(fh *multipart.FileHeader) ([]byte, error) {
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", domain.ErrInvalidImage, fh.Filename, h.maxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// List handles GET /api/v1/jobs.
func (h *JobHandler) List(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": s.Jobs()})
}

// Get handles GET /api/v1/jobs/:id.
func (h *JobHandler) Get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	job, err := s.Job(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Preview handles GET /api/v1/jobs/:id/preview.
func (h *JobHandler) Preview(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	data, err := s.Preview(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Retry handles POST /api/v1/jobs/:id/retry.
func (h *JobHandler) Retry(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	job, err := s.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Delete handles DELETE /api/v1/jobs/:id.
func (h *JobHandler) Delete(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
