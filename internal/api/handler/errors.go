package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saedlagr/foodio-beta-sub000/internal/api/middleware"
	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientTokens):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotRetryable), errors.Is(err, domain.ErrRemoteFailed), errors.Is(err, domain.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidImage), errors.Is(err, domain.ErrNoImages):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		middleware.GetLogger(c).WithError(err).Error("Request failed")
	}
	body := gin.H{"error": err.Error()}
	if id := logger.GetRequestID(c.Request.Context()); id != "" {
		body["request_id"] = id
	}
	c.JSON(status, body)
}
