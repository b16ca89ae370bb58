package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: have 0, need 2", domain.ErrInsufficientTokens), http.StatusPaymentRequired},
		{fmt.Errorf("%w: job-9", domain.ErrJobNotFound), http.StatusNotFound},
		{domain.ErrRecordNotFound, http.StatusNotFound},
		{domain.ErrNotRetryable, http.StatusConflict},
		{fmt.Errorf("%w: kitchen on fire", domain.ErrRemoteFailed), http.StatusConflict},
		{domain.ErrSessionClosed, http.StatusConflict},
		{fmt.Errorf("menu.gif: %w", domain.ErrInvalidImage), http.StatusBadRequest},
		{domain.ErrNoImages, http.StatusBadRequest},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
