package domain

import "errors"

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrRecordNotFound     = errors.New("record not found")
	ErrInsufficientTokens = errors.New("insufficient tokens")
	ErrInvalidImage       = errors.New("invalid image")
	ErrNoImages           = errors.New("no images submitted")
	ErrNotRetryable       = errors.New("job cannot be retried")
	ErrRemoteFailed       = errors.New("remote processing failed")
	ErrSessionClosed      = errors.New("session closed")
)
