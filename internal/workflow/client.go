// Package workflow hands registered photos to the external enhancement workflow.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
)

const secretHeader = "X-Webhook-Secret"

// Config holds configuration for the webhook client.
type Config struct {
	WebhookURL string
	Secret     string
	Timeout    time.Duration
	RetryCount int
}

// Client triggers the enhancement workflow over an HTTP webhook.
type Client struct {
	client   *resty.Client
	endpoint string
}

// NewClient creates a webhook client. Server errors are retried; client errors are not.
func NewClient(cfg Config) (*Client, error) {
	if cfg.WebhookURL == "" {
		return nil, errors.New("workflow: webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.Secret != "" {
		client.SetHeader(secretHeader, cfg.Secret)
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(cfg.RetryCount)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.SetRetryMaxWaitTime(3 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	})

	return &Client{client: client, endpoint: cfg.WebhookURL}, nil
}

type triggerRequest struct {
	JobID    string `json:"job_id"`
	RecordID string `json:"record_id"`
	UserID   string `json:"user_id"`
	ImageURL string `json:"image_url"`
}

type triggerResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Trigger asks the workflow to enhance one registered photo.
func (c *Client) Trigger(ctx context.Context, h tracker.Handoff) error {
	req := triggerRequest{
		JobID:    h.JobID,
		RecordID: h.RecordID,
		UserID:   h.UserID,
		ImageURL: h.OriginalURL,
	}

	var errResp triggerResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetError(&errResp).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to call workflow webhook: %w", err)
	}

	entry := logger.With(logger.Fields{logger.FieldJobID: h.JobID, logger.FieldRecordID: h.RecordID}).
		WithDuration(resp.Time()).
		WithAttempt(resp.Request.Attempt).
		WithStatus(resp.Status())

	if resp.IsError() {
		entry.Warn(ctx, "Workflow webhook rejected hand-off")
		detail := errResp.Error
		if detail == "" {
			detail = errResp.Message
		}
		if detail != "" {
			return fmt.Errorf("workflow webhook error: status %d: %s", resp.StatusCode(), detail)
		}
		return fmt.Errorf("workflow webhook error: status %d", resp.StatusCode())
	}
	entry.Info(ctx, "Workflow triggered")
	return nil
}
