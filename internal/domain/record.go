package domain

import (
	"fmt"
	"strings"
	"time"
)

// Well-known keys of the metadata document written by the enhancement workflow.
const (
	MetaProcessingStarted   = "processing_started"
	MetaProcessingCompleted = "processing_completed"
	MetaProcessingFailed    = "processing_failed"
	MetaProcessingError     = "processing_error"
	MetaErrorMessage        = "error_message"
	MetaEnhancedImageURL    = "enhanced_image_url"
	MetaStatusMessage       = "status_message"
	MetaStatus              = "status"
)

// Metadata is the opaque key/value document stored with a job record.
type Metadata map[string]any

// String returns the trimmed string stored under key, or "".
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	default:
		return ""
	}
}

// Bool accepts JSON booleans as well as "true"/"false" strings.
func (m Metadata) Bool(key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

// JobRecord is the durable row backing a job in the record store.
type JobRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	OriginalURL string    `json:"original_url"`
	Metadata    Metadata  `json:"metadata"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RecordChange is one push notification about a changed record.
type RecordChange struct {
	Record JobRecord
}

// SignalKind classifies a metadata document.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalStarted
	SignalCompleted
	SignalFailed
)

// IsTerminal reports whether the signal ends the job.
func (k SignalKind) IsTerminal() bool {
	return k == SignalCompleted || k == SignalFailed
}

func (k SignalKind) String() string {
	switch k {
	case SignalStarted:
		return "started"
	case SignalCompleted:
		return "completed"
	case SignalFailed:
		return "failed"
	default:
		return "none"
	}
}

// Signal is the classification of a metadata document.
type Signal struct {
	Kind       SignalKind
	ResultURL  string
	Reason     string
	StatusText string
}

const defaultRemoteFailure = "Enhancement failed in the processing studio"

// Classify derives the job signal carried by a metadata document.
// Completion requires a result locator; a completion flag without one is not terminal.
func Classify(meta Metadata) Signal {
	sig := Signal{StatusText: meta.String(MetaStatusMessage)}
	status := strings.ToLower(meta.String(MetaStatus))
	resultURL := meta.String(MetaEnhancedImageURL)

	completed := meta.Bool(MetaProcessingCompleted) || status == "completed"
	if completed && resultURL != "" {
		sig.Kind = SignalCompleted
		sig.ResultURL = resultURL
		return sig
	}

	if meta.Bool(MetaProcessingFailed) || meta.String(MetaProcessingError) != "" || status == "failed" {
		sig.Kind = SignalFailed
		sig.Reason = firstNonEmpty(
			meta.String(MetaProcessingError),
			meta.String(MetaErrorMessage),
			meta.String("error"),
			defaultRemoteFailure,
		)
		return sig
	}

	if meta.Bool(MetaProcessingStarted) || status == "processing" {
		sig.Kind = SignalStarted
	}
	return sig
}

// Event converts a terminal or started signal into a state machine event.
// It returns false for SignalNone.
func (s Signal) Event() (Event, bool) {
	switch s.Kind {
	case SignalCompleted:
		return Completed(s.ResultURL), true
	case SignalFailed:
		return Failed(FailureRemoteProcessing, s.Reason), true
	case SignalStarted:
		return StageChanged(StageProcessingStarted), true
	default:
		return Event{}, false
	}
}

// StageProcessingStarted is the message used when the workflow reports it picked up a job.
const StageProcessingStarted = "processing started"

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
