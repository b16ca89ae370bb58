package domain

import "time"

// JobStatus represents the lifecycle state of an enhancement job.
// Values move forward only: submitting -> processing -> completed | failed.
type JobStatus string

const (
	JobStatusSubmitting JobStatus = "submitting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are accepted for the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// FailureKind tags why a job ended in JobStatusFailed.
type FailureKind string

const (
	FailureAdmissionRejected     FailureKind = "admission_rejected"
	FailureSubmissionFailed      FailureKind = "submission_failed"
	FailureConnectivityExhausted FailureKind = "connectivity_exhausted"
	FailureRemoteProcessing      FailureKind = "remote_processing_failed"
	FailureTimeout               FailureKind = "timeout"
)

const (
	// MaxProcessingPercent is the ceiling for progress while a job is still processing.
	// The last few percent are reserved for the terminal transition.
	MaxProcessingPercent = 95

	// CompletedPercent is the progress reported for a completed job.
	CompletedPercent = 100
)

// Job is one client-tracked enhancement request for a single image.
type Job struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	RemoteRecordID    string      `json:"remote_record_id,omitempty"`
	FileName          string      `json:"file_name,omitempty"`
	OriginalRef       string      `json:"original_ref,omitempty"`
	OriginalURL       string      `json:"original_url,omitempty"`
	Status            JobStatus   `json:"status"`
	ResultURL         string      `json:"result_url,omitempty"`
	ProgressPercent   int         `json:"progress_percent"`
	ProgressMessage   string      `json:"progress_message,omitempty"`
	Error             string      `json:"error,omitempty"`
	FailureKind       FailureKind `json:"failure_kind,omitempty"`
	ConsecutiveErrors int         `json:"-"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
}

// NewJob returns a job in JobStatusSubmitting created at now.
func NewJob(id, userID, fileName string, now time.Time) Job {
	return Job{
		ID:              id,
		UserID:          userID,
		FileName:        fileName,
		Status:          JobStatusSubmitting,
		ProgressMessage: "Uploading image...",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Elapsed returns the time spent since the job's clock started.
func (j Job) Elapsed(now time.Time) time.Duration {
	if now.Before(j.CreatedAt) {
		return 0
	}
	return now.Sub(j.CreatedAt)
}
