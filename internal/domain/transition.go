package domain

import "time"

const completedMessage = "Enhancement complete"

// Transition applies ev to job and returns the resulting job together with a flag
// telling whether anything changed. It never mutates its input.
//
// Terminal jobs ignore every event except EventRevived, so late or duplicate signals
// from the push and poll channels cannot resurrect or corrupt a finished job.
func Transition(job Job, ev Event, now time.Time) (Job, bool) {
	if job.Status.IsTerminal() && ev.Kind != EventRevived {
		return job, false
	}

	next := job
	switch ev.Kind {
	case EventAcknowledged:
		if job.Status != JobStatusSubmitting || ev.RecordID == "" {
			return job, false
		}
		next.Status = JobStatusProcessing
		next.RemoteRecordID = ev.RecordID
		if ev.Locator != "" {
			next.OriginalURL = ev.Locator
		}
		next.ProgressMessage = "Image received, waiting for the enhancement studio..."

	case EventStageChanged:
		if job.Status != JobStatusProcessing || ev.Message == "" || ev.Message == job.ProgressMessage {
			return job, false
		}
		next.ProgressMessage = ev.Message

	case EventProgressTick:
		if job.Status != JobStatusProcessing {
			return job, false
		}
		percent := ev.Percent
		if percent > MaxProcessingPercent {
			percent = MaxProcessingPercent
		}
		if percent < job.ProgressPercent {
			percent = job.ProgressPercent
		}
		next.ProgressPercent = percent
		if ev.Message != "" {
			next.ProgressMessage = ev.Message
		}
		next.ConsecutiveErrors = 0
		if next.ProgressPercent == job.ProgressPercent &&
			next.ProgressMessage == job.ProgressMessage &&
			job.ConsecutiveErrors == 0 {
			return job, false
		}

	case EventCompleted:
		if ev.ResultURL == "" {
			return job, false
		}
		next.Status = JobStatusCompleted
		next.ResultURL = ev.ResultURL
		next.ProgressPercent = CompletedPercent
		next.ProgressMessage = completedMessage
		next.Error = ""
		next.FailureKind = ""
		completedAt := now
		next.CompletedAt = &completedAt

	case EventFailed:
		reason := ev.Message
		if reason == "" {
			reason = "Enhancement failed"
		}
		next.Status = JobStatusFailed
		next.Error = reason
		next.ProgressMessage = reason
		next.FailureKind = ev.Failure

	case EventCheckFailed:
		if job.Status != JobStatusProcessing {
			return job, false
		}
		next.ConsecutiveErrors = job.ConsecutiveErrors + 1

	case EventRevived:
		if job.Status != JobStatusFailed || job.RemoteRecordID == "" {
			return job, false
		}
		next.Status = JobStatusProcessing
		next.CreatedAt = now
		next.ProgressPercent = 0
		next.ProgressMessage = ev.Message
		next.ConsecutiveErrors = 0
		next.Error = ""
		next.FailureKind = ""

	default:
		return job, false
	}

	next.UpdatedAt = now
	return next, true
}
