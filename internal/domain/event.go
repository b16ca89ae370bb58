package domain

// EventKind identifies a job update event.
type EventKind string

const (
	EventAcknowledged EventKind = "acknowledged"
	EventStageChanged EventKind = "stage_changed"
	EventProgressTick EventKind = "progress_tick"
	EventCompleted    EventKind = "completed"
	EventFailed       EventKind = "failed"

	// EventCheckFailed records one failed status check of a processing job.
	EventCheckFailed EventKind = "check_failed"

	// EventRevived moves a failed job back to processing. Only the user retry path emits it.
	EventRevived EventKind = "revived"
)

// Event is the input of Transition. Only the fields relevant to Kind are read.
type Event struct {
	Kind      EventKind
	RecordID  string
	Locator   string
	Message   string
	Percent   int
	ResultURL string
	Failure   FailureKind
}

// Acknowledged is emitted once the record store has accepted the submission.
// originalURL is the public locator of the stored original and may be empty.
func Acknowledged(recordID, originalURL string) Event {
	return Event{Kind: EventAcknowledged, RecordID: recordID, Locator: originalURL}
}

// StageChanged replaces the progress message of a processing job.
func StageChanged(message string) Event {
	return Event{Kind: EventStageChanged, Message: message}
}

// ProgressTick is produced by a successful non-terminal status check.
func ProgressTick(percent int, message string) Event {
	return Event{Kind: EventProgressTick, Percent: percent, Message: message}
}

// Completed carries the locator of the enhanced image.
func Completed(resultURL string) Event {
	return Event{Kind: EventCompleted, ResultURL: resultURL}
}

// Failed ends a job with a reason shown to the user.
func Failed(kind FailureKind, reason string) Event {
	return Event{Kind: EventFailed, Failure: kind, Message: reason}
}

// CheckFailed counts a failed fetch of the job record.
func CheckFailed() Event {
	return Event{Kind: EventCheckFailed}
}

// Revived restarts tracking of a failed job whose record may still complete.
func Revived(message string) Event {
	return Event{Kind: EventRevived, Message: message}
}
