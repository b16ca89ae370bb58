package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldComponent = "component"

	// FieldJobID is the client-side enhancement job ID
	FieldJobID = "job_id"

	// FieldRecordID is the record store row backing a job
	FieldRecordID = "record_id"
)

// Metric fields, attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
	FieldAttempt    = "attempt"
	FieldIntervalMs = "interval_ms"
)
