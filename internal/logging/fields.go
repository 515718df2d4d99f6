package logging

// Standardized attribute keys used across the codebase. Keeping these in one
// place makes log queries predictable.
const (
	FieldComponent = "component"
	FieldJobID     = "job_id"
	FieldStage     = "stage"
	FieldRequestID = "request_id"
	FieldEventType = "event_type"
	FieldURL       = "url"
	FieldVideoID   = "video_id"
)
