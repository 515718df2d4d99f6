package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a queued job.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusDelayed   Status = "delayed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusWaiting,
	StatusActive,
	StatusDelayed,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// settledStatuses are the terminal buckets subject to retention pruning.
var settledStatuses = []Status{StatusCompleted, StatusFailed}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsSettled reports whether a status is terminal.
func (s Status) IsSettled() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payload is the submission data carried by a job. VideoInfo is an opaque
// metadata snapshot forwarded to the pipeline; the queue never interprets it.
type Payload struct {
	URL       string          `json:"url"`
	UserID    string          `json:"user_id"`
	VideoInfo json.RawMessage `json:"video_info,omitempty"`
}

// Result is the value a pipeline handler settles a job with. Final marks a
// terminal failure that must not consume further retries.
type Result struct {
	URL     string `json:"url"`
	VideoID string `json:"video_id,omitempty"`
	Title   string `json:"title,omitempty"`
	IsMusic bool   `json:"is_music,omitempty"`
	Final   bool   `json:"final,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Job represents a queued transcription job persisted in SQLite.
type Job struct {
	ID            int64
	Payload       Payload
	Status        Status
	Progress      int
	Attempts      int
	MaxAttempts   int
	RunAt         *time.Time
	Result        *Result
	FailureReason string
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	LastHeartbeat *time.Time
}

// Final reports whether the job outcome is settled for good: either the
// handler flagged a terminal failure, the job completed, or the retry budget
// is exhausted.
func (j *Job) Final() bool {
	if j == nil {
		return false
	}
	if j.Result != nil && j.Result.Final {
		return true
	}
	if j.Status == StatusCompleted {
		return true
	}
	return j.Status == StatusFailed && j.Attempts >= j.MaxAttempts
}

// HealthSummary describes aggregated job counts per lifecycle bucket.
type HealthSummary struct {
	Total     int
	Waiting   int
	Active    int
	Delayed   int
	Completed int
	Failed    int
}
