package api

import (
	"time"

	"scribe/internal/media"
	"scribe/internal/queue"
	"scribe/internal/status"
)

// SubmitRequest is the job submission payload.
type SubmitRequest struct {
	URL       string           `json:"url"`
	UserID    string           `json:"userId,omitempty"`
	VideoInfo *media.VideoInfo `json:"videoInfo,omitempty"`
}

// JobView is the wire representation of a job and its media records.
type JobView struct {
	ID            int64      `json:"id"`
	URL           string     `json:"url"`
	UserID        string     `json:"userId,omitempty"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"maxAttempts"`
	FailureReason string     `json:"failureReason,omitempty"`
	Final         bool       `json:"final"`
	IsMusic       bool       `json:"isMusic,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
	Video         *VideoView `json:"video,omitempty"`
}

// VideoView is the wire representation of the video projection.
type VideoView struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Title            string `json:"title,omitempty"`
	Thumbnail        string `json:"thumbnail,omitempty"`
	HasTranscription bool   `json:"hasTranscription"`
	HasAnalysis      bool   `json:"hasAnalysis"`
}

// VideoInfoResponse wraps a metadata lookup.
type VideoInfoResponse struct {
	URL  string          `json:"url"`
	Info media.VideoInfo `json:"info"`
}

// TranscriptionView is the wire representation of a stored transcription.
type TranscriptionView struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsMusic    bool    `json:"isMusic"`
}

// AnalysisView is the wire representation of a stored analysis.
type AnalysisView struct {
	Summary       string   `json:"summary"`
	KeyPoints     []string `json:"keyPoints"`
	Sentiment     string   `json:"sentiment"`
	Topics        []string `json:"topics,omitempty"`
	SuggestedTags []string `json:"suggestedTags,omitempty"`
}

// VideoDetailResponse is the full result view for one processed video.
type VideoDetailResponse struct {
	ID            string             `json:"id"`
	URL           string             `json:"url"`
	Title         string             `json:"title,omitempty"`
	Author        string             `json:"author,omitempty"`
	Duration      int                `json:"duration,omitempty"`
	Status        string             `json:"status"`
	Transcription *TranscriptionView `json:"transcription,omitempty"`
	Analysis      *AnalysisView      `json:"analysis,omitempty"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// HealthResponse reports queue bucket counts.
type HealthResponse struct {
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Delayed   int    `json:"delayed"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromJob converts a queue job to its wire form.
func FromJob(job *queue.Job) JobView {
	view := JobView{
		ID:            job.ID,
		URL:           job.Payload.URL,
		UserID:        job.Payload.UserID,
		Status:        string(job.Status),
		Progress:      job.Progress,
		Attempts:      job.Attempts,
		MaxAttempts:   job.MaxAttempts,
		FailureReason: job.FailureReason,
		Final:         job.Final(),
		CreatedAt:     job.CreatedAt,
		FinishedAt:    job.FinishedAt,
	}
	if job.Result != nil {
		view.IsMusic = job.Result.IsMusic
	}
	return view
}

// FromJobStatus converts a merged status view to its wire form.
func FromJobStatus(js *status.JobStatus) JobView {
	view := FromJob(js.Job)
	if js.Video != nil {
		view.Video = &VideoView{
			ID:               js.Video.ID,
			Status:           string(js.Video.Status),
			Title:            js.Video.Title,
			Thumbnail:        js.Video.Thumbnail,
			HasTranscription: js.Video.HasTranscription,
			HasAnalysis:      js.Video.HasAnalysis,
		}
	}
	return view
}

// FromVideoDetail converts a stored video detail to its wire form.
func FromVideoDetail(detail *media.VideoDetail) VideoDetailResponse {
	response := VideoDetailResponse{
		ID:       detail.Video.ID,
		URL:      detail.Video.URL,
		Title:    detail.Video.Title,
		Author:   detail.Video.Author,
		Duration: detail.Video.Duration,
		Status:   string(detail.Video.Status),
	}
	if detail.Transcription != nil {
		response.Transcription = &TranscriptionView{
			Text:       detail.Transcription.Text,
			Confidence: detail.Transcription.Confidence,
			IsMusic:    detail.Transcription.IsMusic,
		}
	}
	if detail.Analysis != nil {
		response.Analysis = &AnalysisView{
			Summary:       detail.Analysis.Summary,
			KeyPoints:     detail.Analysis.KeyPoints,
			Sentiment:     string(detail.Analysis.Sentiment),
			Topics:        detail.Analysis.Topics,
			SuggestedTags: detail.Analysis.SuggestedTags,
		}
	}
	return response
}

// FromHealth converts a queue health summary to its wire form.
func FromHealth(summary queue.HealthSummary) HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Total:     summary.Total,
		Waiting:   summary.Waiting,
		Active:    summary.Active,
		Delayed:   summary.Delayed,
		Completed: summary.Completed,
		Failed:    summary.Failed,
	}
}
