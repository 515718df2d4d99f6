package media

import (
	"strings"
	"time"
)

// VideoStatus represents the processing lifecycle of a video record.
type VideoStatus string

const (
	VideoPending    VideoStatus = "pending"
	VideoProcessing VideoStatus = "processing"
	VideoCompleted  VideoStatus = "completed"
	VideoFailed     VideoStatus = "failed"
)

// MusicContentMarker is the fixed transcription text stored when classification
// decides the audio is music and speech recognition is skipped.
const MusicContentMarker = "[MUSIC CONTENT DETECTED]"

// Sentiment is the closed set of analysis sentiment values.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// NormalizeSentiment coerces out-of-domain values to neutral rather than
// failing the whole analysis.
func NormalizeSentiment(value string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(value))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// VideoInfo is the metadata snapshot produced by the resolver. It travels in
// job payloads and is mapped into a Video record on upsert.
type VideoInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Author      string `json:"author"`
	Thumbnail   string `json:"thumbnail"`
}

// Video is the persisted record for a submitted url. URL is the natural key:
// at most one Video exists per url regardless of how many times the url is
// submitted or retried.
type Video struct {
	ID          string
	URL         string
	Title       string
	Description string
	Duration    int
	Author      string
	Thumbnail   string
	Status      VideoStatus
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transcription is the one-to-one speech-to-text result for a Video. AudioPath
// is a transient working reference and is cleared once processing settles.
type Transcription struct {
	ID         string
	VideoID    string
	Text       string
	Confidence float64
	IsMusic    bool
	AudioPath  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Analysis is the one-to-one structured analysis for a Video with speech
// content.
type Analysis struct {
	ID            string
	VideoID       string
	Summary       string
	KeyPoints     []string
	Sentiment     Sentiment
	Topics        []string
	SuggestedTags []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// VideoDetail is the full result view for one video: the record plus its
// transcription and analysis when they exist.
type VideoDetail struct {
	Video         Video
	Transcription *Transcription
	Analysis      *Analysis
}

// VideoProjection is the lightweight view the status surface attaches to job
// listings.
type VideoProjection struct {
	ID               string
	Status           VideoStatus
	Title            string
	Thumbnail        string
	HasTranscription bool
	HasAnalysis      bool
}
