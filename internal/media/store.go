package media

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"scribe/internal/config"
)

// Store manages Video, Transcription, and Analysis persistence backed by
// SQLite. Every write is an upsert keyed by the record's natural key
// (videos.url, transcriptions.video_id, analyses.video_id) so pipeline
// retries converge instead of duplicating rows.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the media database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "media.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const mediaSchema = `
CREATE TABLE IF NOT EXISTS videos (
    id TEXT PRIMARY KEY,
    url TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    duration INTEGER NOT NULL DEFAULT 0,
    author TEXT NOT NULL DEFAULT '',
    thumbnail TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    user_id TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transcriptions (
    id TEXT PRIMARY KEY,
    video_id TEXT NOT NULL UNIQUE REFERENCES videos(id) ON DELETE CASCADE,
    text TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    is_music INTEGER NOT NULL DEFAULT 0,
    audio_path TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    video_id TEXT NOT NULL UNIQUE REFERENCES videos(id) ON DELETE CASCADE,
    summary TEXT NOT NULL DEFAULT '',
    key_points_json TEXT NOT NULL DEFAULT '[]',
    sentiment TEXT NOT NULL DEFAULT 'neutral',
    topics_json TEXT NOT NULL DEFAULT '[]',
    suggested_tags_json TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

func (s *Store) applySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, mediaSchema); err != nil {
		return fmt.Errorf("apply media schema: %w", err)
	}
	return nil
}

// UpsertVideo finds a video by url and updates it, or creates it when absent.
// The find-then-create pattern is not transactionally atomic: a concurrent
// writer may insert the same url first. That duplicate-key outcome is treated
// as convergence — the loser re-reads and updates the existing row.
func (s *Store) UpsertVideo(ctx context.Context, video Video) (*Video, error) {
	video.URL = strings.TrimSpace(video.URL)
	if video.URL == "" {
		return nil, errors.New("upsert video: url required")
	}

	existing, err := s.GetVideoByURL(ctx, video.URL)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.updateVideo(ctx, existing, video)
	}

	now := time.Now().UTC()
	created := &Video{
		ID:          uuid.NewString(),
		URL:         video.URL,
		Title:       video.Title,
		Description: video.Description,
		Duration:    video.Duration,
		Author:      video.Author,
		Thumbnail:   video.Thumbnail,
		Status:      video.Status,
		UserID:      video.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if created.Status == "" {
		created.Status = VideoPending
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO videos (id, url, title, description, duration, author, thumbnail, status, user_id, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID,
		created.URL,
		created.Title,
		created.Description,
		created.Duration,
		created.Author,
		created.Thumbnail,
		created.Status,
		created.UserID,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the creation race; converge onto the winner's row.
			winner, gerr := s.GetVideoByURL(ctx, video.URL)
			if gerr != nil {
				return nil, gerr
			}
			if winner == nil {
				return nil, fmt.Errorf("insert video: %w", err)
			}
			return s.updateVideo(ctx, winner, video)
		}
		return nil, fmt.Errorf("insert video: %w", err)
	}
	return created, nil
}

func (s *Store) updateVideo(ctx context.Context, existing *Video, incoming Video) (*Video, error) {
	merged := *existing
	if incoming.Title != "" {
		merged.Title = incoming.Title
	}
	if incoming.Description != "" {
		merged.Description = incoming.Description
	}
	if incoming.Duration > 0 {
		merged.Duration = incoming.Duration
	}
	if incoming.Author != "" {
		merged.Author = incoming.Author
	}
	if incoming.Thumbnail != "" {
		merged.Thumbnail = incoming.Thumbnail
	}
	if incoming.Status != "" {
		merged.Status = incoming.Status
	}
	if incoming.UserID != "" {
		merged.UserID = incoming.UserID
	}
	merged.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		`UPDATE videos
         SET title = ?, description = ?, duration = ?, author = ?, thumbnail = ?,
             status = ?, user_id = ?, updated_at = ?
         WHERE id = ?`,
		merged.Title,
		merged.Description,
		merged.Duration,
		merged.Author,
		merged.Thumbnail,
		merged.Status,
		merged.UserID,
		merged.UpdatedAt.Format(time.RFC3339Nano),
		merged.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update video: %w", err)
	}
	return &merged, nil
}

// SetVideoStatus updates only the status of an existing video.
func (s *Store) SetVideoStatus(ctx context.Context, videoID string, status VideoStatus) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE videos SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC().Format(time.RFC3339Nano),
		videoID,
	)
	if err != nil {
		return fmt.Errorf("set video status: %w", err)
	}
	return nil
}

// GetVideoByURL fetches a video by its natural key. A missing video returns
// (nil, nil).
func (s *Store) GetVideoByURL(ctx context.Context, url string) (*Video, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, url, title, description, duration, author, thumbnail, status, user_id, created_at, updated_at
         FROM videos WHERE url = ?`,
		strings.TrimSpace(url),
	)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video by url: %w", err)
	}
	return video, nil
}

// GetVideoByID fetches a video by identifier. A missing video returns (nil, nil).
func (s *Store) GetVideoByID(ctx context.Context, id string) (*Video, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, url, title, description, duration, author, thumbnail, status, user_id, created_at, updated_at
         FROM videos WHERE id = ?`,
		id,
	)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video by id: %w", err)
	}
	return video, nil
}

// ProjectionByURL builds the lightweight video view attached to job status
// responses. A missing video returns (nil, nil).
func (s *Store) ProjectionByURL(ctx context.Context, url string) (*VideoProjection, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT v.id, v.status, v.title, v.thumbnail,
                EXISTS(SELECT 1 FROM transcriptions t WHERE t.video_id = v.id),
                EXISTS(SELECT 1 FROM analyses a WHERE a.video_id = v.id)
         FROM videos v WHERE v.url = ?`,
		strings.TrimSpace(url),
	)

	var projection VideoProjection
	var status string
	err := row.Scan(
		&projection.ID,
		&status,
		&projection.Title,
		&projection.Thumbnail,
		&projection.HasTranscription,
		&projection.HasAnalysis,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("video projection: %w", err)
	}
	projection.Status = VideoStatus(status)
	return &projection, nil
}

// GetVideoDetail assembles the full result view for a url: the video record
// plus its transcription and analysis when present. A missing video returns
// (nil, nil).
func (s *Store) GetVideoDetail(ctx context.Context, url string) (*VideoDetail, error) {
	video, err := s.GetVideoByURL(ctx, url)
	if err != nil || video == nil {
		return nil, err
	}
	tr, err := s.GetTranscription(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	analysis, err := s.GetAnalysis(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	return &VideoDetail{Video: *video, Transcription: tr, Analysis: analysis}, nil
}

// UpsertTranscription creates or updates the transcription for a video. The
// video_id unique constraint guarantees one row per video; a race between two
// creators converges the same way UpsertVideo does.
func (s *Store) UpsertTranscription(ctx context.Context, tr Transcription) (*Transcription, error) {
	if tr.VideoID == "" {
		return nil, errors.New("upsert transcription: video id required")
	}

	now := time.Now().UTC()
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	tr.CreatedAt = now
	tr.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO transcriptions (id, video_id, text, confidence, is_music, audio_path, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(video_id) DO UPDATE SET
             text = excluded.text,
             confidence = excluded.confidence,
             is_music = excluded.is_music,
             audio_path = excluded.audio_path,
             updated_at = excluded.updated_at`,
		tr.ID,
		tr.VideoID,
		tr.Text,
		tr.Confidence,
		boolToInt(tr.IsMusic),
		tr.AudioPath,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert transcription: %w", err)
	}
	return s.GetTranscription(ctx, tr.VideoID)
}

// GetTranscription fetches the transcription for a video, or (nil, nil).
func (s *Store) GetTranscription(ctx context.Context, videoID string) (*Transcription, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, video_id, text, confidence, is_music, audio_path, created_at, updated_at
         FROM transcriptions WHERE video_id = ?`,
		videoID,
	)

	var tr Transcription
	var isMusic int
	var createdRaw, updatedRaw string
	err := row.Scan(&tr.ID, &tr.VideoID, &tr.Text, &tr.Confidence, &isMusic, &tr.AudioPath, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcription: %w", err)
	}
	tr.IsMusic = isMusic != 0
	tr.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdRaw)
	tr.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedRaw)
	return &tr, nil
}

// ClearTranscriptionAudioPath drops the transient audio reference once
// processing for the video has settled.
func (s *Store) ClearTranscriptionAudioPath(ctx context.Context, videoID string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE transcriptions SET audio_path = '', updated_at = ? WHERE video_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		videoID,
	)
	if err != nil {
		return fmt.Errorf("clear transcription audio path: %w", err)
	}
	return nil
}

// UpsertAnalysis creates or updates the analysis for a video.
func (s *Store) UpsertAnalysis(ctx context.Context, analysis Analysis) (*Analysis, error) {
	if analysis.VideoID == "" {
		return nil, errors.New("upsert analysis: video id required")
	}

	keyPoints, err := json.Marshal(emptyIfNil(analysis.KeyPoints))
	if err != nil {
		return nil, fmt.Errorf("marshal key points: %w", err)
	}
	topics, err := json.Marshal(emptyIfNil(analysis.Topics))
	if err != nil {
		return nil, fmt.Errorf("marshal topics: %w", err)
	}
	tags, err := json.Marshal(emptyIfNil(analysis.SuggestedTags))
	if err != nil {
		return nil, fmt.Errorf("marshal suggested tags: %w", err)
	}

	now := time.Now().UTC()
	if analysis.ID == "" {
		analysis.ID = uuid.NewString()
	}
	sentiment := NormalizeSentiment(string(analysis.Sentiment))

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO analyses (id, video_id, summary, key_points_json, sentiment, topics_json, suggested_tags_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(video_id) DO UPDATE SET
             summary = excluded.summary,
             key_points_json = excluded.key_points_json,
             sentiment = excluded.sentiment,
             topics_json = excluded.topics_json,
             suggested_tags_json = excluded.suggested_tags_json,
             updated_at = excluded.updated_at`,
		analysis.ID,
		analysis.VideoID,
		analysis.Summary,
		string(keyPoints),
		sentiment,
		string(topics),
		string(tags),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert analysis: %w", err)
	}
	return s.GetAnalysis(ctx, analysis.VideoID)
}

// GetAnalysis fetches the analysis for a video, or (nil, nil).
func (s *Store) GetAnalysis(ctx context.Context, videoID string) (*Analysis, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, video_id, summary, key_points_json, sentiment, topics_json, suggested_tags_json, created_at, updated_at
         FROM analyses WHERE video_id = ?`,
		videoID,
	)

	var analysis Analysis
	var sentiment, keyPointsJSON, topicsJSON, tagsJSON, createdRaw, updatedRaw string
	err := row.Scan(
		&analysis.ID,
		&analysis.VideoID,
		&analysis.Summary,
		&keyPointsJSON,
		&sentiment,
		&topicsJSON,
		&tagsJSON,
		&createdRaw,
		&updatedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	analysis.Sentiment = Sentiment(sentiment)
	if err := json.Unmarshal([]byte(keyPointsJSON), &analysis.KeyPoints); err != nil {
		return nil, fmt.Errorf("decode key points: %w", err)
	}
	if err := json.Unmarshal([]byte(topicsJSON), &analysis.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &analysis.SuggestedTags); err != nil {
		return nil, fmt.Errorf("decode suggested tags: %w", err)
	}
	analysis.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdRaw)
	analysis.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedRaw)
	return &analysis, nil
}

func scanVideo(scanner interface{ Scan(dest ...any) error }) (*Video, error) {
	var video Video
	var status, createdRaw, updatedRaw string
	if err := scanner.Scan(
		&video.ID,
		&video.URL,
		&video.Title,
		&video.Description,
		&video.Duration,
		&video.Author,
		&video.Thumbnail,
		&status,
		&video.UserID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	video.Status = VideoStatus(status)
	video.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdRaw)
	video.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedRaw)
	return &video, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
