package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"scribe/internal/classifier"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/gemini"
	"scribe/internal/services/speech"
)

// MetadataResolver resolves the metadata snapshot for a video url.
type MetadataResolver interface {
	ResolveMetadata(ctx context.Context, url string) (media.VideoInfo, error)
}

// AudioExtractor downloads and normalizes the audio track for a url.
type AudioExtractor interface {
	DownloadAudio(ctx context.Context, url, workDir string) (string, error)
}

// ContentClassifier decides whether an audio file is speech or music.
type ContentClassifier interface {
	Classify(ctx context.Context, audioPath string) (classifier.Classification, error)
}

// AudioStager moves audio in and out of the staging bucket.
type AudioStager interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Delete(ctx context.Context, uri string) error
}

// Transcriber converts staged audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, uri string) (speech.Transcript, error)
}

// Analyzer produces a structured analysis of a transcript.
type Analyzer interface {
	AnalyzeTranscript(ctx context.Context, transcript string) (gemini.Analysis, error)
}

// MediaStore is the slice of the media store the pipeline writes through.
type MediaStore interface {
	UpsertVideo(ctx context.Context, video media.Video) (*media.Video, error)
	SetVideoStatus(ctx context.Context, videoID string, status media.VideoStatus) error
	UpsertTranscription(ctx context.Context, tr media.Transcription) (*media.Transcription, error)
	ClearTranscriptionAudioPath(ctx context.Context, videoID string) error
	UpsertAnalysis(ctx context.Context, analysis media.Analysis) (*media.Analysis, error)
}

// ProgressReporter records stage progress on the job record.
type ProgressReporter interface {
	SetProgress(ctx context.Context, id int64, percent int) error
}

// Orchestrator runs the stage sequence for one job at a time.
type Orchestrator struct {
	resolver   MetadataResolver
	extractor  AudioExtractor
	classifier ContentClassifier
	stager     AudioStager
	transcribe Transcriber
	analyzer   Analyzer
	store      MediaStore
	progress   ProgressReporter
	stagingDir string
	logger     *slog.Logger
}

// New assembles an Orchestrator from its stage services.
func New(
	resolver MetadataResolver,
	extractor AudioExtractor,
	contentClassifier ContentClassifier,
	stager AudioStager,
	transcriber Transcriber,
	analyzer Analyzer,
	store MediaStore,
	progress ProgressReporter,
	stagingDir string,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		resolver:   resolver,
		extractor:  extractor,
		classifier: contentClassifier,
		stager:     stager,
		transcribe: transcriber,
		analyzer:   analyzer,
		store:      store,
		progress:   progress,
		stagingDir: stagingDir,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Handle processes job to a settled result. On error the video record, when
// one exists, is marked failed; the caller decides between retry and final
// failure from the error's classification. Working files are removed on every
// exit path.
func (o *Orchestrator) Handle(ctx context.Context, job *queue.Job) (queue.Result, error) {
	ctx = services.WithJobID(ctx, job.ID)
	url := job.Payload.URL
	result := queue.Result{URL: url}

	var videoID string
	var audioPath string
	var stagedURI string
	defer func() {
		o.cleanupLocal(ctx, audioPath)
		o.cleanupStaged(ctx, stagedURI)
	}()

	fail := func(err error) (queue.Result, error) {
		if videoID != "" {
			if statusErr := o.store.SetVideoStatus(ctx, videoID, media.VideoFailed); statusErr != nil {
				logging.WithContext(ctx, o.logger).Warn("mark video failed", logging.Error(statusErr))
			}
		}
		return result, err
	}

	// Resolve metadata, preferring the snapshot captured at submission.
	stageCtx := services.WithStage(ctx, StageResolveMetadata)
	info, err := o.resolveInfo(stageCtx, job)
	if err != nil {
		return fail(err)
	}
	o.report(ctx, job.ID, ProgressMetadataResolved)

	video, err := o.store.UpsertVideo(stageCtx, media.Video{
		URL:         url,
		Title:       info.Title,
		Description: info.Description,
		Duration:    info.Duration,
		Author:      info.Author,
		Thumbnail:   info.Thumbnail,
		Status:      media.VideoProcessing,
		UserID:      job.Payload.UserID,
	})
	if err != nil {
		return fail(services.Wrap(services.ErrTransient, "pipeline", "upsert video", "persist video record", err))
	}
	videoID = video.ID
	result.VideoID = videoID
	result.Title = video.Title
	o.report(ctx, job.ID, ProgressVideoPersisted)

	stageCtx = services.WithStage(ctx, StageDownloadAudio)
	audioPath, err = o.extractor.DownloadAudio(stageCtx, url, o.stagingDir)
	if err != nil {
		return fail(err)
	}
	o.report(ctx, job.ID, ProgressAudioDownloaded)

	stageCtx = services.WithStage(ctx, StageClassifyContent)
	classification, err := o.classifier.Classify(stageCtx, audioPath)
	if err != nil {
		return fail(err)
	}
	logging.WithContext(stageCtx, o.logger).Info("content classified",
		logging.String("kind", string(classification.Kind)),
		logging.Int("score", classification.Score),
		logging.Int("windows", classification.Windows))

	if classification.Kind == classifier.KindMusic {
		return o.settleMusic(ctx, job, videoID, result, fail)
	}

	stageCtx = services.WithStage(ctx, StageTranscribe)
	stagedURI, err = o.stager.Upload(stageCtx, audioPath)
	if err != nil {
		return fail(err)
	}
	transcript, err := o.transcribe.Transcribe(stageCtx, stagedURI)
	if err != nil {
		return fail(err)
	}
	if _, err := o.store.UpsertTranscription(stageCtx, media.Transcription{
		VideoID:    videoID,
		Text:       transcript.Text,
		Confidence: transcript.Confidence,
		AudioPath:  audioPath,
	}); err != nil {
		return fail(services.Wrap(services.ErrTransient, "pipeline", "upsert transcription", "persist transcription", err))
	}
	o.report(ctx, job.ID, ProgressTranscribed)

	stageCtx = services.WithStage(ctx, StageAnalyze)
	analysis, err := o.analyzer.AnalyzeTranscript(stageCtx, transcript.Text)
	if err != nil {
		return fail(err)
	}
	if _, err := o.store.UpsertAnalysis(stageCtx, media.Analysis{
		VideoID:       videoID,
		Summary:       analysis.Summary,
		KeyPoints:     analysis.KeyPoints,
		Sentiment:     media.NormalizeSentiment(analysis.Sentiment),
		Topics:        analysis.Topics,
		SuggestedTags: analysis.SuggestedTags,
	}); err != nil {
		return fail(services.Wrap(services.ErrTransient, "pipeline", "upsert analysis", "persist analysis", err))
	}

	if err := o.settleVideo(ctx, videoID); err != nil {
		return fail(err)
	}
	return result, nil
}

// resolveInfo prefers the metadata snapshot attached at submission and falls
// back to live resolution.
func (o *Orchestrator) resolveInfo(ctx context.Context, job *queue.Job) (media.VideoInfo, error) {
	if len(job.Payload.VideoInfo) > 0 {
		var info media.VideoInfo
		if err := json.Unmarshal(job.Payload.VideoInfo, &info); err == nil && strings.TrimSpace(info.Title) != "" {
			return info, nil
		}
		logging.WithContext(ctx, o.logger).Warn("submitted metadata snapshot unusable, resolving live")
	}
	return o.resolver.ResolveMetadata(ctx, job.Payload.URL)
}

// settleMusic records the fixed music marker transcription and completes the
// job without paying for recognition or analysis.
func (o *Orchestrator) settleMusic(ctx context.Context, job *queue.Job, videoID string, result queue.Result, fail func(error) (queue.Result, error)) (queue.Result, error) {
	if _, err := o.store.UpsertTranscription(ctx, media.Transcription{
		VideoID:    videoID,
		Text:       media.MusicContentMarker,
		Confidence: 1.0,
		IsMusic:    true,
	}); err != nil {
		return fail(services.Wrap(services.ErrTransient, "pipeline", "upsert transcription", "persist music marker", err))
	}
	if err := o.settleVideo(ctx, videoID); err != nil {
		return fail(err)
	}
	result.IsMusic = true
	return result, nil
}

func (o *Orchestrator) settleVideo(ctx context.Context, videoID string) error {
	if err := o.store.ClearTranscriptionAudioPath(ctx, videoID); err != nil {
		logging.WithContext(ctx, o.logger).Warn("clear transcription audio path", logging.Error(err))
	}
	if err := o.store.SetVideoStatus(ctx, videoID, media.VideoCompleted); err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "settle video", "mark video completed", err)
	}
	return nil
}

// report is best effort: losing a progress update never fails the job.
func (o *Orchestrator) report(ctx context.Context, jobID int64, percent int) {
	if o.progress == nil {
		return
	}
	if err := o.progress.SetProgress(ctx, jobID, percent); err != nil {
		logging.WithContext(ctx, o.logger).Warn("report progress",
			logging.Int("percent", percent), logging.Error(err))
	}
}

func (o *Orchestrator) cleanupLocal(ctx context.Context, audioPath string) {
	if audioPath == "" {
		return
	}
	if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
		logging.WithContext(ctx, o.logger).Warn("remove working audio", logging.Error(err))
	}
}

func (o *Orchestrator) cleanupStaged(ctx context.Context, stagedURI string) {
	if stagedURI == "" {
		return
	}
	if err := o.stager.Delete(ctx, stagedURI); err != nil {
		logging.WithContext(ctx, o.logger).Warn("remove staged audio", logging.Error(err))
	}
}
