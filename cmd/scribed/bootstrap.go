package main

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"scribe/internal/classifier"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/services/blob"
	"scribe/internal/services/gemini"
	"scribe/internal/services/speech"
	"scribe/internal/services/ytdlp"
)

// buildPipeline assembles the stage services behind the orchestrator. The
// metadata resolver is returned separately because the API server also uses
// it for ad-hoc lookups.
func buildPipeline(ctx context.Context, cfg *config.Config, queueStore *queue.Store, mediaStore *media.Store, logger *slog.Logger) (*pipeline.Orchestrator, pipeline.MetadataResolver, error) {
	resolver := ytdlp.NewService(cfg.YtdlpBinary(), cfg.FFmpegBinary())
	contentClassifier := classifier.New(cfg.FFmpegBinary())

	stager, err := blob.NewStore(cfg.Blob)
	if err != nil {
		return nil, nil, err
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := stager.EnsureBucket(ensureCtx); err != nil {
		// Staging may come up after the daemon; uploads will surface the
		// problem as transient job failures until it does.
		logger.Warn("ensure staging bucket", logging.Error(err))
	}

	transcriber := speech.NewClient(cfg.Speech.APIKey,
		speech.WithBaseURL(cfg.Speech.BaseURL),
		speech.WithLanguage(cfg.Speech.Language),
		speech.WithOperationTimeout(time.Duration(cfg.Speech.OperationTimeout)*time.Second),
		speech.WithPollInterval(time.Duration(cfg.Speech.PollIntervalSeconds)*time.Second),
	)

	analyzer := gemini.NewClient(cfg.Analysis.APIKey,
		gemini.WithBaseURL(cfg.Analysis.BaseURL),
		gemini.WithModel(cfg.Analysis.Model),
		gemini.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second}),
	)

	orchestrator := pipeline.New(
		resolver,
		resolver,
		contentClassifier,
		stager,
		transcriber,
		analyzer,
		mediaStore,
		queueStore,
		cfg.Paths.StagingDir,
		logger,
	)
	return orchestrator, resolver, nil
}
