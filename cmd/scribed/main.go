// Command scribed is the processing daemon: it owns the job queue, the worker
// pool, and the HTTP API the scribe CLI talks to.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"log/slog"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/queue"
	"scribe/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Secrets may live in a .env next to the working directory.
	_ = godotenv.Load()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "scribed.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		fatal(logger, "acquire daemon lock", err)
	}
	if !locked {
		logger.Error("another scribed instance is already running")
		os.Exit(1)
	}
	defer lock.Unlock() //nolint:errcheck

	queueStore, err := queue.Open(cfg)
	if err != nil {
		fatal(logger, "open queue store", err)
	}
	defer queueStore.Close()

	mediaStore, err := media.Open(cfg)
	if err != nil {
		fatal(logger, "open media store", err)
	}
	defer mediaStore.Close()

	orchestrator, resolver, err := buildPipeline(ctx, cfg, queueStore, mediaStore, logger)
	if err != nil {
		fatal(logger, "assemble pipeline", err)
	}

	manager := workflow.NewManager(cfg, queueStore, orchestrator, logger)
	if err := manager.Start(ctx); err != nil {
		fatal(logger, "start workflow", err)
	}
	defer manager.Stop()

	server := api.NewServer(cfg, queueStore, mediaStore, resolver, logger)
	if err := server.Start(ctx); err != nil {
		fatal(logger, "start api server", err)
	}
	defer server.Stop()

	<-ctx.Done()
	logger.Info("scribed shutting down")
}

func fatal(logger *slog.Logger, message string, err error) {
	logger.Error(message, logging.Error(err))
	os.Exit(1)
}
