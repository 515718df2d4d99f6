package testsupport

import (
	"path/filepath"
	"testing"

	"scribe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Speech.APIKey = "test"
	cfg.Analysis.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxAttempts overrides the job retry ceiling on the test config.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxAttempts = attempts
	}
}

// WithBackoffBase overrides the retry backoff base, in seconds. Tests that
// exercise retry scheduling use 0 so rescheduled jobs are ready immediately.
func WithBackoffBase(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.BackoffBaseSeconds = seconds
	}
}
