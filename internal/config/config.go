package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Queue contains job queue retry, retention, and scheduling settings.
type Queue struct {
	Workers                int `toml:"workers"`
	MaxAttempts            int `toml:"max_attempts"`
	BackoffBaseSeconds     int `toml:"backoff_base_seconds"`
	PollInterval           int `toml:"poll_interval"`
	ErrorRetryInterval     int `toml:"error_retry_interval"`
	HeartbeatInterval      int `toml:"heartbeat_interval"`
	HeartbeatTimeout       int `toml:"heartbeat_timeout"`
	RetentionHours         int `toml:"retention_hours"`
	RetentionCount         int `toml:"retention_count"`
	RetentionSweepInterval int `toml:"retention_sweep_interval"`
}

// Speech contains configuration for the speech-to-text provider.
type Speech struct {
	APIKey              string `toml:"api_key"`
	BaseURL             string `toml:"base_url"`
	Language            string `toml:"language"`
	OperationTimeout    int    `toml:"operation_timeout"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

// Blob contains configuration for the audio staging bucket.
type Blob struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Analysis contains connection settings for the transcript analysis model.
type Analysis struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completions    bool   `toml:"completions"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scribe.
//
// Configuration sections by subsystem:
//   - Paths: data/staging/log directories and the API bind address
//   - Queue: worker count, retry attempts, backoff, retention, heartbeats
//   - Speech: speech-to-text provider connection and language
//   - Blob: object storage used to stage audio for recognition
//   - Analysis: generative model used to analyze transcripts
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Queue         Queue         `toml:"queue"`
	Speech        Speech        `toml:"speech"`
	Blob          Blob          `toml:"blob"`
	Analysis      Analysis      `toml:"analysis"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The second return value is the
// resolved path; the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvFallbacks()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// applyEnvFallbacks fills empty credential fields from the environment so
// secrets can stay out of the config file.
func (c *Config) applyEnvFallbacks() {
	fallback := func(target *string, key string) {
		if strings.TrimSpace(*target) == "" {
			*target = strings.TrimSpace(os.Getenv(key))
		}
	}
	fallback(&c.Speech.APIKey, "SCRIBE_SPEECH_API_KEY")
	fallback(&c.Analysis.APIKey, "SCRIBE_ANALYSIS_API_KEY")
	fallback(&c.Blob.AccessKey, "SCRIBE_BLOB_ACCESS_KEY")
	fallback(&c.Blob.SecretKey, "SCRIBE_BLOB_SECRET_KEY")
	fallback(&c.Paths.APIToken, "SCRIBE_API_TOKEN")
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// YtdlpBinary returns the yt-dlp executable name.
func (c *Config) YtdlpBinary() string {
	return "yt-dlp"
}

// FFmpegBinary returns the ffmpeg executable name used for audio processing.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
