package config

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// normalize expands paths, trims strings, and applies bounds to numeric
// settings so the rest of the program can rely on sane values.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)

	if c.Queue.Workers <= 0 {
		c.Queue.Workers = defaultQueueWorkers
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = defaultQueueMaxAttempts
	}
	if c.Queue.BackoffBaseSeconds <= 0 {
		c.Queue.BackoffBaseSeconds = defaultQueueBackoffBaseSeconds
	}
	if c.Queue.PollInterval <= 0 {
		c.Queue.PollInterval = defaultQueuePollInterval
	}
	if c.Queue.ErrorRetryInterval <= 0 {
		c.Queue.ErrorRetryInterval = defaultQueueErrorRetryInterval
	}
	if c.Queue.HeartbeatInterval <= 0 {
		c.Queue.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Queue.HeartbeatTimeout <= c.Queue.HeartbeatInterval {
		c.Queue.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Queue.RetentionHours <= 0 {
		c.Queue.RetentionHours = defaultRetentionHours
	}
	if c.Queue.RetentionCount <= 0 {
		c.Queue.RetentionCount = defaultRetentionCount
	}
	if c.Queue.RetentionSweepInterval <= 0 {
		c.Queue.RetentionSweepInterval = defaultRetentionSweepInterval
	}

	c.Speech.BaseURL = strings.TrimRight(strings.TrimSpace(c.Speech.BaseURL), "/")
	if c.Speech.BaseURL == "" {
		c.Speech.BaseURL = defaultSpeechBaseURL
	}
	lang, err := normalizeLanguage(c.Speech.Language)
	if err != nil {
		return err
	}
	c.Speech.Language = lang
	if c.Speech.OperationTimeout <= 0 {
		c.Speech.OperationTimeout = defaultSpeechOperationTimeout
	}
	if c.Speech.PollIntervalSeconds <= 0 {
		c.Speech.PollIntervalSeconds = defaultSpeechPollInterval
	}

	c.Blob.Endpoint = strings.TrimSpace(c.Blob.Endpoint)
	c.Blob.Bucket = strings.TrimSpace(c.Blob.Bucket)
	if c.Blob.Bucket == "" {
		c.Blob.Bucket = defaultBlobBucket
	}

	c.Analysis.BaseURL = strings.TrimRight(strings.TrimSpace(c.Analysis.BaseURL), "/")
	if c.Analysis.BaseURL == "" {
		c.Analysis.BaseURL = defaultAnalysisBaseURL
	}
	c.Analysis.Model = strings.TrimSpace(c.Analysis.Model)
	if c.Analysis.Model == "" {
		c.Analysis.Model = defaultAnalysisModel
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		c.Analysis.TimeoutSeconds = defaultAnalysisTimeoutSeconds
	}

	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}

// normalizeLanguage canonicalizes a recognition language tag. The speech
// provider expects BCP 47 form ("en-US"), but users tend to write "en_us".
func normalizeLanguage(value string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(value, "_", "-"))
	if trimmed == "" {
		return defaultSpeechLanguage, nil
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("speech language %q: %w", value, err)
	}
	return tag.String(), nil
}
