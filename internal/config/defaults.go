package config

const (
	defaultDataDir    = "~/.local/share/scribe/data"
	defaultStagingDir = "~/.local/share/scribe/staging"
	defaultLogDir     = "~/.local/share/scribe/logs"
	defaultAPIBind    = "127.0.0.1:7519"

	defaultQueueWorkers            = 2
	defaultQueueMaxAttempts        = 3
	defaultQueueBackoffBaseSeconds = 2
	defaultQueuePollInterval       = 5
	defaultQueueErrorRetryInterval = 10
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultRetentionHours          = 24
	defaultRetentionCount          = 100
	defaultRetentionSweepInterval  = 600

	defaultSpeechBaseURL          = "https://speech.googleapis.com/v1"
	defaultSpeechLanguage         = "en-US"
	defaultSpeechOperationTimeout = 1800
	defaultSpeechPollInterval     = 5

	defaultBlobEndpoint = "127.0.0.1:9000"
	defaultBlobBucket   = "scribe-audio"

	defaultAnalysisBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultAnalysisModel          = "gemini-2.0-flash"
	defaultAnalysisTimeoutSeconds = 60

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Queue: Queue{
			Workers:                defaultQueueWorkers,
			MaxAttempts:            defaultQueueMaxAttempts,
			BackoffBaseSeconds:     defaultQueueBackoffBaseSeconds,
			PollInterval:           defaultQueuePollInterval,
			ErrorRetryInterval:     defaultQueueErrorRetryInterval,
			HeartbeatInterval:      defaultHeartbeatInterval,
			HeartbeatTimeout:       defaultHeartbeatTimeout,
			RetentionHours:         defaultRetentionHours,
			RetentionCount:         defaultRetentionCount,
			RetentionSweepInterval: defaultRetentionSweepInterval,
		},
		Speech: Speech{
			BaseURL:             defaultSpeechBaseURL,
			Language:            defaultSpeechLanguage,
			OperationTimeout:    defaultSpeechOperationTimeout,
			PollIntervalSeconds: defaultSpeechPollInterval,
		},
		Blob: Blob{
			Endpoint: defaultBlobEndpoint,
			Bucket:   defaultBlobBucket,
		},
		Analysis: Analysis{
			BaseURL:        defaultAnalysisBaseURL,
			Model:          defaultAnalysisModel,
			TimeoutSeconds: defaultAnalysisTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completions:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
