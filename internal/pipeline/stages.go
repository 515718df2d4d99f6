package pipeline

// Stage names used for logging and context annotation.
const (
	StageResolveMetadata = "resolve-metadata"
	StageDownloadAudio   = "download-audio"
	StageClassifyContent = "classify-content"
	StageTranscribe      = "transcribe"
	StageAnalyze         = "analyze"
)

// Progress checkpoints reported at stage boundaries. Completion implies 100.
const (
	ProgressMetadataResolved = 10
	ProgressVideoPersisted   = 20
	ProgressAudioDownloaded  = 40
	ProgressTranscribed      = 70
)
