package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"scribe/internal/media"
	"scribe/internal/services"
)

const (
	// DefaultYtdlpCommand is the yt-dlp binary used when none is configured.
	DefaultYtdlpCommand = "yt-dlp"
	// DefaultFFmpegCommand is the ffmpeg binary used when none is configured.
	DefaultFFmpegCommand = "ffmpeg"

	// normalizeFilter cleans the extracted audio for speech recognition:
	// resample with soxr, band-pass to the voice range, denoise, and
	// normalize loudness.
	normalizeFilter = "aresample=resampler=soxr,highpass=f=200,lowpass=f=3000,afftdn=nf=-25,loudnorm=I=-16:TP=-1.5:LRA=11"
)

// Service resolves video metadata and extracts normalized audio.
type Service struct {
	ytdlpBinary  string
	ffmpegBinary string
	runner       func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService creates a Service using the given binaries. Empty values fall
// back to the commands on PATH.
func NewService(ytdlpBinary, ffmpegBinary string) *Service {
	if ytdlpBinary == "" {
		ytdlpBinary = DefaultYtdlpCommand
	}
	if ffmpegBinary == "" {
		ffmpegBinary = DefaultFFmpegCommand
	}
	return &Service{
		ytdlpBinary:  ytdlpBinary,
		ffmpegBinary: ffmpegBinary,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.runner = runner
}

// metadataPayload is the subset of yt-dlp's JSON dump the pipeline uses.
type metadataPayload struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	Thumbnail   string  `json:"thumbnail"`
}

// ResolveMetadata fetches the metadata snapshot for url without downloading
// media. Private and removed videos map to terminal errors so the job is not
// pointlessly retried.
func (s *Service) ResolveMetadata(ctx context.Context, url string) (media.VideoInfo, error) {
	var info media.VideoInfo
	if strings.TrimSpace(url) == "" {
		return info, services.Wrap(services.ErrValidation, "ytdlp", "resolve metadata", "url required", nil)
	}

	output, err := s.run(ctx, s.ytdlpBinary,
		"--dump-single-json",
		"--no-playlist",
		"--skip-download",
		url,
	)
	if err != nil {
		return info, classifyToolError("resolve metadata", err)
	}

	var payload metadataPayload
	if err := json.Unmarshal(output, &payload); err != nil {
		return info, services.Wrap(services.ErrTransient, "ytdlp", "resolve metadata", "parse metadata dump", err)
	}

	info.Title = payload.Title
	info.Description = payload.Description
	info.Duration = int(payload.Duration)
	info.Author = payload.Uploader
	if info.Author == "" {
		info.Author = payload.Channel
	}
	info.Thumbnail = payload.Thumbnail
	return info, nil
}

// DownloadAudio downloads the best audio stream for url into workDir and
// normalizes it to a mono 16 kHz WAV suitable for recognition. The caller
// owns the returned file and is expected to remove it when done.
func (s *Service) DownloadAudio(ctx context.Context, url, workDir string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", services.Wrap(services.ErrValidation, "ytdlp", "download audio", "url required", nil)
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "ytdlp", "download audio", "ensure work dir", err)
	}

	base := uuid.NewString()
	rawPath := filepath.Join(workDir, base+".source.m4a")
	wavPath := filepath.Join(workDir, base+".wav")

	if _, err := s.run(ctx, s.ytdlpBinary,
		"--no-playlist",
		"-f", "bestaudio/best",
		"-o", rawPath,
		url,
	); err != nil {
		return "", classifyToolError("download audio", err)
	}
	defer os.Remove(rawPath)

	if _, err := s.run(ctx, s.ffmpegBinary,
		"-y",
		"-i", rawPath,
		"-af", normalizeFilter,
		"-ac", "1",
		"-ar", "16000",
		wavPath,
	); err != nil {
		os.Remove(wavPath)
		return "", services.Wrap(services.ErrTransient, "ytdlp", "download audio", "normalize audio", err)
	}

	return wavPath, nil
}

// classifyToolError maps yt-dlp failure output to the typed error domain.
// The tool reports source-side conditions only in its log text, so the text
// is inspected here, at the boundary, and nowhere else.
func classifyToolError(operation string, err error) error {
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "private video"):
		return services.Wrap(services.ErrVideoPrivate, "ytdlp", operation, "video is private", err)
	case strings.Contains(text, "video unavailable"), strings.Contains(text, "not_available"), strings.Contains(text, "removed by the uploader"):
		return services.Wrap(services.ErrVideoUnavailable, "ytdlp", operation, "video unavailable", err)
	default:
		return services.Wrap(services.ErrTransient, "ytdlp", operation, "tool invocation failed", err)
	}
}

func (s *Service) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.runner != nil {
		return s.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}
