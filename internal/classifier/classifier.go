// Package classifier decides whether extracted audio is speech or music, so
// the pipeline can skip paid speech recognition for music content.
//
// The decision runs two ffmpeg passes over the normalized mono 16 kHz
// waveform in a single invocation: silencedetect flags silence intervals, and
// windowed astats reports the peak level of each sample window. A running
// score decrements once per silence interval and increments once per window
// whose peak exceeds the loudness threshold. Music is declared when the score
// outweighs half the window count.
package classifier

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"scribe/internal/services"
)

// Kind is the classification outcome.
type Kind string

const (
	KindSpeech Kind = "speech"
	KindMusic  Kind = "music"
)

const (
	// silenceFilter flags intervals quieter than -50 dB lasting at least 0.5s.
	silenceFilter = "silencedetect=noise=-50dB:d=0.5"
	// statsFilter reports a peak level once per 16-frame sample window.
	statsFilter = "astats=metadata=1:reset=16,ametadata=mode=print:key=lavfi.astats.Overall.Peak_level:file=-"

	// loudPeakThresholdDB is the peak volume above which a window counts
	// toward the music score.
	loudPeakThresholdDB = -5.0

	peakLevelPrefix = "lavfi.astats.Overall.Peak_level="
	silenceMarker   = "silence_duration"
)

// Classification carries the outcome along with the raw score for logging.
type Classification struct {
	Kind    Kind
	Score   int
	Windows int
	Ratio   float64
}

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Classifier analyzes audio files with ffmpeg.
type Classifier struct {
	ffmpegBinary string
	runner       CommandRunner
}

// New creates a Classifier using the given ffmpeg binary.
func New(ffmpegBinary string) *Classifier {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Classifier{ffmpegBinary: ffmpegBinary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (c *Classifier) WithCommandRunner(runner CommandRunner) {
	c.runner = runner
}

// Classify runs the analysis passes over audioPath and returns the decision.
// Analysis failures are transient: the underlying tool crashing says nothing
// about the content.
func (c *Classifier) Classify(ctx context.Context, audioPath string) (Classification, error) {
	if strings.TrimSpace(audioPath) == "" {
		return Classification{}, services.Wrap(services.ErrValidation, "classifier", "classify", "audio path required", nil)
	}

	args := []string{
		"-hide_banner",
		"-nostats",
		"-i", audioPath,
		"-af", silenceFilter + "," + statsFilter,
		"-f", "null",
		"-",
	}

	output, err := c.run(ctx, c.ffmpegBinary, args...)
	if err != nil {
		return Classification{}, services.Wrap(services.ErrTransient, "classifier", "analyze audio", "ffmpeg analysis pass failed", err)
	}

	return Score(strings.Split(string(output), "\n")), nil
}

// Score computes the classification from analysis log lines. Split out from
// Classify so the decision logic is testable without ffmpeg. Identical input
// always produces the identical outcome, and the exact ratio 0.5 boundary
// resolves to speech.
func Score(lines []string) Classification {
	result := Classification{Kind: KindSpeech}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, silenceMarker) {
			result.Score--
			continue
		}
		if idx := strings.Index(line, peakLevelPrefix); idx >= 0 {
			result.Windows++
			raw := strings.TrimSpace(line[idx+len(peakLevelPrefix):])
			peak, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				// "-inf" for digital silence, or a malformed line; the
				// window still counts, it just is not loud.
				continue
			}
			if peak > loudPeakThresholdDB {
				result.Score++
			}
		}
	}

	if result.Windows > 0 {
		result.Ratio = float64(result.Score) / float64(result.Windows)
	}
	if result.Ratio > 0.5 {
		result.Kind = KindMusic
	}
	return result
}

func (c *Classifier) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if c.runner != nil {
		return c.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}
