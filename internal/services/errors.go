package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for failure classification. Terminal markers describe
// conditions that will reproduce on every retry and must not consume retry
// budget; everything else is considered transient and eligible for retry.
var (
	// ErrTransient marks provider outages, network failures, and local
	// media-processing crashes.
	ErrTransient = errors.New("transient failure")

	// ErrValidation marks malformed input rejected before any work happens.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks missing records on the query surface.
	ErrNotFound = errors.New("not found")

	// ErrVideoPrivate marks a source that requires credentials we do not have.
	ErrVideoPrivate = errors.New("video is private")

	// ErrVideoUnavailable marks a source that has been removed or blocked.
	ErrVideoUnavailable = errors.New("video unavailable")

	// ErrNoSpeech marks audio in which recognition produced no usable text.
	ErrNoSpeech = errors.New("no speech detected")

	// ErrInvalidAnalysis marks a model response missing required analysis fields.
	ErrInvalidAnalysis = errors.New("invalid analysis format")
)

// terminalMarkers lists conditions the queue must never retry.
var terminalMarkers = []error{ErrVideoPrivate, ErrVideoUnavailable, ErrNoSpeech}

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above; nil defaults to ErrTransient.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTerminal reports whether an error carries a marker that makes retrying
// pointless.
func IsTerminal(err error) bool {
	for _, marker := range terminalMarkers {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

// TerminalReason returns the human-readable reason for a terminal error, or
// the empty string when the error is not terminal.
func TerminalReason(err error) string {
	for _, marker := range terminalMarkers {
		if errors.Is(err, marker) {
			return marker.Error()
		}
	}
	return ""
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
