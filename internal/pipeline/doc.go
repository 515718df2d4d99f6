// Package pipeline drives a claimed job through its processing stages:
// resolve metadata, persist the video record, extract audio, classify the
// content, and either record the music marker or transcribe and analyze the
// speech. Stage boundaries report progress back to the queue so clients can
// observe partial completion.
package pipeline
