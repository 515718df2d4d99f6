// Package api exposes the daemon's HTTP surface: job submission, job status,
// per-user listings, video metadata lookup, and a health endpoint. All
// responses are JSON and, when a token is configured, every endpoint requires
// bearer authentication.
package api
