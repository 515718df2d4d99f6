package testsupport

import (
	"context"
	"testing"

	"scribe/internal/config"
	"scribe/internal/media"
	"scribe/internal/queue"
)

// MustOpenQueue opens a queue.Store for tests and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenMedia opens a media.Store for tests and registers cleanup.
func MustOpenMedia(t testing.TB, cfg *config.Config) *media.Store {
	t.Helper()

	store, err := media.Open(cfg)
	if err != nil {
		t.Fatalf("media.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SubmitJob enqueues a job for tests using the provided store.
func SubmitJob(t testing.TB, store *queue.Store, url, userID string) *queue.Job {
	t.Helper()

	job, err := store.Submit(context.Background(), queue.Payload{URL: url, UserID: userID})
	if err != nil {
		t.Fatalf("store.Submit: %v", err)
	}
	return job
}
