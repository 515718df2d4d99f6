package media_test

import (
	"context"
	"testing"

	"scribe/internal/media"
	"scribe/internal/testsupport"
)

const testURL = "https://youtube.com/watch?v=abc123"

func TestUpsertVideoCreatesThenUpdates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenMedia(t, cfg)

	ctx := context.Background()
	first, err := store.UpsertVideo(ctx, media.Video{
		URL:    testURL,
		Title:  "First Title",
		Status: media.VideoPending,
		UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("UpsertVideo failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}

	second, err := store.UpsertVideo(ctx, media.Video{
		URL:      testURL,
		Title:    "Updated Title",
		Duration: 321,
		Status:   media.VideoProcessing,
	})
	if err != nil {
		t.Fatalf("second UpsertVideo failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same record, got ids %s and %s", first.ID, second.ID)
	}
	if second.Title != "Updated Title" || second.Duration != 321 {
		t.Fatalf("expected updated fields, got %#v", second)
	}
	if second.UserID != "user-1" {
		t.Fatalf("expected owner preserved, got %q", second.UserID)
	}
	if second.Status != media.VideoProcessing {
		t.Fatalf("expected processing status, got %s", second.Status)
	}
}

func TestUpsertVideoIsIdempotentAcrossResubmission(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenMedia(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := store.UpsertVideo(ctx, media.Video{URL: testURL, Title: "Title"}); err != nil {
			t.Fatalf("UpsertVideo round %d failed: %v", i, err)
		}
	}

	video, err := store.GetVideoByURL(ctx, testURL)
	if err != nil {
		t.Fatalf("GetVideoByURL failed: %v", err)
	}
	if video == nil {
		t.Fatal("expected video record")
	}

	// A projection query doubles as a row-count check via the unique url key.
	projection, err := store.ProjectionByURL(ctx, testURL)
	if err != nil {
		t.Fatalf("ProjectionByURL failed: %v", err)
	}
	if projection == nil || projection.ID != video.ID {
		t.Fatalf("expected single converged record, got %#v", projection)
	}
}

func TestUpsertVideoConcurrentCreatorsConverge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenMedia(t, cfg)

	ctx := context.Background()
	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func(n int) {
			video, err := store.UpsertVideo(ctx, media.Video{URL: testURL, Title: "Race"})
			if err != nil {
				t.Errorf("concurrent UpsertVideo %d failed: %v", n, err)
				results <- ""
				return
			}
			results <- video.ID
		}(i)
	}
	a, b := <-results, <-results
	if a == "" || b == "" {
		t.Fatal("one writer failed")
	}
	if a != b {
		t.Fatalf("concurrent writers produced distinct records: %s vs %s", a, b)
	}
}

func TestUpsertTranscriptionNeverDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenMedia(t, cfg)

	ctx := context.Background()
	video, err := store.UpsertVideo(ctx, media.Video{URL: testURL, Title: "Title"})
	if err != nil {
		t.Fatalf("UpsertVideo failed: %v", err)
	}

	first, err := store.UpsertTranscription(ctx, media.Transcription{
		VideoID:    video.ID,
		Text:       "first pass",
		Confidence: 0.8,
		AudioPath:  "/tmp/audio.wav",
	})
	if err != nil {
		t.Fatalf("UpsertTranscription failed: %v", err)
	}

	second, err := store.UpsertTranscription(ctx, media.Transcription{
		VideoID:    video.ID,
		Text:       "retry pass",
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("second UpsertTranscription failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected converged transcription row, got %s and %s", first.ID, second.ID)
	}
	if second.Text != "retry pass" || second.Confidence != 0.9 {
		t.Fatalf("expected updated transcription, got %#v", second)
	}
}

func TestClearTranscriptionAudioPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenMedia(t, cfg)

	ctx := context.Background()
	video, err := store.UpsertVideo(ctx, media.Video{URL: testURL})
	if err != nil {
		t.Fatalf("UpsertVideo failed: %v", err)
	}
	if _, err := store.UpsertTranscription(ctx, media.Transcription{VideoID: video.ID, Text: "t", AudioPath: "/tmp/a.wav"}); err != nil {
		t.Fatalf("UpsertTranscription failed: %v", err)
	}

	if err := store.ClearTranscriptionAudioPath(ctx, video.ID); err != nil {
		t.Fatalf("ClearTranscriptionAudioPath failed: %v", err)
	}
	tr, err := store.GetTranscription(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetTranscription failed: %v", err)
	}
	if tr.AudioPath != "" {
		t.Fatalf("expected cleared audio path, got %q", tr.AudioPath)
	}
	if tr.Text != "t" {
		t.Fatalf("clearing audio path must not touch text, got %q", tr.Text)
	}
}

func TestUpsertAnalysisCoercesSentiment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenMedia(t, cfg)

	ctx := context.Background()
	video, err := store.UpsertVideo(ctx, media.Video{URL: testURL})
	if err != nil {
		t.Fatalf("UpsertVideo failed: %v", err)
	}

	analysis, err := store.UpsertAnalysis(ctx, media.Analysis{
		VideoID:   video.ID,
		Summary:   "a talk about things",
		KeyPoints: []string{"one", "two"},
		Sentiment: media.Sentiment("enthusiastic"),
		Topics:    []string{"things"},
	})
	if err != nil {
		t.Fatalf("UpsertAnalysis failed: %v", err)
	}
	if analysis.Sentiment != media.SentimentNeutral {
		t.Fatalf("expected out-of-domain sentiment coerced to neutral, got %s", analysis.Sentiment)
	}
	if len(analysis.KeyPoints) != 2 {
		t.Fatalf("expected key points round trip, got %#v", analysis.KeyPoints)
	}
	if analysis.SuggestedTags == nil {
		t.Fatal("expected empty slice, not nil, for absent tags")
	}
}

func TestProjectionReflectsRecordPresence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenMedia(t, cfg)

	ctx := context.Background()
	video, err := store.UpsertVideo(ctx, media.Video{URL: testURL, Title: "Title", Status: media.VideoProcessing})
	if err != nil {
		t.Fatalf("UpsertVideo failed: %v", err)
	}

	projection, err := store.ProjectionByURL(ctx, testURL)
	if err != nil {
		t.Fatalf("ProjectionByURL failed: %v", err)
	}
	if projection.HasTranscription || projection.HasAnalysis {
		t.Fatalf("expected no related records yet, got %#v", projection)
	}

	if _, err := store.UpsertTranscription(ctx, media.Transcription{VideoID: video.ID, Text: "hello"}); err != nil {
		t.Fatalf("UpsertTranscription failed: %v", err)
	}
	if _, err := store.UpsertAnalysis(ctx, media.Analysis{VideoID: video.ID, Summary: "s", KeyPoints: []string{"k"}}); err != nil {
		t.Fatalf("UpsertAnalysis failed: %v", err)
	}

	projection, err = store.ProjectionByURL(ctx, testURL)
	if err != nil {
		t.Fatalf("ProjectionByURL failed: %v", err)
	}
	if !projection.HasTranscription || !projection.HasAnalysis {
		t.Fatalf("expected presence flags set, got %#v", projection)
	}

	missing, err := store.ProjectionByURL(ctx, "https://youtube.com/watch?v=unknown")
	if err != nil {
		t.Fatalf("ProjectionByURL for unknown url failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil projection for unknown url, got %#v", missing)
	}
}

func TestGetVideoDetailAssemblesRelatedRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenMedia(t, cfg)

	ctx := context.Background()
	video, err := store.UpsertVideo(ctx, media.Video{URL: testURL, Title: "A Talk", Status: media.VideoCompleted})
	if err != nil {
		t.Fatalf("UpsertVideo failed: %v", err)
	}

	detail, err := store.GetVideoDetail(ctx, testURL)
	if err != nil {
		t.Fatalf("GetVideoDetail failed: %v", err)
	}
	if detail.Video.ID != video.ID || detail.Transcription != nil || detail.Analysis != nil {
		t.Fatalf("expected bare video detail, got %#v", detail)
	}

	if _, err := store.UpsertTranscription(ctx, media.Transcription{VideoID: video.ID, Text: "hello world", Confidence: 0.9}); err != nil {
		t.Fatalf("UpsertTranscription failed: %v", err)
	}
	if _, err := store.UpsertAnalysis(ctx, media.Analysis{
		VideoID:   video.ID,
		Summary:   "greeting",
		KeyPoints: []string{"says hello"},
		Sentiment: media.SentimentPositive,
	}); err != nil {
		t.Fatalf("UpsertAnalysis failed: %v", err)
	}

	detail, err = store.GetVideoDetail(ctx, testURL)
	if err != nil {
		t.Fatalf("GetVideoDetail failed: %v", err)
	}
	if detail.Transcription == nil || detail.Transcription.Text != "hello world" {
		t.Fatalf("expected transcription in detail, got %#v", detail.Transcription)
	}
	if detail.Analysis == nil || detail.Analysis.Sentiment != media.SentimentPositive {
		t.Fatalf("expected analysis in detail, got %#v", detail.Analysis)
	}

	missing, err := store.GetVideoDetail(ctx, "https://youtube.com/watch?v=unknown")
	if err != nil {
		t.Fatalf("GetVideoDetail for unknown url failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil detail for unknown url, got %#v", missing)
	}
}
