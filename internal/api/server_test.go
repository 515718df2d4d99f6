package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/media"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/testsupport"
)

const goodURL = "https://www.youtube.com/watch?v=abc123"

type stubResolver struct {
	info media.VideoInfo
	err  error
}

func (s *stubResolver) ResolveMetadata(_ context.Context, _ string) (media.VideoInfo, error) {
	return s.info, s.err
}

type testServer struct {
	base     string
	token    string
	jobs     *queue.Store
	media    *media.Store
	client   *http.Client
	resolver *stubResolver
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	jobs := testsupport.MustOpenQueue(t, cfg)
	mediaStore := testsupport.MustOpenMedia(t, cfg)
	resolver := &stubResolver{info: media.VideoInfo{Title: "Resolved", Duration: 42}}

	srv := api.NewServer(cfg, jobs, mediaStore, resolver, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		srv.Stop()
	})

	return &testServer{
		base:     "http://" + srv.Addr(),
		token:    cfg.Paths.APIToken,
		jobs:     jobs,
		media:    mediaStore,
		client:   &http.Client{},
		resolver: resolver,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.base+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, buf.Bytes()
}

func TestSubmitAcceptsValidURL(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodPost, "/api/jobs", api.SubmitRequest{URL: goodURL, UserID: "user-1"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}

	var view api.JobView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.ID == 0 || view.Status != string(queue.StatusWaiting) || view.URL != goodURL {
		t.Fatalf("unexpected job view: %#v", view)
	}
}

func TestSubmitRejectsInvalidURLs(t *testing.T) {
	ts := newTestServer(t, nil)

	cases := []string{
		"",
		"not a url",
		"ftp://youtube.com/watch?v=abc",
		"https://vimeo.com/12345",
		"https://youtube.com/playlist?list=xyz",
		"https://youtu.be/",
	}
	for _, raw := range cases {
		resp, body := ts.do(t, http.MethodPost, "/api/jobs", api.SubmitRequest{URL: raw})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d: %s", raw, resp.StatusCode, body)
		}
	}

	jobs, err := ts.jobs.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("rejected submissions must not enqueue, found %d jobs", len(jobs))
	}
}

func TestSubmitWithSnapshotSeedsVideoRecord(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.do(t, http.MethodPost, "/api/jobs", api.SubmitRequest{
		URL:       goodURL,
		UserID:    "user-1",
		VideoInfo: &media.VideoInfo{Title: "Prefetched Title", Thumbnail: "https://img/1.jpg"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	projection, err := ts.media.ProjectionByURL(context.Background(), goodURL)
	if err != nil {
		t.Fatalf("ProjectionByURL failed: %v", err)
	}
	if projection == nil || projection.Title != "Prefetched Title" {
		t.Fatalf("expected seeded video record, got %#v", projection)
	}
	if projection.Status != media.VideoPending {
		t.Fatalf("expected pending status, got %s", projection.Status)
	}
}

func TestJobStatusMergesVideo(t *testing.T) {
	ts := newTestServer(t, nil)

	submitted := testsupport.SubmitJob(t, ts.jobs, goodURL, "user-1")
	video, err := ts.media.UpsertVideo(context.Background(), media.Video{URL: goodURL, Title: "A Talk"})
	if err != nil {
		t.Fatalf("UpsertVideo failed: %v", err)
	}
	if _, err := ts.media.UpsertTranscription(context.Background(), media.Transcription{VideoID: video.ID, Text: "hi"}); err != nil {
		t.Fatalf("UpsertTranscription failed: %v", err)
	}

	resp, body := ts.do(t, http.MethodGet, fmt.Sprintf("/api/jobs/%d/status", submitted.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var view api.JobView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Video == nil || !view.Video.HasTranscription || view.Video.Title != "A Talk" {
		t.Fatalf("expected merged video view, got %#v", view.Video)
	}
}

func TestJobStatusUnknownJobReturns404(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.do(t, http.MethodGet, "/api/jobs/424242/status", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestJobStatusReportsFinality(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	retrying := testsupport.SubmitJob(t, ts.jobs, "https://youtube.com/watch?v=a1", "")
	if _, err := ts.jobs.ClaimNextReady(ctx); err != nil {
		t.Fatalf("ClaimNextReady failed: %v", err)
	}
	if _, err := ts.jobs.Fail(ctx, retrying.ID, "backend down", false); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	resp, body := ts.do(t, http.MethodGet, fmt.Sprintf("/api/jobs/%d/status", retrying.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var view api.JobView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Final || view.FailureReason != "backend down" {
		t.Fatalf("retrying job must not be final: %#v", view)
	}

	doomed := testsupport.SubmitJob(t, ts.jobs, "https://youtube.com/watch?v=b2", "")
	if _, err := ts.jobs.ClaimNextReady(ctx); err != nil {
		t.Fatalf("ClaimNextReady failed: %v", err)
	}
	if _, err := ts.jobs.Fail(ctx, doomed.ID, "video is private", true); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	resp, body = ts.do(t, http.MethodGet, fmt.Sprintf("/api/jobs/%d/status", doomed.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !view.Final || view.FailureReason != "video is private" {
		t.Fatalf("terminal failure must surface final=true: %#v", view)
	}
}

func TestListFiltersJobsByUser(t *testing.T) {
	ts := newTestServer(t, nil)

	testsupport.SubmitJob(t, ts.jobs, "https://youtube.com/watch?v=a1", "user-1")
	testsupport.SubmitJob(t, ts.jobs, "https://youtube.com/watch?v=b2", "user-2")
	testsupport.SubmitJob(t, ts.jobs, "https://youtube.com/watch?v=c3", "user-1")

	resp, body := ts.do(t, http.MethodGet, "/api/jobs?user=user-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var listing api.JobListResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(listing.Jobs) != 2 {
		t.Fatalf("expected two jobs for user-1, got %d", len(listing.Jobs))
	}
	for _, job := range listing.Jobs {
		if job.UserID != "user-1" {
			t.Fatalf("foreign job in listing: %#v", job)
		}
	}
}

func TestVideoInfoEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodGet, "/api/videos/info?url="+url.QueryEscape(goodURL), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var info api.VideoInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if info.Info.Title != "Resolved" || info.Info.Duration != 42 {
		t.Fatalf("unexpected metadata: %#v", info)
	}
}

func TestVideoInfoTerminalErrorReturns404(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.resolver.err = services.Wrap(services.ErrVideoPrivate, "ytdlp", "resolve metadata", "video is private", nil)

	resp, _ := ts.do(t, http.MethodGet, "/api/videos/info?url="+url.QueryEscape(goodURL), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for private video, got %d", resp.StatusCode)
	}
}

func TestVideoDetailEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	ctx := context.Background()
	video, err := ts.media.UpsertVideo(ctx, media.Video{URL: goodURL, Title: "A Talk", Status: media.VideoCompleted})
	if err != nil {
		t.Fatalf("UpsertVideo failed: %v", err)
	}
	if _, err := ts.media.UpsertTranscription(ctx, media.Transcription{VideoID: video.ID, Text: "hello", Confidence: 0.8}); err != nil {
		t.Fatalf("UpsertTranscription failed: %v", err)
	}
	if _, err := ts.media.UpsertAnalysis(ctx, media.Analysis{VideoID: video.ID, Summary: "greeting", KeyPoints: []string{"hi"}, Sentiment: media.SentimentNeutral}); err != nil {
		t.Fatalf("UpsertAnalysis failed: %v", err)
	}

	resp, body := ts.do(t, http.MethodGet, "/api/videos/detail?url="+url.QueryEscape(goodURL), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var detail api.VideoDetailResponse
	if err := json.Unmarshal(body, &detail); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if detail.Transcription == nil || detail.Transcription.Text != "hello" {
		t.Fatalf("expected transcription, got %#v", detail.Transcription)
	}
	if detail.Analysis == nil || detail.Analysis.Summary != "greeting" {
		t.Fatalf("expected analysis, got %#v", detail.Analysis)
	}
}

func TestVideoDetailUnknownURLReturns404(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.do(t, http.MethodGet, "/api/videos/detail?url="+url.QueryEscape(goodURL), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unprocessed url, got %d", resp.StatusCode)
	}
}

func TestHealthEndpointCountsBuckets(t *testing.T) {
	ts := newTestServer(t, nil)

	testsupport.SubmitJob(t, ts.jobs, "https://youtube.com/watch?v=a1", "")
	testsupport.SubmitJob(t, ts.jobs, "https://youtube.com/watch?v=b2", "")

	resp, body := ts.do(t, http.MethodGet, "/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var health api.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if health.Total != 2 || health.Waiting != 2 {
		t.Fatalf("unexpected health counts: %#v", health)
	}
}

func TestBearerTokenAuth(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "secret-token"
	})

	// Request without the token.
	req, _ := http.NewRequest(http.MethodGet, ts.base+"/api/health", nil)
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	// The helper attaches the configured token.
	authed, _ := ts.do(t, http.MethodGet, "/api/health", nil)
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}
}
