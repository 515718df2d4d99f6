package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"scribe/internal/classifier"
	"scribe/internal/media"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/gemini"
	"scribe/internal/services/speech"
)

const testURL = "https://youtube.com/watch?v=abc123"

type stubResolver struct {
	info   media.VideoInfo
	err    error
	called bool
}

func (s *stubResolver) ResolveMetadata(_ context.Context, _ string) (media.VideoInfo, error) {
	s.called = true
	return s.info, s.err
}

type stubExtractor struct {
	dir        string
	err        error
	onDownload func()
}

func (s *stubExtractor) DownloadAudio(_ context.Context, _, _ string) (string, error) {
	if s.onDownload != nil {
		s.onDownload()
	}
	if s.err != nil {
		return "", s.err
	}
	path := filepath.Join(s.dir, "audio.wav")
	if err := os.WriteFile(path, []byte("wav"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type stubClassifier struct {
	kind       classifier.Kind
	err        error
	onClassify func()
}

func (s *stubClassifier) Classify(_ context.Context, _ string) (classifier.Classification, error) {
	if s.onClassify != nil {
		s.onClassify()
	}
	return classifier.Classification{Kind: s.kind}, s.err
}

type stubStager struct {
	uploads int
	deletes []string
	err     error
}

func (s *stubStager) Upload(_ context.Context, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.uploads++
	return "gs://staging/audio/test.wav", nil
}

func (s *stubStager) Delete(_ context.Context, uri string) error {
	s.deletes = append(s.deletes, uri)
	return nil
}

type stubTranscriber struct {
	transcript speech.Transcript
	err        error
	called     bool
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ string) (speech.Transcript, error) {
	s.called = true
	return s.transcript, s.err
}

type stubAnalyzer struct {
	analysis gemini.Analysis
	err      error
	called   bool
}

func (s *stubAnalyzer) AnalyzeTranscript(_ context.Context, _ string) (gemini.Analysis, error) {
	s.called = true
	return s.analysis, s.err
}

type fakeMediaStore struct {
	video         *media.Video
	transcription *media.Transcription
	analysis      *media.Analysis
	statuses      []media.VideoStatus
	clearedAudio  bool
}

func (f *fakeMediaStore) UpsertVideo(_ context.Context, video media.Video) (*media.Video, error) {
	video.ID = "video-1"
	f.video = &video
	return &video, nil
}

func (f *fakeMediaStore) SetVideoStatus(_ context.Context, _ string, status media.VideoStatus) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeMediaStore) UpsertTranscription(_ context.Context, tr media.Transcription) (*media.Transcription, error) {
	tr.ID = "tr-1"
	f.transcription = &tr
	return &tr, nil
}

func (f *fakeMediaStore) ClearTranscriptionAudioPath(_ context.Context, _ string) error {
	f.clearedAudio = true
	return nil
}

func (f *fakeMediaStore) UpsertAnalysis(_ context.Context, analysis media.Analysis) (*media.Analysis, error) {
	analysis.ID = "an-1"
	f.analysis = &analysis
	return &analysis, nil
}

type progressRecorder struct {
	percents []int
}

func (p *progressRecorder) SetProgress(_ context.Context, _ int64, percent int) error {
	p.percents = append(p.percents, percent)
	return nil
}

type fixture struct {
	resolver   *stubResolver
	extractor  *stubExtractor
	classifier *stubClassifier
	stager     *stubStager
	transcribe *stubTranscriber
	analyzer   *stubAnalyzer
	store      *fakeMediaStore
	progress   *progressRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		resolver:   &stubResolver{info: media.VideoInfo{Title: "Talk", Duration: 120}},
		extractor:  &stubExtractor{dir: t.TempDir()},
		classifier: &stubClassifier{kind: classifier.KindSpeech},
		stager:     &stubStager{},
		transcribe: &stubTranscriber{transcript: speech.Transcript{Text: "hello world", Confidence: 0.9}},
		analyzer: &stubAnalyzer{analysis: gemini.Analysis{
			Summary:   "a greeting",
			KeyPoints: []string{"hello"},
			Sentiment: "positive",
		}},
		store:    &fakeMediaStore{},
		progress: &progressRecorder{},
	}
}

func (f *fixture) orchestrator(t *testing.T) *pipeline.Orchestrator {
	t.Helper()
	return pipeline.New(
		f.resolver, f.extractor, f.classifier, f.stager,
		f.transcribe, f.analyzer, f.store, f.progress,
		t.TempDir(), nil,
	)
}

func newJob(payload queue.Payload) *queue.Job {
	return &queue.Job{ID: 1, Payload: payload, MaxAttempts: 3}
}

func TestHandleSpeechPath(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	result, err := o.Handle(context.Background(), newJob(queue.Payload{URL: testURL, UserID: "user-1"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if result.VideoID != "video-1" || result.Title != "Talk" || result.IsMusic {
		t.Fatalf("unexpected result: %#v", result)
	}

	wantProgress := []int{10, 20, 40, 70}
	if len(f.progress.percents) != len(wantProgress) {
		t.Fatalf("unexpected progress updates: %v", f.progress.percents)
	}
	for i, want := range wantProgress {
		if f.progress.percents[i] != want {
			t.Fatalf("progress[%d] = %d, want %d", i, f.progress.percents[i], want)
		}
	}

	if f.store.transcription == nil || f.store.transcription.Text != "hello world" {
		t.Fatalf("transcription not persisted: %#v", f.store.transcription)
	}
	if f.store.analysis == nil || f.store.analysis.Sentiment != media.SentimentPositive {
		t.Fatalf("analysis not persisted: %#v", f.store.analysis)
	}
	if !f.store.clearedAudio {
		t.Fatal("expected working audio path cleared on completion")
	}
	last := f.store.statuses[len(f.store.statuses)-1]
	if last != media.VideoCompleted {
		t.Fatalf("expected video completed, got %v", f.store.statuses)
	}
	if len(f.stager.deletes) != 1 {
		t.Fatalf("expected staged audio removed, got %v", f.stager.deletes)
	}
}

func TestHandleProgressMatchesStageBoundaries(t *testing.T) {
	f := newFixture(t)

	// 10 is the metadata checkpoint and 20 marks the persisted video record,
	// so both must be visible before the download runs; 40 marks the
	// downloaded audio and must be visible before classification.
	f.extractor.onDownload = func() {
		if got := f.progress.percents; len(got) != 2 || got[0] != 10 || got[1] != 20 {
			t.Errorf("progress before download = %v, want [10 20]", got)
		}
	}
	f.classifier.onClassify = func() {
		if got := f.progress.percents; len(got) != 3 || got[2] != 40 {
			t.Errorf("progress before classification = %v, want [10 20 40]", got)
		}
	}

	o := f.orchestrator(t)
	if _, err := o.Handle(context.Background(), newJob(queue.Payload{URL: testURL})); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if got := f.progress.percents; len(got) != 4 || got[3] != 70 {
		t.Fatalf("final progress sequence = %v, want [10 20 40 70]", got)
	}
}

func TestHandleMusicPathSkipsRecognition(t *testing.T) {
	f := newFixture(t)
	f.classifier.kind = classifier.KindMusic
	o := f.orchestrator(t)

	result, err := o.Handle(context.Background(), newJob(queue.Payload{URL: testURL}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !result.IsMusic {
		t.Fatalf("expected music result, got %#v", result)
	}
	if f.transcribe.called || f.analyzer.called {
		t.Fatal("music content must not reach recognition or analysis")
	}
	if f.stager.uploads != 0 {
		t.Fatal("music content must not be staged")
	}
	if f.store.transcription == nil || f.store.transcription.Text != media.MusicContentMarker {
		t.Fatalf("expected music marker transcription, got %#v", f.store.transcription)
	}
	if !f.store.transcription.IsMusic || f.store.transcription.Confidence != 1.0 {
		t.Fatalf("unexpected marker record: %#v", f.store.transcription)
	}
	if f.store.statuses[len(f.store.statuses)-1] != media.VideoCompleted {
		t.Fatalf("expected video completed, got %v", f.store.statuses)
	}
}

func TestHandleSubmittedSnapshotSkipsResolver(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	snapshot, _ := json.Marshal(media.VideoInfo{Title: "Prefetched", Duration: 33})
	_, err := o.Handle(context.Background(), newJob(queue.Payload{URL: testURL, VideoInfo: snapshot}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if f.resolver.called {
		t.Fatal("resolver must not run when a usable snapshot was submitted")
	}
	if f.store.video.Title != "Prefetched" {
		t.Fatalf("expected snapshot metadata persisted, got %#v", f.store.video)
	}
}

func TestHandleTerminalResolverErrorBeforeVideoRecord(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = services.Wrap(services.ErrVideoPrivate, "ytdlp", "resolve metadata", "video is private", nil)
	o := f.orchestrator(t)

	_, err := o.Handle(context.Background(), newJob(queue.Payload{URL: testURL}))
	if !errors.Is(err, services.ErrVideoPrivate) {
		t.Fatalf("expected private-video error, got %v", err)
	}
	if !services.IsTerminal(err) {
		t.Fatal("private video must be terminal")
	}
	if len(f.store.statuses) != 0 {
		t.Fatalf("no video record exists to mark failed, got %v", f.store.statuses)
	}
}

func TestHandleFailureMarksVideoFailed(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = services.Wrap(services.ErrTransient, "ytdlp", "download audio", "network down", nil)
	o := f.orchestrator(t)

	_, err := o.Handle(context.Background(), newJob(queue.Payload{URL: testURL}))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(f.store.statuses) == 0 || f.store.statuses[len(f.store.statuses)-1] != media.VideoFailed {
		t.Fatalf("expected video marked failed, got %v", f.store.statuses)
	}
}

func TestHandleCleansUpStagedAudioOnTranscribeFailure(t *testing.T) {
	f := newFixture(t)
	f.transcribe.err = services.Wrap(services.ErrTransient, "speech", "transcribe", "backend down", nil)
	o := f.orchestrator(t)

	_, err := o.Handle(context.Background(), newJob(queue.Payload{URL: testURL}))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(f.stager.deletes) != 1 {
		t.Fatalf("expected staged audio removed on failure, got %v", f.stager.deletes)
	}
}

func TestHandleNoSpeechIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.transcribe.err = services.Wrap(services.ErrNoSpeech, "speech", "transcribe", "recognition returned no speech", nil)
	o := f.orchestrator(t)

	_, err := o.Handle(context.Background(), newJob(queue.Payload{URL: testURL}))
	if !services.IsTerminal(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if f.store.statuses[len(f.store.statuses)-1] != media.VideoFailed {
		t.Fatalf("expected video marked failed, got %v", f.store.statuses)
	}
}

func TestHandleRemovesLocalAudio(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)

	if _, err := o.Handle(context.Background(), newJob(queue.Payload{URL: testURL})); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	entries, err := os.ReadDir(f.extractor.dir)
	if err != nil {
		t.Fatalf("read extractor dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected local audio removed, found %d entries", len(entries))
	}
}
