package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const userAgent = "Scribe/0.1.0"

// Service defines the notification surface exposed to the workflow.
type Service interface {
	NotifyJobCompleted(ctx context.Context, title string, isMusic bool) error
	NotifyJobFailed(ctx context.Context, url, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		completions: cfg.Notifications.Completions,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	completions bool
	errors      bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, title string, isMusic bool) error {
	if !n.completions {
		return nil
	}
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Transcription ready: %s", title)
	if isMusic {
		message = fmt.Sprintf("Music content detected: %s", title)
	}
	data := payload{
		title:   "Scribe - Job Complete",
		message: message,
		tags:    []string{"scribe", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, url, reason string) error {
	if !n.errors {
		return nil
	}
	url = strings.TrimSpace(url)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Scribe - Job Failed",
		message:  fmt.Sprintf("Processing failed for %s: %s", url, reason),
		tags:     []string{"scribe", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Scribe - Test",
		message:  "Notification system test",
		tags:     []string{"scribe", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string, bool) error { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string) error  { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
