package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scribe/internal/api"
	"scribe/internal/media"
)

// daemonClient talks to the scribed HTTP API.
type daemonClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func newDaemonClient(server, token string) *daemonClient {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return &daemonClient{
		baseURL: strings.TrimRight(server, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *daemonClient) submit(ctx context.Context, videoURL, userID string) (api.JobView, error) {
	var view api.JobView
	err := c.do(ctx, http.MethodPost, "/api/jobs", api.SubmitRequest{URL: videoURL, UserID: userID}, &view)
	return view, err
}

func (c *daemonClient) jobStatus(ctx context.Context, id int64) (api.JobView, error) {
	var view api.JobView
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/%d/status", id), nil, &view)
	return view, err
}

func (c *daemonClient) listJobs(ctx context.Context, userID string) (api.JobListResponse, error) {
	path := "/api/jobs"
	if userID != "" {
		path += "?user=" + url.QueryEscape(userID)
	}
	var listing api.JobListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &listing)
	return listing, err
}

func (c *daemonClient) videoInfo(ctx context.Context, videoURL string) (media.VideoInfo, error) {
	var response api.VideoInfoResponse
	err := c.do(ctx, http.MethodGet, "/api/videos/info?url="+url.QueryEscape(videoURL), nil, &response)
	return response.Info, err
}

func (c *daemonClient) videoDetail(ctx context.Context, videoURL string) (api.VideoDetailResponse, error) {
	var response api.VideoDetailResponse
	err := c.do(ctx, http.MethodGet, "/api/videos/detail?url="+url.QueryEscape(videoURL), nil, &response)
	return response, err
}

func (c *daemonClient) health(ctx context.Context) (api.HealthResponse, error) {
	var health api.HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &health)
	return health, err
}

func (c *daemonClient) do(ctx context.Context, method, path string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("scribed unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var errResp api.ErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
