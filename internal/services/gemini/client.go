// Package gemini wraps the generative language API used to turn transcripts
// into structured analyses.
package gemini

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

	"scribe/internal/media"
	"scribe/internal/services"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel       = "gemini-2.0-flash"
	defaultHTTPTimeout = 60 * time.Second
)

// Client calls the generative language API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option customizes the analysis client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *Client) {
		model = strings.TrimSpace(model)
		if model != "" {
			c.model = model
		}
	}
}

// NewClient constructs an analysis client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Analysis is the structured result extracted from the model response.
type Analysis struct {
	Summary       string   `json:"summary"`
	KeyPoints     []string `json:"keyPoints"`
	Sentiment     string   `json:"sentiment"`
	Topics        []string `json:"topics"`
	SuggestedTags []string `json:"suggestedTags"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// AnalyzeTranscript sends the transcript to the model and extracts the
// structured analysis from its response. Responses missing the required
// fields fail with ErrInvalidAnalysis, which is retryable: the model is not
// deterministic and a later attempt may produce well-formed output.
func (c *Client) AnalyzeTranscript(ctx context.Context, transcript string) (Analysis, error) {
	var empty Analysis
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return empty, services.Wrap(services.ErrValidation, "gemini", "analyze", "transcript required", nil)
	}
	if c.apiKey == "" {
		return empty, services.Wrap(services.ErrValidation, "gemini", "analyze", "api key required", nil)
	}

	request := generateRequest{
		Contents: []content{{Parts: []part{{Text: AnalysisPrompt + "\n\n" + transcript}}}},
	}
	encoded, err := json.Marshal(request)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "gemini", "analyze", "encode request", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "models", c.model+":generateContent")
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "gemini", "analyze", "build url", err)
	}
	endpoint += "?key=" + url.QueryEscape(c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "gemini", "analyze", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "gemini", "analyze", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "gemini", "analyze", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, services.Wrap(services.ErrTransient, "gemini", "analyze",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var response generateResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return empty, services.Wrap(services.ErrTransient, "gemini", "analyze", "decode response", err)
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return empty, services.Wrap(services.ErrInvalidAnalysis, "gemini", "analyze", "response contained no candidates", nil)
	}

	var text strings.Builder
	for _, p := range response.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	return ParseAnalysis(text.String())
}

// ParseAnalysis extracts the structured analysis from raw model text. The
// model often wraps the JSON in prose or markdown fences, so the parser takes
// the span from the first opening brace to the last closing brace.
func ParseAnalysis(raw string) (Analysis, error) {
	var empty Analysis

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return empty, services.Wrap(services.ErrInvalidAnalysis, "gemini", "parse analysis", "no JSON object in response", nil)
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &analysis); err != nil {
		return empty, services.Wrap(services.ErrInvalidAnalysis, "gemini", "parse analysis", "malformed JSON object", err)
	}

	if strings.TrimSpace(analysis.Summary) == "" {
		return empty, services.Wrap(services.ErrInvalidAnalysis, "gemini", "parse analysis", "summary missing", nil)
	}
	if len(analysis.KeyPoints) == 0 {
		return empty, services.Wrap(services.ErrInvalidAnalysis, "gemini", "parse analysis", "key points missing", nil)
	}
	if strings.TrimSpace(analysis.Sentiment) == "" {
		return empty, services.Wrap(services.ErrInvalidAnalysis, "gemini", "parse analysis", "sentiment missing", nil)
	}
	analysis.Sentiment = string(media.NormalizeSentiment(analysis.Sentiment))

	return analysis, nil
}
