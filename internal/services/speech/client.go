// Package speech wraps the asynchronous speech recognition REST API. Audio is
// submitted by storage reference, the returned long-running operation is
// polled until it settles, and the per-segment transcripts are merged into a
// single text with an aggregate confidence.
package speech

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

	"scribe/internal/services"
)

const (
	defaultBaseURL          = "https://speech.googleapis.com/v1"
	defaultLanguage         = "en-US"
	defaultOperationTimeout = 10 * time.Minute
	defaultPollInterval     = 5 * time.Second
	defaultHTTPTimeout      = 30 * time.Second

	audioEncoding   = "LINEAR16"
	audioSampleRate = 16000
)

// contextPhrases bias recognition toward vocabulary common in the source
// material.
var contextPhrases = []string{"video", "youtube", "subscribe", "like", "comment"}

// Client calls the speech recognition API.
type Client struct {
	apiKey           string
	baseURL          string
	language         string
	operationTimeout time.Duration
	pollInterval     time.Duration
	httpClient       *http.Client
}

// Option customizes the speech client.
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

// WithLanguage sets the recognition language code.
func WithLanguage(language string) Option {
	return func(c *Client) {
		language = strings.TrimSpace(language)
		if language != "" {
			c.language = language
		}
	}
}

// WithOperationTimeout bounds how long an operation is polled before the
// attempt is abandoned.
func WithOperationTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.operationTimeout = timeout
		}
	}
}

// WithPollInterval sets the delay between operation status checks.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewClient constructs a speech recognition client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:           strings.TrimSpace(apiKey),
		baseURL:          defaultBaseURL,
		language:         defaultLanguage,
		operationTimeout: defaultOperationTimeout,
		pollInterval:     defaultPollInterval,
		httpClient:       &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Transcript is the merged recognition result.
type Transcript struct {
	Text       string
	Confidence float64
}

type recognitionRequest struct {
	Config recognitionConfig `json:"config"`
	Audio  recognitionAudio  `json:"audio"`
}

type recognitionConfig struct {
	Encoding                   string          `json:"encoding"`
	SampleRateHertz            int             `json:"sampleRateHertz"`
	LanguageCode               string          `json:"languageCode"`
	EnableAutomaticPunctuation bool            `json:"enableAutomaticPunctuation"`
	ProfanityFilter            bool            `json:"profanityFilter"`
	SpeechContexts             []speechContext `json:"speechContexts,omitempty"`
}

type speechContext struct {
	Phrases []string `json:"phrases"`
}

type recognitionAudio struct {
	URI string `json:"uri"`
}

type operationPayload struct {
	Name     string              `json:"name"`
	Done     bool                `json:"done"`
	Error    *operationError     `json:"error,omitempty"`
	Response recognitionResponse `json:"response"`
}

type operationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type recognitionResponse struct {
	Results []recognitionResult `json:"results"`
}

type recognitionResult struct {
	Alternatives []recognitionAlternative `json:"alternatives"`
}

type recognitionAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Transcribe submits the staged audio at uri and waits for the recognition
// operation to settle. Audio with no recognizable speech yields ErrNoSpeech,
// which is terminal: repeating the attempt cannot change the content.
func (c *Client) Transcribe(ctx context.Context, uri string) (Transcript, error) {
	var empty Transcript
	if strings.TrimSpace(uri) == "" {
		return empty, services.Wrap(services.ErrValidation, "speech", "transcribe", "audio reference required", nil)
	}
	if c.apiKey == "" {
		return empty, services.Wrap(services.ErrValidation, "speech", "transcribe", "api key required", nil)
	}

	operationName, err := c.startRecognition(ctx, uri)
	if err != nil {
		return empty, err
	}

	operation, err := c.waitForOperation(ctx, operationName)
	if err != nil {
		return empty, err
	}

	return mergeResults(operation.Response.Results)
}

func (c *Client) startRecognition(ctx context.Context, uri string) (string, error) {
	request := recognitionRequest{
		Config: recognitionConfig{
			Encoding:                   audioEncoding,
			SampleRateHertz:            audioSampleRate,
			LanguageCode:               c.language,
			EnableAutomaticPunctuation: true,
			ProfanityFilter:            true,
			SpeechContexts:             []speechContext{{Phrases: contextPhrases}},
		},
		Audio: recognitionAudio{URI: uri},
	}

	var operation operationPayload
	if err := c.doJSON(ctx, http.MethodPost, "/speech:longrunningrecognize", request, &operation); err != nil {
		return "", err
	}
	if operation.Name == "" {
		return "", services.Wrap(services.ErrTransient, "speech", "transcribe", "operation name missing from response", nil)
	}
	return operation.Name, nil
}

func (c *Client) waitForOperation(ctx context.Context, operationName string) (operationPayload, error) {
	var empty operationPayload

	deadline := time.NewTimer(c.operationTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var operation operationPayload
		if err := c.doJSON(ctx, http.MethodGet, "/operations/"+operationName, nil, &operation); err != nil {
			return empty, err
		}
		if operation.Done {
			if operation.Error != nil {
				return empty, services.Wrap(services.ErrTransient, "speech", "transcribe",
					fmt.Sprintf("operation failed: %s", operation.Error.Message), nil)
			}
			return operation, nil
		}

		select {
		case <-ctx.Done():
			return empty, services.Wrap(services.ErrTransient, "speech", "transcribe", "canceled while polling", ctx.Err())
		case <-deadline.C:
			return empty, services.Wrap(services.ErrTransient, "speech", "transcribe",
				fmt.Sprintf("operation %s did not settle within %s", operationName, c.operationTimeout), nil)
		case <-ticker.C:
		}
	}
}

// mergeResults concatenates the top alternative of each segment in order and
// averages their confidences, clamped to [0, 1].
func mergeResults(results []recognitionResult) (Transcript, error) {
	var empty Transcript
	var parts []string
	var confidenceSum float64
	var counted int

	for _, result := range results {
		if len(result.Alternatives) == 0 {
			continue
		}
		top := result.Alternatives[0]
		if text := strings.TrimSpace(top.Transcript); text != "" {
			parts = append(parts, text)
			confidenceSum += top.Confidence
			counted++
		}
	}

	if counted == 0 {
		return empty, services.Wrap(services.ErrNoSpeech, "speech", "transcribe", "recognition returned no speech", nil)
	}

	confidence := confidenceSum / float64(counted)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Transcript{
		Text:       strings.Join(parts, " "),
		Confidence: confidence,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, target any) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return services.Wrap(services.ErrTransient, "speech", "request", "build url", err)
	}
	endpoint += "?key=" + url.QueryEscape(c.apiKey)

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return services.Wrap(services.ErrTransient, "speech", "request", "encode request", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "speech", "request", "build request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "speech", "request", "request failed", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "speech", "request", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.ErrTransient, "speech", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody))), nil)
	}
	if err := json.Unmarshal(responseBody, target); err != nil {
		return services.Wrap(services.ErrTransient, "speech", "request", "decode response", err)
	}
	return nil
}
