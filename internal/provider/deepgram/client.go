// Package deepgram calls the Deepgram pre-recorded transcription API.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL  = "https://api.deepgram.com"
	defaultModel    = "nova-3"
	defaultLanguage = "en"
	listenPath      = "/v1/listen"
	maxErrorBody    = 4 << 10
)

// ErrMissingAPIKey is returned when the client has no API key configured.
var ErrMissingAPIKey = errors.New("deepgram: api key not configured")

// Client transcribes audio through Deepgram.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	timeout    time.Duration
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithModel selects the speech model.
func WithModel(model string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(model); trimmed != "" {
			c.model = trimmed
		}
	}
}

// WithLanguage selects the spoken language.
func WithLanguage(language string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(language); trimmed != "" {
			c.language = trimmed
		}
	}
}

// WithTimeout bounds each Transcribe call. Zero leaves calls unbounded.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// New constructs a Client. The key is checked on first use, not here.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		language:   defaultLanguage,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError represents a non-2xx response from Deepgram.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("deepgram request failed with status %d", e.Status)
	}
	return fmt.Sprintf("deepgram request failed (%d): %s", e.Status, e.Message)
}

// response mirrors the parts of the listen response we read. Every level is
// optional so a reshaped payload degrades to an empty transcript.
type response struct {
	Results *struct {
		Channels []struct {
			Alternatives []struct {
				Transcript *string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (r response) transcript() string {
	if r.Results == nil || len(r.Results.Channels) == 0 {
		return ""
	}
	alts := r.Results.Channels[0].Alternatives
	if len(alts) == 0 || alts[0].Transcript == nil {
		return ""
	}
	return *alts[0].Transcript
}

// Transcribe sends the audio in a single attempt and returns the best transcript.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	query := url.Values{}
	query.Set("model", c.model)
	query.Set("smart_format", "true")
	query.Set("language", c.language)
	endpoint := c.baseURL + listenPath + "?" + query.Encode()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return payload.transcript(), nil
}

func extractError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		ErrMsg string `json:"err_msg"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	if payload.ErrMsg != "" {
		return payload.ErrMsg
	}
	if payload.Reason != "" {
		return payload.Reason
	}
	return strings.TrimSpace(string(data))
}
