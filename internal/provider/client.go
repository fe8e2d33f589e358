// Package provider is a small client for the Hugging Face Inference API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Default settings.
const (
	DefaultBaseURL        = "https://api-inference.huggingface.co/models"
	DefaultTextModel      = "microsoft/DialoGPT-medium"
	DefaultSentimentModel = "bhadresh-savani/distilbert-base-uncased-emotion"
	DefaultSpeechModel    = "facebook/mms-tts-eng"
	DefaultImageModel     = "runwayml/stable-diffusion-v1-5"
	DefaultTimeout        = 60 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryWait      = 2 * time.Second
)

const redacted = "***REDACTED***"

// ErrNotConfigured is returned by every call when no API token is set.
var ErrNotConfigured = errors.New("inference provider not configured")

// ErrEmptyResponse is returned when the model answered with nothing usable.
var ErrEmptyResponse = errors.New("empty response from inference provider")

// Error is a non-200 answer from the API.
type Error struct {
	Model      string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("inference %s: status %d: %s", e.Model, e.StatusCode, e.Body)
}

// Temporary reports whether the model was still loading.
func (e *Error) Temporary() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

// Config holds the client settings.
type Config struct {
	Token          string
	BaseURL        string
	TextModel      string
	SentimentModel string
	SpeechModel    string
	ImageModel     string
	Timeout        time.Duration
	MaxRetries     int
	RetryWait      time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TextModel == "" {
		c.TextModel = DefaultTextModel
	}
	if c.SentimentModel == "" {
		c.SentimentModel = DefaultSentimentModel
	}
	if c.SpeechModel == "" {
		c.SpeechModel = DefaultSpeechModel
	}
	if c.ImageModel == "" {
		c.ImageModel = DefaultImageModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryWait <= 0 {
		c.RetryWait = DefaultRetryWait
	}
}

// Client calls hosted models. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client. A zero Token yields a client whose calls all fail
// with ErrNotConfigured.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether a token is configured.
func (c *Client) Enabled() bool {
	return c.cfg.Token != ""
}

// Sentiment is the best scoring label of a classification.
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Generate completes prompt with the text model.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"inputs": prompt,
		"parameters": map[string]any{
			"max_new_tokens":     120,
			"temperature":        0.85,
			"do_sample":          true,
			"top_p":              0.92,
			"repetition_penalty": 1.15,
			"return_full_text":   false,
		},
	}
	body, err := c.post(ctx, c.cfg.TextModel, payload)
	if err != nil {
		return "", err
	}

	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode generation: %w", err)
	}
	if len(out) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimPrefix(out[0].GeneratedText, prompt)
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Classify runs the sentiment model and returns its best label.
func (c *Client) Classify(ctx context.Context, text string) (Sentiment, error) {
	body, err := c.post(ctx, c.cfg.SentimentModel, map[string]any{"inputs": text})
	if err != nil {
		return Sentiment{}, err
	}

	// The API nests the scores one level deeper for single inputs.
	var nested [][]Sentiment
	var labels []Sentiment
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) > 0 {
			labels = nested[0]
		}
	} else if err := json.Unmarshal(body, &labels); err != nil {
		return Sentiment{}, fmt.Errorf("failed to decode classification: %w", err)
	}
	if len(labels) == 0 {
		return Sentiment{}, ErrEmptyResponse
	}

	best := labels[0]
	for _, l := range labels[1:] {
		if l.Score > best.Score {
			best = l
		}
	}
	best.Label = strings.ToLower(best.Label)
	return best, nil
}

// Synthesize turns text into audio bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return c.binary(ctx, c.cfg.SpeechModel, text)
}

// Imagine renders an image for prompt.
func (c *Client) Imagine(ctx context.Context, prompt string) ([]byte, error) {
	return c.binary(ctx, c.cfg.ImageModel, "high quality, detailed, vibrant colors, "+prompt)
}

func (c *Client) binary(ctx context.Context, model, input string) ([]byte, error) {
	body, err := c.post(ctx, model, map[string]any{"inputs": input})
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrEmptyResponse
	}
	return body, nil
}

// post sends payload to model, retrying while the model loads or the
// request times out.
func (c *Client) post(ctx context.Context, model string, payload any) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		body, err = c.do(ctx, model, data)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryWait
	b.MaxInterval = 30 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("model", model).Int("attempt", attempt).Dur("wait", wait).Msg("Inference call failed, retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, model string, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+model, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.redactErr(fmt.Errorf("inference %s: %w", model, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.redactErr(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Model:      model,
			StatusCode: resp.StatusCode,
			Body:       c.redact(strings.TrimSpace(string(body))),
		}
	}
	return body, nil
}

func retryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) redact(s string) string {
	if c.cfg.Token == "" {
		return s
	}
	return strings.ReplaceAll(s, c.cfg.Token, redacted)
}

// redactErr keeps the error chain unless the message leaks the token.
func (c *Client) redactErr(err error) error {
	msg := err.Error()
	if clean := c.redact(msg); clean != msg {
		return errors.New(clean)
	}
	return err
}
