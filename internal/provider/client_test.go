package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "hf_secret_token"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		Token:      testToken,
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		RetryWait:  time.Millisecond,
	})
}

func TestNotConfigured(t *testing.T) {
	c := New(Config{})
	assert.False(t, c.Enabled())

	_, err := c.Generate(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.Classify(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.Imagine(context.Background(), "a pumpkin coach")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGenerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/"+DefaultTextModel))

		var payload struct {
			Inputs string `json:"inputs"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"generated_text": payload.Inputs + " The clock will be kind to you.\nsecond line"},
		})
	})

	text, err := c.Generate(context.Background(), "Fortune:")
	require.NoError(t, err)
	assert.Equal(t, "The clock will be kind to you.", text)
}

func TestClassifyPicksBestLabel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[{"label":"sadness","score":0.1},{"label":"JOY","score":0.8},{"label":"anger","score":0.1}]]`))
	})

	s, err := c.Classify(context.Background(), "what a ball!")
	require.NoError(t, err)
	assert.Equal(t, "joy", s.Label)
	assert.InDelta(t, 0.8, s.Score, 1e-9)
}

func TestClassifyFlatResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"fear","score":0.6},{"label":"joy","score":0.4}]`))
	})

	s, err := c.Classify(context.Background(), "midnight is near")
	require.NoError(t, err)
	assert.Equal(t, "fear", s.Label)
}

func TestRetriesWhileModelLoads(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Model is currently loading"}`))
			return
		}
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})

	img, err := c.Imagine(context.Background(), "a glass slipper")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Synthesize(context.Background(), "bibbidi bobbidi boo")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Temporary())
	assert.Equal(t, int32(4), calls.Load(), "one call plus three retries")
}

func TestErrorRedactsToken(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid token " + testToken))
	})

	_, err := c.Generate(context.Background(), "hi")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
	assert.NotContains(t, err.Error(), testToken)
	assert.Contains(t, err.Error(), redacted)
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestEmptyGeneration(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.Generate(context.Background(), "hi")
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestContextCancelStopsRetries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Classify(ctx, "hi")
	assert.Error(t, err)
}
