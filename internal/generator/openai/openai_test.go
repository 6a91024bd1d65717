package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestCompleteSendsPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "Say hi", req.Messages[0].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Hi there.\n"}}]}`))
	}))
	defer srv.Close()

	t.Setenv("DOCQA_TEST_KEY", "secret")
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1/", APIKeyEnv: "DOCQA_TEST_KEY", Model: "llama3"})
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), "Say hi")
	require.NoError(t, err)
	assert.Equal(t, "Hi there.", out)
}

func TestCompleteNoKeyForLocalServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestCompleteMissingKey(t *testing.T) {
	t.Setenv("DOCQA_TEST_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "DOCQA_TEST_KEY"})
	assert.Error(t, err)
}

func TestCompleteErrorsAreUpstream(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"server error", http.StatusBadGateway, `{"error":{"message":"model offline"}}`, "model offline"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"bad json", http.StatusOK, `not json`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewClient(Config{BaseURL: srv.URL})
			require.NoError(t, err)
			_, err = c.Complete(context.Background(), "x")
			require.ErrorIs(t, err, domain.ErrUpstream)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCompleteRateLimitHonoursDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, RequestsPerMinute: 1})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Complete(ctx, "second")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}
