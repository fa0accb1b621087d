package perception

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsynth/internal/types"
)

func openAIServer(t *testing.T, status int, body string, seen *openAIRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOpenAI(url string) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: url, Model: "test-model", Timeout: 5 * time.Second})
}

func TestOpenAIGenerate(t *testing.T) {
	var req openAIRequest
	srv := openAIServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"int x;"},"finish_reason":"stop"}]}`, &req)

	out, err := newTestOpenAI(srv.URL).Generate(context.Background(), "sys", "user", 0.5)
	require.NoError(t, err)
	assert.Equal(t, "int x;", out)

	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, 0.5, req.Temperature)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openAIMessage{Role: "system", Content: "sys"}, req.Messages[0])
	assert.Equal(t, openAIMessage{Role: "user", Content: "user"}, req.Messages[1])
}

func TestOpenAIErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, true},
		{"server error", http.StatusBadGateway, `oops`, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad"}}`, false},
		{"truncated", http.StatusOK, `{"choices":[{"message":{"content":"int"},"finish_reason":"length"}]}`, false},
		{"api error", http.StatusOK, `{"error":{"message":"quota"}}`, false},
		{"no choices", http.StatusOK, `{"choices":[]}`, true},
		{"garbage", http.StatusOK, `not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := openAIServer(t, tt.status, tt.body, nil)
			_, err := newTestOpenAI(srv.URL).Generate(context.Background(), "s", "u", 1)
			require.Error(t, err)
			assert.True(t, types.IsBackend(err))
			assert.Equal(t, tt.transient, types.IsTransient(err))
		})
	}
}

func TestOpenAIMissingKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{}).Generate(context.Background(), "s", "u", 1)
	require.Error(t, err)
	assert.False(t, types.IsTransient(err))
}

func TestOpenAITimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Generate(context.Background(), "s", "u", 1)
	require.Error(t, err)
	assert.True(t, types.IsTimeout(err))
	assert.True(t, types.IsTransient(err))
}

func TestNewOpenAIClientDefaults(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: "http://x/v1/"})
	assert.Equal(t, "http://x/v1", c.baseURL)
	assert.Equal(t, "gpt-4o", c.model)
	assert.Equal(t, 4096, c.maxTokens)
}

func TestOpenAIRequestSpacing(t *testing.T) {
	srv := openAIServer(t, http.StatusOK,
		`{"choices":[{"message":{"content":"int x;"},"finish_reason":"stop"}]}`, nil)
	c := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, MinInterval: 100 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Generate(context.Background(), "sys", "user", 0)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 190*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Generate(ctx, "sys", "user", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
