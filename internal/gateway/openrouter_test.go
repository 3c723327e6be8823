package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenRouter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := DefaultOpenRouterConfig("test-key")
	cfg.BaseURL = srv.URL
	cfg.Timeout = 2 * time.Second
	cfg.SiteURL = "http://localhost:8501"
	cfg.SiteName = "Skeptic Test"
	return NewOpenRouter(cfg)
}

func TestOpenRouter_Success(t *testing.T) {
	var got openRouterRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "http://localhost:8501", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "Skeptic Test", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"Q1?\nQ2?"}}],"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`))
	})

	resp, err := client.Call(context.Background(), UserPrompt("qwen/qwq-32b", "hello", 0.7, 5024, false))
	require.NoError(t, err)
	assert.Equal(t, "Q1?\nQ2?", resp.Content())
	assert.Equal(t, 16, resp.Usage.TotalTokens)

	assert.Equal(t, "qwen/qwq-32b", got.Model)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, 5024, got.MaxTokens)
	assert.Nil(t, got.ResponseFormat)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
}

func TestOpenRouter_JSONHintOnlyForCapableModels(t *testing.T) {
	var got openRouterRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = openRouterRequest{}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	})

	tests := []struct {
		model    string
		wantJSON bool
		expect   bool
	}{
		{"openai/gpt-4o", true, true},
		{"anthropic/claude-3.5-sonnet", true, true},
		{"anthropic/claude-3-opus", true, true},
		{"anthropic/claude-3.7-sonnet:thinking", true, false},
		{"openai/gpt-4o", false, false},
	}
	for _, tt := range tests {
		_, err := client.Call(context.Background(), UserPrompt(tt.model, "p", 0.3, 100, tt.wantJSON))
		require.NoError(t, err)
		if tt.expect {
			require.NotNil(t, got.ResponseFormat, tt.model)
			assert.Equal(t, "json_object", got.ResponseFormat.Type)
		} else {
			assert.Nil(t, got.ResponseFormat, tt.model)
		}
	}
}

func TestOpenRouter_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"server error", http.StatusInternalServerError, `upstream exploded`, 500},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, 429},
		{"provider error in 200", http.StatusOK, `{"error":{"message":"model overloaded","code":502}}`, 200},
		{"no choices", http.StatusOK, `{"choices":[]}`, 200},
		{"garbage", http.StatusOK, `not json`, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			resp, err := client.Call(context.Background(), UserPrompt("m/x", "p", 0.5, 10, false))
			assert.Nil(t, resp)
			var f *Failure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, tt.wantStatus, f.StatusCode)
			assert.Equal(t, "m/x", f.Model)
			assert.Equal(t, 1, calls, "gateway never retries")
		})
	}
}

func TestOpenRouter_Timeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, UserPrompt("m/x", "p", 0.5, 10, false))
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.True(t, f.Timeout())
	assert.Equal(t, 0, f.StatusCode)
}

func TestOpenRouter_InvalidRequestNeverSent(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	bad := []Request{
		{Model: "", Messages: []Message{{Role: RoleUser, Content: "x"}}, MaxTokens: 1},
		{Model: "m", MaxTokens: 1},
		{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}, Temperature: 2.5, MaxTokens: 1},
		{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}, Temperature: -0.1, MaxTokens: 1},
		{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}, MaxTokens: 0},
	}
	for _, req := range bad {
		_, err := client.Call(context.Background(), req)
		var f *Failure
		assert.ErrorAs(t, err, &f)
	}
	assert.Equal(t, 0, calls)
}

func TestOpenRouter_MissingKey(t *testing.T) {
	client := NewOpenRouter(OpenRouterConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Call(context.Background(), UserPrompt("m", "p", 0.1, 1, false))
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Contains(t, f.Message, "API key")
}
