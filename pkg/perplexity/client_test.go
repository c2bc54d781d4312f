package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{
	"id": "cmpl-123",
	"model": "sonar-pro",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"industry\":\"Software\"}"}}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5},
	"citations": ["https://example.com/about"]
}`

func serve(t *testing.T, status int, body string, check func(r *http.Request, raw map[string]any)) Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		if check != nil {
			check(r, raw)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL))
}

func TestChatCompletion_Success(t *testing.T) {
	client := serve(t, http.StatusOK, okBody, func(r *http.Request, raw map[string]any) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, defaultModel, raw["model"])
		_, hasTemp := raw["temperature"]
		assert.False(t, hasTemp)
	})

	resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "Enrich Jane Doe"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "cmpl-123", resp.ID)
	assert.Equal(t, `{"industry":"Software"}`, resp.Text())
	assert.Equal(t, []string{"https://example.com/about"}, resp.Citations)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
}

func TestChatCompletion_RequestOptions(t *testing.T) {
	client := serve(t, http.StatusOK, okBody, func(_ *http.Request, raw map[string]any) {
		assert.Equal(t, "sonar", raw["model"])
		assert.InDelta(t, 0.1, raw["temperature"], 0.001)
		assert.InDelta(t, 800, raw["max_tokens"], 0.001)
		rf, ok := raw["response_format"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "json_schema", rf["type"])
	})

	temp, maxTokens := 0.1, 800
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:       "sonar",
		Messages:    []Message{{Role: "user", Content: "x"}},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		ResponseFormat: &ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &JSONSchema{Schema: map[string]any{"type": "object"}},
		},
	})
	require.NoError(t, err)
}

func TestChatCompletion_StatusError(t *testing.T) {
	client := serve(t, http.StatusTooManyRequests, `{"error":"rate limit exceeded"}`, nil)

	resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)
	assert.Nil(t, resp)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestChatCompletion_MalformedBody(t *testing.T) {
	client := serve(t, http.StatusOK, `{invalid json`, nil)
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestChatCompletion_CanceledContext(t *testing.T) {
	client := NewClient("test-key", WithBaseURL("http://127.0.0.1:1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ChatCompletion(ctx, ChatCompletionRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_Options(t *testing.T) {
	custom := &http.Client{}
	hc := NewClient("my-key", WithHTTPClient(custom), WithModel("sonar")).(*httpClient)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, defaultBaseURL, hc.baseURL)
	assert.Equal(t, "sonar", hc.model)
	assert.Same(t, custom, hc.http)
}

func TestChatCompletionResponse_TextEmpty(t *testing.T) {
	assert.Empty(t, (&ChatCompletionResponse{}).Text())
}
