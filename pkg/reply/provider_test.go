package reply

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaioption "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompleter(t *testing.T) {
	c, err := NewCompleter(ProviderAnthropic, "key", "")
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, c.Provider())

	c, err = NewCompleter(ProviderOpenAI, "key", "https://llm.internal/v1/")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Provider())

	_, err = NewCompleter("gemini", "key", "")
	assert.Error(t, err)

	_, err = NewCompleter(ProviderAnthropic, "", "")
	assert.Error(t, err)
}

func TestAnthropicCompleter_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"hi "},{"type":"text","text":"there"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	c := NewAnthropicCompleter("key", anthropicoption.WithBaseURL(srv.URL))
	text, err := c.Complete(context.Background(), Request{
		Model:        "claude-test",
		SystemPrompt: "persona",
		Messages: []Message{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hey"},
			{Role: "user", Content: "again"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)

	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, defaultAnthropicMaxTokens, body["max_tokens"])
	assert.Len(t, body["messages"], 3)
}

func TestAnthropicCompleter_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicCompleter("key", anthropicoption.WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), Request{Model: "m", Messages: []Message{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestOpenAICompleter_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello back"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter("key", openaioption.WithBaseURL(srv.URL))
	text, err := c.Complete(context.Background(), Request{
		Model:        "gpt-test",
		SystemPrompt: "persona",
		Messages:     []Message{{Role: "user", Content: "hello"}},
		MaxTokens:    64,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello back", text)

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2, "system prompt is sent as the first message")
}

func TestOpenAICompleter_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter("key", openaioption.WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), Request{Model: "m", Messages: []Message{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
