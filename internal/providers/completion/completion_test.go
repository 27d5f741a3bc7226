package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledMakesNoRequest(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "  "})
	assert.False(t, c.Enabled())
	_, err := c.Complete(context.Background(), "Ann", nil, "hi")
	require.ErrorIs(t, err, ErrDisabled)
	assert.Zero(t, hits.Load())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
}

func TestCompleteSendsChatRequest(t *testing.T) {
	t.Parallel()
	var got openai.ChatCompletionRequest
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  purr-fect! 😺 \n"}}]}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL + "/v1", APIKey: "sk-test"})
	reply, err := c.Complete(context.Background(), "Ann", []string{"1", "2", "3", "4", "5", "6", "7"}, "hello")
	require.NoError(t, err)

	assert.Equal(t, "purr-fect! 😺", reply)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "/v1/chat/completions", path)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	assert.InDelta(t, DefaultTemperature, float64(got.Temperature), 1e-6)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[1].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)

	sys := got.Messages[0].Content
	assert.Contains(t, sys, "You're responding to Ann.")
	assert.Contains(t, sys, "Current message: hello")
	assert.NotContains(t, sys, "- 2\n")
	assert.Contains(t, sys, "- 3\n- 4\n- 5\n- 6\n- 7\n")
}

func TestCompleteFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		is     error
		msg    string
	}{
		{name: "server error", status: 500, body: `{"error":{"message":"boom"}}`, msg: "HTTP 500: boom"},
		{name: "api error body", status: 200, body: `{"error":{"message":"quota","type":"insufficient_quota"}}`},
		{name: "no choices", status: 200, body: `{"choices":[]}`, is: ErrEmpty},
		{name: "blank content", status: 200, body: `{"choices":[{"message":{"content":"   "}}]}`, is: ErrEmpty},
		{name: "garbage", status: 200, body: `<html>`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			reply, err := New(Options{BaseURL: srv.URL, APIKey: "k"}).Complete(context.Background(), "Bo", nil, "x")
			require.Error(t, err)
			assert.Empty(t, reply)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestSystemPromptWithoutHistory(t *testing.T) {
	t.Parallel()
	p := SystemPrompt("Cy", nil, "meow?")
	assert.True(t, strings.HasPrefix(p, "You are a friendly, playful cat-themed Discord bot."))
	assert.Contains(t, p, "Recent messages from Cy:\nCurrent message: meow?")
}
