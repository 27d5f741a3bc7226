// Package completion is a small client for OpenAI-compatible chat completion
// endpoints, used to write short in-character replies.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o"
	DefaultMaxTokens   = 100
	DefaultTemperature = 0.8
	DefaultTimeout     = 20 * time.Second

	maxRecent = 5
)

var (
	// ErrDisabled is returned when no API key is configured. No request is made.
	ErrDisabled = errors.New("completion: disabled")
	// ErrEmpty is returned when the provider answers without content.
	ErrEmpty = errors.New("completion: empty reply")
)

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
	HTTP        *http.Client
}

type Client struct {
	apiKey      string
	base        string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	http        *http.Client
	api         *openai.Client
}

func New(opts Options) *Client {
	c := &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		base:        strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		model:       strings.TrimSpace(opts.Model),
		maxTokens:   opts.MaxTokens,
		temperature: DefaultTemperature,
		timeout:     opts.Timeout,
		http:        opts.HTTP,
	}
	if c.base == "" {
		c.base = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if opts.Temperature != nil {
		c.temperature = *opts.Temperature
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	cfg := openai.DefaultConfig(c.apiKey)
	cfg.BaseURL = c.base
	cfg.HTTPClient = c.http
	c.api = openai.NewClientWithConfig(cfg)
	return c
}

func (c *Client) Enabled() bool { return c != nil && c.apiKey != "" }

// SystemPrompt renders the persona prompt for one reply. Only the last five
// entries of recent are used.
func SystemPrompt(userName string, recent []string, text string) string {
	if len(recent) > maxRecent {
		recent = recent[len(recent)-maxRecent:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly, playful cat-themed Discord bot. You're responding to %s.\n", userName)
	fmt.Fprintf(&b, "Recent messages from %s:\n", userName)
	for _, m := range recent {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Current message: %s\n\n", text)
	b.WriteString("Respond in a cat-themed, friendly way. Keep it short (1-2 sentences). Use cat puns and emojis.")
	return b.String()
}

// Complete asks the provider for a short reply to text. The result is trimmed.
func (c *Client) Complete(ctx context.Context, userName string, recent []string, text string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(userName, recent, text)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   c.maxTokens,
		Temperature: float32(c.temperature),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("completion: HTTP %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmpty
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmpty
	}
	return reply, nil
}
