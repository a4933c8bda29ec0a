// Package genai provides the LLM completion client for InterviewBot,
// backed by the OpenAI chat completions API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Completion client configuration constants
const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = openai.ChatModelGPT4oMini
	// DefaultMaxTokens caps the model's reply length.
	DefaultMaxTokens = 350
	// DefaultTemperature is the sampling temperature for replies.
	DefaultTemperature = 0.8
	// DefaultTimeout bounds a single completion call. Timeouts surface as
	// the absence signal rather than hanging the invocation.
	DefaultTimeout = 30 * time.Second
	// MaxReplyLength is the WhatsApp message body limit; longer replies are
	// shortened with an ellipsis.
	MaxReplyLength = 1599
)

// completionService defines the minimal interface for chat completions,
// satisfied by openai.ChatCompletionService and by test stubs.
type completionService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the completion client.
type Opts struct {
	APIKey      string
	Model       openai.ChatModel
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
}

// Option defines a configuration option for the completion client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// WithMaxTokens sets the reply token cap.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion service for interview replies.
type Client struct {
	chat        completionService
	model       openai.ChatModel
	maxTokens   int64
	temperature float64
	timeout     time.Duration
}

// NewClient initializes a new completion client. The API key falls back to
// the OPENAI_API_KEY environment variable when not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		Timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai client initialized", "model", cfg.Model, "max_tokens", cfg.MaxTokens, "timeout", cfg.Timeout)
	return &Client{
		chat:        &cli.Chat.Completions,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

// GenerateReply produces the model's reply for a single user turn under the
// given system instruction. An empty reply with nil error is the absence
// signal: the upstream returned nothing usable.
func (c *Client) GenerateReply(ctx context.Context, userTurn, systemInstruction string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(userTurn),
		},
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("genai completion call failed", "error", err)
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("genai completion returned no choices")
		return "", nil
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		slog.Warn("genai completion returned empty content")
		return "", nil
	}
	return shorten(reply, MaxReplyLength), nil
}

// shorten truncates s to at most width runes, appending an ellipsis when
// content was cut.
func shorten(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}
