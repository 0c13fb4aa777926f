// Package llm streams grounded completions from the Anthropic Messages API.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const (
	DefaultModel       = "claude-sonnet-4-20250514"
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.7
	DefaultTimeout     = 120 * time.Second
)

// Config configures a Claude client. Zero values select the defaults,
// except MaxRetries where zero disables SDK retries.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	// Temperature nil selects DefaultTemperature; zero is a valid setting.
	Temperature *float64
	Timeout     time.Duration
	MaxRetries  int
}

// Message is one prior conversation turn. Role is "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// Request is a single streamed completion.
type Request struct {
	System   string
	Messages []Message
}

// Claude streams completions. The SDK client is built on first use and a
// missing key is remembered.
type Claude struct {
	cfg    Config
	logger *slog.Logger

	once    sync.Once
	client  *anthropic.Client
	initErr error
}

// NewClaude creates a Claude streamer.
func NewClaude(cfg Config, logger *slog.Logger) *Claude {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == nil {
		t := DefaultTemperature
		cfg.Temperature = &t
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Claude{cfg: cfg, logger: logger}
}

func (c *Claude) getClient() (*anthropic.Client, error) {
	c.once.Do(func() {
		if c.cfg.APIKey == "" {
			c.initErr = ErrUnavailable
			c.logger.Warn("Anthropic API key not set, chat is disabled")
			return
		}
		opts := []option.RequestOption{
			option.WithAPIKey(c.cfg.APIKey),
			option.WithMaxRetries(c.cfg.MaxRetries),
		}
		if c.cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(c.cfg.BaseURL))
		}
		client := anthropic.NewClient(opts...)
		c.client = &client
	})
	return c.client, c.initErr
}

// Available reports whether an API key is configured.
func (c *Claude) Available() bool {
	_, err := c.getClient()
	return err == nil
}

// Stream sends req and calls onText with each text delta in arrival order.
// It returns nil after message_stop, ctx.Err() when the caller gives up, and
// an error wrapping ErrUnavailable or ErrUpstream otherwise. Events that cannot
// be decoded are logged and skipped.
func (c *Claude) Stream(ctx context.Context, req Request, onText func(string)) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(c.cfg.MaxTokens),
		Messages:    toParams(req.Messages),
		Temperature: anthropic.Float(*c.cfg.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	// The raw response is decoded here rather than through the SDK stream so
	// that one bad event does not end the whole reply.
	var raw *http.Response
	err = client.Post(ctx, "v1/messages", params, &raw, option.WithJSONSet("stream", true))
	if err != nil {
		if parentErr := parent.Err(); parentErr != nil {
			return parentErr
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	dec := ssestream.NewDecoder(raw)
	if dec == nil {
		return fmt.Errorf("%w: empty response", ErrUpstream)
	}
	defer dec.Close()

	for dec.Next() {
		ev := dec.Event()
		switch ev.Type {
		case "ping":
			continue
		case "error":
			return fmt.Errorf("%w: %s", ErrUpstream, ev.Data)
		}

		var event anthropic.MessageStreamEventUnion
		if err := json.Unmarshal(ev.Data, &event); err != nil {
			c.logger.Warn("Skipping malformed stream event", "type", ev.Type, "error", err)
			continue
		}

		switch e := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := e.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				onText(delta.Text)
			}
		case anthropic.MessageStopEvent:
			return nil
		}
	}

	// A timeout of our own is an upstream failure, not a cancellation.
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	if err := dec.Err(); err != nil {
		return fmt.Errorf("%w: read stream: %v", ErrUpstream, err)
	}
	return fmt.Errorf("%w: stream ended before message_stop", ErrUpstream)
}

func toParams(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	return out
}
