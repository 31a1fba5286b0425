// LLMClient - instrumented wrapper around providers.

package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/premjatin/LLM-WebSearch/internal/metrics"
)

// Client wraps a Provider with logging and metrics.
type Client struct {
	provider Provider
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider, log: zerolog.Nop()}
}

// WithLogger sets the logger used for request tracing.
func (c *Client) WithLogger(log zerolog.Logger) *Client {
	c.log = log
	return c
}

// WithMetrics sets the metrics sink.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// Name returns the underlying provider name.
func (c *Client) Name() string {
	return c.provider.Name()
}

// Model returns the underlying provider model.
func (c *Client) Model() string {
	return c.provider.Model()
}

// ChatWithTools forwards to the provider, recording latency and outcome.
func (c *Client) ChatWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (LLMResponse, error) {
	start := time.Now()
	c.log.Debug().
		Str("provider", c.provider.Name()).
		Str("model", c.provider.Model()).
		Int("messages", len(messages)).
		Int("tools", len(tools)).
		Msg("llm request")

	resp, err := c.provider.ChatWithTools(ctx, messages, tools)
	c.metrics.RecordLLMRequest(c.provider.Name(), time.Since(start), err)
	if err != nil {
		c.log.Error().Err(err).Str("provider", c.provider.Name()).Msg("llm request failed")
		return LLMResponse{}, err
	}

	event := c.log.Debug().
		Str("provider", c.provider.Name()).
		Int("tool_calls", len(resp.ToolCalls)).
		Int("content_len", len(resp.Content)).
		Dur("duration_ms", time.Since(start))
	if resp.Usage != nil {
		event = event.Uint32("total_tokens", resp.Usage.TotalTokens)
	}
	event.Msg("llm response")
	return resp, nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

var _ Provider = (*Client)(nil)
