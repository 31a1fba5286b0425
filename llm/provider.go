// Package llm provides LLM provider abstractions.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Conversion between the Message union and the vendor wire format
// - Provider-specific tool-call encoding

package llm

import (
	"context"
)

// Provider is a language model backend that accepts an ordered message
// sequence plus tool descriptors and returns one assistant turn.
// Backends that never populate ToolCalls natively are valid.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// ChatWithTools sends a chat completion request with tool definitions.
	// The LLM may respond with tool calls in LLMResponse.ToolCalls.
	ChatWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (LLMResponse, error)
}
