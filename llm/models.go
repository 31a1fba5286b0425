// Package llm provides the message model and provider abstraction for language models.
package llm

import "encoding/json"

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one unit of conversational history.
// The concrete variants are SystemMessage, UserMessage, AssistantMessage and ToolMessage.
type Message interface {
	Role() Role
	Text() string
	isMessage()
}

// SystemMessage carries instructions for the model.
type SystemMessage struct {
	Content string
}

// UserMessage is a turn written by the user.
type UserMessage struct {
	Content string
}

// AssistantMessage is a model turn. Content may be empty when tool calls are pending.
type AssistantMessage struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolMessage is the result of one tool invocation, correlated by CallID
// to a ToolCall on a preceding AssistantMessage.
type ToolMessage struct {
	CallID   string
	ToolName string
	Content  string
}

func (SystemMessage) Role() Role    { return RoleSystem }
func (UserMessage) Role() Role      { return RoleUser }
func (AssistantMessage) Role() Role { return RoleAssistant }
func (ToolMessage) Role() Role      { return RoleTool }

func (m SystemMessage) Text() string    { return m.Content }
func (m UserMessage) Text() string      { return m.Content }
func (m AssistantMessage) Text() string { return m.Content }
func (m ToolMessage) Text() string      { return m.Content }

func (SystemMessage) isMessage()    {}
func (UserMessage) isMessage()      {}
func (AssistantMessage) isMessage() {}
func (ToolMessage) isMessage()      {}

// HasToolCalls reports whether the assistant requested any tool invocations.
func (m AssistantMessage) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// ToolCall is a structured request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// Message converts the response into an assistant message.
func (r LLMResponse) Message() AssistantMessage {
	return AssistantMessage{Content: r.Content, ToolCalls: r.ToolCalls}
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// Add accumulates other into u. A nil other is ignored.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// argumentsMap decodes tool call arguments into a map, returning an empty map
// for missing or non-object payloads.
func argumentsMap(raw json.RawMessage) map[string]interface{} {
	args := map[string]interface{}{}
	if len(raw) == 0 {
		return args
	}
	_ = json.Unmarshal(raw, &args)
	if args == nil {
		args = map[string]interface{}{}
	}
	return args
}
