package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/premjatin/LLM-WebSearch/agent"
	"github.com/premjatin/LLM-WebSearch/llm"
	"github.com/premjatin/LLM-WebSearch/storage"
	"github.com/premjatin/LLM-WebSearch/tools"
)

// scriptedProvider replays responses in order and then repeats the last one.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []llm.LLMResponse
	err       error
	seen      [][]llm.Message
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) ChatWithTools(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, append([]llm.Message(nil), messages...))
	if p.err != nil {
		return llm.LLMResponse{}, p.err
	}
	n := len(p.seen) - 1
	if n >= len(p.responses) {
		n = len(p.responses) - 1
	}
	return p.responses[n], nil
}

type constTool struct {
	tools.BaseTool
	name, out string
}

func (c constTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{Name: c.name, Description: c.name}
}

func (c constTool) Execute(context.Context, json.RawMessage) (tools.ToolResult, error) {
	return tools.SuccessResult(c.out), nil
}

func newDriver(t *testing.T, p llm.Provider) (*Driver, storage.ConversationStore, storage.ConversationRef) {
	t.Helper()
	store := storage.NewMemoryStore()
	conv, err := store.GetOrCreateConversation(context.Background(), "alice", 0)
	require.NoError(t, err)

	cfg := agent.NewBuilder("test").Tool(constTool{name: "WebSearch", out: "Messi scored on Sunday."}).Build()
	return NewDriver(agent.New(cfg, p), store), store, conv.Ref()
}

func texts(msgs []storage.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Sender) + ":" + m.Text
	}
	return out
}

func TestRunPersistsOnlyUserAndAnswer(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "WebSearch", Arguments: json.RawMessage(`{"query":"messi"}`)}}},
		{Content: "He scored on Sunday."},
	}}
	d, store, ref := newDriver(t, p)
	ctx := context.Background()

	reply, err := d.Run(ctx, ref, "When did Messi last score?")
	require.NoError(t, err)
	assert.Equal(t, "He scored on Sunday.", reply.Answer)
	assert.Equal(t, 3, reply.Run.Steps)

	history, err := store.History(ctx, ref, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"user:When did Messi last score?",
		"ai:He scored on Sunday.",
	}, texts(history))
}

func TestRunBuildsPreambleHistoryUser(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{{Content: "second answer"}}}
	d, store, ref := newDriver(t, p)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, ref, storage.SenderUser, "first question"))
	require.NoError(t, store.Append(ctx, ref, storage.SenderAI, "first answer"))

	_, err := d.Run(ctx, ref, "second question")
	require.NoError(t, err)

	require.Len(t, p.seen, 1)
	sent := p.seen[0]
	require.Len(t, sent, 4)
	assert.Equal(t, llm.SystemMessage{Content: DefaultPreamble}, sent[0])
	assert.Equal(t, llm.UserMessage{Content: "first question"}, sent[1])
	assert.Equal(t, llm.AssistantMessage{Content: "first answer"}, sent[2])
	assert.Equal(t, llm.UserMessage{Content: "second question"}, sent[3])

	history, _ := store.History(ctx, ref, 0)
	assert.Len(t, history, 4)
}

func TestRunRespectsHistoryLimit(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{{Content: "ok"}}}
	d, store, ref := newDriver(t, p)
	d.WithHistoryLimit(2).WithPreamble("")
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(ctx, ref, storage.SenderUser, text))
	}

	_, err := d.Run(ctx, ref, "d")
	require.NoError(t, err)

	sent := p.seen[0]
	require.Len(t, sent, 3)
	assert.Equal(t, "b", sent[0].Text())
	assert.Equal(t, "c", sent[1].Text())
	assert.Equal(t, "d", sent[2].Text())
}

func TestRunStepLimitPersistsNothing(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "WebSearch", Arguments: json.RawMessage(`{"query":"again"}`)}}},
	}}
	d, store, ref := newDriver(t, p)
	ctx := context.Background()

	_, err := d.Run(ctx, ref, "loop")
	require.ErrorIs(t, err, agent.ErrStepLimitExceeded)

	history, err := store.History(ctx, ref, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunBackendErrorPersistsNothing(t *testing.T) {
	p := &scriptedProvider{err: errors.New("401 unauthorized")}
	d, store, ref := newDriver(t, p)
	ctx := context.Background()

	_, err := d.Run(ctx, ref, "hello")
	require.Error(t, err)

	history, _ := store.History(ctx, ref, 0)
	assert.Empty(t, history)
}

func TestRunUnknownConversationFailsToPersist(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{{Content: "hi"}}}
	d, _, ref := newDriver(t, p)

	foreign := storage.ConversationRef{UserID: "mallory", ConversationID: ref.ConversationID}
	_, err := d.Run(context.Background(), foreign, "hello")
	require.ErrorIs(t, err, storage.ErrConversationNotFound)
}

func TestRunIsIdempotent(t *testing.T) {
	script := []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "WebSearch", Arguments: json.RawMessage(`{"query":"x"}`)}}},
		{Content: "same answer"},
	}
	run := func() (string, []string) {
		d, store, ref := newDriver(t, &scriptedProvider{responses: script})
		reply, err := d.Run(context.Background(), ref, "q")
		require.NoError(t, err)
		history, _ := store.History(context.Background(), ref, 0)
		return reply.Answer, texts(history)
	}

	a1, h1 := run()
	a2, h2 := run()
	assert.Equal(t, a1, a2)
	assert.Equal(t, h1, h2)
}

func TestAnswerDoesNotTouchStorage(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{{Content: "Hello!"}}}
	d, store, ref := newDriver(t, p)

	reply, err := d.Answer(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply.Answer)
	assert.Equal(t, 1, reply.Run.Steps)

	history, _ := store.History(context.Background(), ref, 0)
	assert.Empty(t, history)
}

func TestExtractAnswer(t *testing.T) {
	pending := llm.AssistantMessage{ToolCalls: []llm.ToolCall{{ID: "c", Name: "WebSearch"}}}

	tests := []struct {
		name     string
		messages []llm.Message
		want     string
	}{
		{"trailing answer", []llm.Message{llm.UserMessage{Content: "q"}, llm.AssistantMessage{Content: "a"}}, "a"},
		{"trailing empty answer", []llm.Message{llm.AssistantMessage{Content: ""}}, ""},
		{"trailing tool message", []llm.Message{
			llm.AssistantMessage{Content: "earlier"},
			pending,
			llm.ToolMessage{CallID: "c", Content: "result"},
		}, "earlier"},
		{"trailing pending call", []llm.Message{llm.AssistantMessage{Content: "earlier"}, pending}, "earlier"},
		{"no answer", []llm.Message{llm.UserMessage{Content: "q"}, pending, llm.ToolMessage{CallID: "c"}}, FallbackAnswer},
		{"error answer", []llm.Message{llm.AssistantMessage{Content: "Error: broken"}, llm.ToolMessage{}}, FallbackAnswer},
		{"empty", nil, FallbackAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractAnswer(tt.messages))
		})
	}
}

func TestToMessagesMapsSenders(t *testing.T) {
	msgs := ToMessages([]storage.Message{
		{Sender: storage.SenderUser, Text: "q"},
		{Sender: storage.SenderAI, Text: "a"},
		{Sender: storage.Sender("system"), Text: "dropped"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[0].Role())
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role())
}

// failingTurnStore accepts history reads and rejects every write.
type failingTurnStore struct {
	storage.ConversationStore
}

func (failingTurnStore) AppendTurn(context.Context, storage.ConversationRef, string, string) error {
	return errors.New("disk full")
}

func TestRunStoresTurnAtomically(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{{Content: "answer"}}}
	_, store, ref := newDriver(t, p)
	cfg := agent.NewBuilder("test").Build()
	d := NewDriver(agent.New(cfg, p), failingTurnStore{store})
	ctx := context.Background()

	reply, err := d.Run(ctx, ref, "question")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store turn")
	assert.Equal(t, "answer", reply.Answer)

	history, err := store.History(ctx, ref, 0)
	require.NoError(t, err)
	assert.Empty(t, history, "a failed write must not leave a dangling user message")
}
