package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/premjatin/LLM-WebSearch/llm"
	"github.com/premjatin/LLM-WebSearch/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedProvider replays responses in order and then repeats the last one.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []llm.LLMResponse
	err       error
	seen      [][]llm.Message
	toolDefs  [][]llm.ToolDefinition
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) ChatWithTools(_ context.Context, messages []llm.Message, defs []llm.ToolDefinition) (llm.LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, append([]llm.Message(nil), messages...))
	p.toolDefs = append(p.toolDefs, defs)
	if p.err != nil {
		return llm.LLMResponse{}, p.err
	}
	n := len(p.seen) - 1
	if n >= len(p.responses) {
		n = len(p.responses) - 1
	}
	return p.responses[n], nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

// echoTool returns its name and arguments, optionally after a delay.
type echoTool struct {
	tools.BaseTool
	name  string
	delay time.Duration
	fail  error
}

func (e *echoTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        e.name,
		Description: "echoes " + e.name,
		Parameters: []tools.ToolParameter{
			{Name: "query", ParamType: "string", Description: "query", Required: true},
		},
	}
}

func (e *echoTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return tools.FailureResult(ctx.Err()), nil
		case <-time.After(e.delay):
		}
	}
	if e.fail != nil {
		return tools.FailureResult(e.fail), nil
	}
	return tools.SuccessResult(fmt.Sprintf("%s:%s", e.name, args)), nil
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func input(text string) []llm.Message {
	return []llm.Message{
		llm.SystemMessage{Content: "be helpful"},
		llm.UserMessage{Content: text},
	}
}

func newTestAgent(p llm.Provider, ts ...tools.Tool) *Agent {
	cfg := NewBuilder("test").Tools(ts).Build()
	return New(cfg, p)
}

func TestRunEndsAfterOneStepWithoutToolCalls(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{Content: "Hello! How can I help?", Usage: &llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}}
	a := newTestAgent(p, &echoTool{name: "WebSearch"})

	result, err := a.Run(context.Background(), input("hi"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, 1, result.LLMCalls)
	assert.Equal(t, uint32(15), result.Usage.TotalTokens)
	require.Len(t, result.Messages, 3)

	final, ok := result.Final()
	require.True(t, ok)
	assert.Equal(t, "Hello! How can I help?", final.Content)

	require.Len(t, p.toolDefs, 1)
	require.Len(t, p.toolDefs[0], 1)
	assert.Equal(t, "WebSearch", p.toolDefs[0][0].Name)
}

func TestRunStepLimit(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{call("c1", "WebSearch", `{"query":"again"}`)}},
	}}
	a := newTestAgent(p, &echoTool{name: "WebSearch"})

	result, err := a.Run(context.Background(), input("loop forever"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepLimitExceeded))

	var limitErr *StepLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, DefaultMaxSteps, limitErr.Limit)
	assert.Equal(t, DefaultMaxSteps, limitErr.Steps)

	// Agent states run on odd steps, Action states on even ones.
	assert.Equal(t, DefaultMaxSteps, result.Steps)
	assert.Equal(t, 8, p.calls())
	assert.Len(t, result.Invocations, 7)

	_, ok := result.Final()
	assert.False(t, ok)
}

func TestRunStepLimitIsConfigurable(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{call("c1", "WebSearch", `{"query":"again"}`)}},
	}}
	cfg := NewBuilder("short").MaxSteps(3).Tool(&echoTool{name: "WebSearch"}).Build()

	result, err := New(cfg, p).Run(context.Background(), input("q"))
	require.ErrorIs(t, err, ErrStepLimitExceeded)
	assert.Equal(t, 3, result.Steps)
	assert.Equal(t, 2, p.calls())
}

func TestRunAnswerOnLastAllowedStep(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{call("c1", "WebSearch", `{"query":"x"}`)}},
		{Content: "found it"},
	}}
	cfg := NewBuilder("tight").MaxSteps(3).Tool(&echoTool{name: "WebSearch"}).Build()

	result, err := New(cfg, p).Run(context.Background(), input("q"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Steps)

	final, ok := result.Final()
	require.True(t, ok)
	assert.Equal(t, "found it", final.Content)
}

func TestRunExecutesToolsAndReturnsToAgent(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{call("c1", "WebSearch", `{"query":"messi"}`)}},
		{Content: "Messi scored yesterday."},
	}}
	a := newTestAgent(p, &echoTool{name: "WebSearch"})

	result, err := a.Run(context.Background(), input("when did he score?"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Steps)
	require.Len(t, result.Messages, 5)

	toolMsg, ok := result.Messages[3].(llm.ToolMessage)
	require.True(t, ok)
	assert.Equal(t, "c1", toolMsg.CallID)
	assert.Equal(t, "WebSearch", toolMsg.ToolName)
	assert.Equal(t, `WebSearch:{"query":"messi"}`, toolMsg.Content)

	// The second model call sees the tool result.
	require.Len(t, p.seen, 2)
	assert.Len(t, p.seen[1], 4)

	require.Len(t, result.Invocations, 1)
	assert.True(t, result.Invocations[0].Success)
	assert.Equal(t, 2, result.Invocations[0].Step)
}

func TestRunRecoversTextualToolCall(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{Content: `<WebSearch>{"query": "x"}</WebSearch>`},
		{Content: "done"},
	}}
	a := newTestAgent(p, &echoTool{name: "WebSearch"})

	result, err := a.Run(context.Background(), input("search x"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Steps)

	assistant, ok := result.Messages[2].(llm.AssistantMessage)
	require.True(t, ok)
	require.Len(t, assistant.ToolCalls, 1)
	recovered := assistant.ToolCalls[0]
	assert.Equal(t, "WebSearch", recovered.Name)
	assert.True(t, strings.HasPrefix(recovered.ID, "call_"))
	assert.JSONEq(t, `{"query":"x"}`, string(recovered.Arguments))

	toolMsg, ok := result.Messages[3].(llm.ToolMessage)
	require.True(t, ok)
	assert.Equal(t, recovered.ID, toolMsg.CallID)

	final, ok := result.Final()
	require.True(t, ok)
	assert.Equal(t, "done", final.Content)
}

func TestRunTextualCallWithInvalidPayloadIsAnswer(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{Content: "<WebSearch>not json</WebSearch>"},
	}}
	a := newTestAgent(p, &echoTool{name: "WebSearch"})

	result, err := a.Run(context.Background(), input("q"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Steps)

	final, ok := result.Final()
	require.True(t, ok)
	assert.Equal(t, "<WebSearch>not json</WebSearch>", final.Content)
}

func TestRunNativeToolCallsTakePrecedence(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{
			Content:   `<Retrieval>{"query":"ignored"}</Retrieval>`,
			ToolCalls: []llm.ToolCall{call("n1", "WebSearch", `{"query":"native"}`)},
		},
		{Content: "ok"},
	}}
	a := newTestAgent(p, &echoTool{name: "WebSearch"}, &echoTool{name: "Retrieval"})

	result, err := a.Run(context.Background(), input("q"))
	require.NoError(t, err)

	assistant := result.Messages[2].(llm.AssistantMessage)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "n1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "WebSearch", assistant.ToolCalls[0].Name)
}

func TestRunUnknownToolIsRecoverable(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{call("c1", "Calculator", `{}`)}},
		{Content: "sorry"},
	}}
	a := newTestAgent(p, &echoTool{name: "InternalKnowledgeSearch"}, &echoTool{name: "WebSearch"})

	result, err := a.Run(context.Background(), input("2+2"))
	require.NoError(t, err)

	toolMsg := result.Messages[3].(llm.ToolMessage)
	assert.Equal(t, "c1", toolMsg.CallID)
	assert.Equal(t,
		"Error: Calculator is not a valid tool, try one of [InternalKnowledgeSearch, WebSearch].",
		toolMsg.Content)
	assert.False(t, result.Invocations[0].Success)

	final, ok := result.Final()
	require.True(t, ok)
	assert.Equal(t, "sorry", final.Content)
}

func TestRunToolFailureBecomesToolMessage(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{call("c1", "WebSearch", `{"query":"x"}`)}},
		{Content: "could not search"},
	}}
	a := newTestAgent(p, &echoTool{name: "WebSearch", fail: errors.New("quota exhausted")})

	result, err := a.Run(context.Background(), input("q"))
	require.NoError(t, err)

	toolMsg := result.Messages[3].(llm.ToolMessage)
	assert.Contains(t, toolMsg.Content, "quota exhausted")
	assert.True(t, strings.HasPrefix(toolMsg.Content, "Error: "))
}

func TestRunParallelToolsPreserveOrder(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{
			call("c1", "slow", `{"query":"1"}`),
			call("c2", "fast", `{"query":"2"}`),
			call("c3", "slow", `{"query":"3"}`),
		}},
		{Content: "merged"},
	}}
	a := newTestAgent(p,
		&echoTool{name: "slow", delay: 40 * time.Millisecond},
		&echoTool{name: "fast"},
	)

	result, err := a.Run(context.Background(), input("q"))
	require.NoError(t, err)
	require.Len(t, result.Messages, 7)

	var ids []string
	for _, m := range result.Messages[3:6] {
		ids = append(ids, m.(llm.ToolMessage).CallID)
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids)
	assert.Equal(t, `slow:{"query":"3"}`, result.Messages[5].Text())
}

func TestRunModelErrorIsReturned(t *testing.T) {
	p := &scriptedProvider{err: errors.New("backend unavailable")}
	a := newTestAgent(p)

	result, err := a.Run(context.Background(), input("q"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStepLimitExceeded))
	assert.Contains(t, err.Error(), "backend unavailable")
	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, 0, result.LLMCalls)
}

func TestRunCancelledContext(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{{Content: "never"}}}
	a := newTestAgent(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := a.Run(ctx, input("q"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Steps)
	assert.Equal(t, 0, p.calls())
}

func TestRunIsDeterministic(t *testing.T) {
	script := []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{call("c1", "WebSearch", `{"query":"x"}`)}},
		{Content: "answer"},
	}
	run := func() Result {
		a := newTestAgent(&scriptedProvider{responses: script}, &echoTool{name: "WebSearch"})
		result, err := a.Run(context.Background(), input("q"))
		require.NoError(t, err)
		return result
	}

	first, second := run(), run()
	assert.Equal(t, first.Messages, second.Messages)
	assert.Equal(t, first.Steps, second.Steps)
}

func TestRunDoesNotMutateInput(t *testing.T) {
	p := &scriptedProvider{responses: []llm.LLMResponse{{Content: "a"}}}
	msgs := input("q")

	_, err := newTestAgent(p).Run(context.Background(), msgs)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestBuilderDefaults(t *testing.T) {
	cfg := NewBuilder("b").MaxSteps(0).ParallelTools(-1).Build()
	assert.Equal(t, "b", cfg.Name)
	assert.Equal(t, DefaultMaxSteps, cfg.MaxSteps)
	assert.Equal(t, DefaultParallelTools, cfg.ParallelTools)
	assert.False(t, cfg.HasTools())
	assert.Equal(t, tools.DefaultToolConfig(), cfg.ToolConfig)

	b := NewBuilder("c").Tool(&echoTool{name: "a"}).Tool(&echoTool{name: "b"})
	assert.Equal(t, 2, b.ToolCount())
	assert.Equal(t, "c", b.Name())
}

func TestNewKeepsFirstDuplicate(t *testing.T) {
	first := &echoTool{name: "WebSearch"}
	cfg := NewBuilder("dup").Tool(first).Tool(&echoTool{name: "WebSearch"}).Build()

	a := New(cfg, &scriptedProvider{})
	assert.Equal(t, 1, a.Registry().Len())
	got, ok := a.Registry().Get("WebSearch")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestDuplicateToolIsLogged(t *testing.T) {
	cfg := NewBuilder("dup").Tool(&echoTool{name: "WebSearch"}).Tool(&echoTool{name: "WebSearch"}).Build()

	var buf bytes.Buffer
	New(cfg, &scriptedProvider{}).WithLogger(zerolog.New(&buf))

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "tool 'WebSearch' already registered")
	assert.Equal(t, 1, strings.Count(out, "tool not registered"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "agent", StateAgent.String())
	assert.Equal(t, "action", StateAction.String())
	assert.Equal(t, "end", StateEnd.String())
	assert.Equal(t, "state(7)", State(7).String())
}
