// Agent/Action/End run loop.
//
// Information Hiding:
// - State transition logic hidden
// - LLM communication hidden
// - Tool execution coordination hidden

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/premjatin/LLM-WebSearch/internal/metrics"
	"github.com/premjatin/LLM-WebSearch/llm"
	"github.com/premjatin/LLM-WebSearch/tools"
)

// Agent drives one model and its tools through the orchestration state machine.
// An Agent holds no per-run state and may serve concurrent runs.
type Agent struct {
	config    Config
	llmClient *llm.Client
	registry  *tools.Registry
	executor  *tools.Executor
	log       zerolog.Logger
	metrics   *metrics.Metrics

	// rejected holds registration errors until a logger is attached.
	rejected []error
}

// New creates an agent. Tools are registered in config order; a duplicate
// name keeps the first registration and is reported once a logger is set.
func New(config Config, provider llm.Provider) *Agent {
	config = config.withDefaults()

	registry := tools.NewRegistry()
	var rejected []error
	for _, tool := range config.Tools {
		if err := registry.Register(tool); err != nil {
			rejected = append(rejected, err)
		}
	}

	return &Agent{
		config:    config,
		llmClient: llm.NewClient(provider),
		registry:  registry,
		executor:  tools.NewExecutor(config.ToolConfig),
		log:       zerolog.Nop(),
		rejected:  rejected,
	}
}

// WithToolConfig overrides the tool execution configuration.
func (a *Agent) WithToolConfig(config tools.ToolConfig) *Agent {
	a.config.ToolConfig = config
	a.executor = tools.NewExecutor(config).WithLogger(a.log).WithMetrics(a.metrics)
	return a
}

// WithLogger sets the logger used by the agent, its model client and its executor.
func (a *Agent) WithLogger(log zerolog.Logger) *Agent {
	a.log = log
	a.llmClient.WithLogger(log)
	a.executor.WithLogger(log)
	for _, err := range a.rejected {
		log.Warn().Err(err).Str("agent", a.config.Name).Msg("tool not registered")
	}
	return a
}

// WithMetrics sets the metrics sink.
func (a *Agent) WithMetrics(m *metrics.Metrics) *Agent {
	a.metrics = m
	a.llmClient.WithMetrics(m)
	a.executor.WithMetrics(m)
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string {
	return a.config.Name
}

// MaxSteps returns the step bound.
func (a *Agent) MaxSteps() int {
	return a.config.MaxSteps
}

// Registry returns the tools offered to the model.
func (a *Agent) Registry() *tools.Registry {
	return a.registry
}

// Run executes the state machine starting in the Agent state with messages as
// the initial conversation. It returns when the model answers without tool
// calls, the step bound is hit, the model call fails or ctx is cancelled.
func (a *Agent) Run(ctx context.Context, messages []llm.Message) (Result, error) {
	start := time.Now()
	result := Result{
		Messages: append(make([]llm.Message, 0, len(messages)+4), messages...),
	}

	finish := func(outcome string, err error) (Result, error) {
		result.Duration = time.Since(start)
		a.metrics.RecordRun(outcome, result.Steps)
		event := a.log.Debug()
		if err != nil {
			event = a.log.Warn().Err(err)
		}
		event.Str("agent", a.config.Name).
			Str("outcome", outcome).
			Int("steps", result.Steps).
			Int("llm_calls", result.LLMCalls).
			Dur("duration", result.Duration).
			Msg("run finished")
		return result, err
	}

	state := StateAgent
	for state != StateEnd {
		if result.Steps >= a.config.MaxSteps {
			return finish("step_limit", &StepLimitError{Limit: a.config.MaxSteps, Steps: result.Steps})
		}
		if err := ctx.Err(); err != nil {
			return finish("cancelled", err)
		}
		result.Steps++

		switch state {
		case StateAgent:
			msg, err := a.think(ctx, &result)
			if err != nil {
				return finish("error", fmt.Errorf("agent step %d: %w", result.Steps, err))
			}
			result.Messages = append(result.Messages, msg)
			state = next(msg)

		case StateAction:
			last, _ := result.Messages[len(result.Messages)-1].(llm.AssistantMessage)
			replies, invocations, err := a.act(ctx, last, result.Steps)
			if err != nil {
				return finish("cancelled", fmt.Errorf("action step %d: %w", result.Steps, err))
			}
			result.Messages = append(result.Messages, replies...)
			result.Invocations = append(result.Invocations, invocations...)
			state = StateAgent
		}

		a.log.Debug().Int("step", result.Steps).Stringer("next", state).Msg("transition")
	}

	return finish("completed", nil)
}

// next is the transition out of the Agent state.
func next(msg llm.AssistantMessage) State {
	if msg.HasToolCalls() {
		return StateAction
	}
	return StateEnd
}

// think asks the model for the next turn. When the backend returned no
// structured tool calls, the content is checked for a textual one.
func (a *Agent) think(ctx context.Context, result *Result) (llm.AssistantMessage, error) {
	resp, err := a.llmClient.ChatWithTools(ctx, result.Messages, a.registry.Definitions())
	if err != nil {
		return llm.AssistantMessage{}, err
	}
	result.LLMCalls++
	result.Usage.Add(resp.Usage)

	msg := resp.Message()
	if msg.HasToolCalls() {
		return msg, nil
	}

	if call, ok := ExtractIntent(msg.Content, a.registry); ok {
		a.log.Debug().
			Str("tool", call.Name).
			Str("call_id", call.ID).
			RawJSON("arguments", call.Arguments).
			Msg("recovered textual tool call")
		msg.ToolCalls = []llm.ToolCall{call}
	}
	return msg, nil
}

// act runs every tool call of msg and returns one tool message per call in
// the order the calls were requested.
func (a *Agent) act(ctx context.Context, msg llm.AssistantMessage, step int) ([]llm.Message, []Invocation, error) {
	calls := msg.ToolCalls
	replies := make([]llm.Message, len(calls))
	invocations := make([]Invocation, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.ParallelTools)
	for i, call := range calls {
		g.Go(func() error {
			reply, inv, err := a.invoke(gctx, call)
			if err != nil {
				return err
			}
			inv.Step = step
			replies[i] = reply
			invocations[i] = inv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return replies, invocations, nil
}

// invoke runs a single call. Unknown tools and tool failures become tool
// messages; only context cancellation is returned as an error.
func (a *Agent) invoke(ctx context.Context, call llm.ToolCall) (llm.ToolMessage, Invocation, error) {
	start := time.Now()
	inv := Invocation{CallID: call.ID, Name: call.Name, InputSize: len(call.Arguments)}
	reply := llm.ToolMessage{CallID: call.ID, ToolName: call.Name}

	tool, ok := a.registry.Get(call.Name)
	if !ok {
		a.log.Warn().Str("tool", call.Name).Str("call_id", call.ID).Msg("unknown tool requested")
		reply.Content = a.registry.UnknownToolMessage(call.Name)
		inv.OutputSize = len(reply.Content)
		inv.Duration = time.Since(start)
		return reply, inv, nil
	}

	res, err := a.executor.Execute(ctx, tool, call.Arguments)
	if err != nil {
		return reply, inv, fmt.Errorf("tool %s: %w", call.Name, err)
	}

	reply.Content = res.Text()
	inv.OutputSize = len(reply.Content)
	inv.Duration = time.Since(start)
	inv.Success = res.Success()
	return reply, inv, nil
}
