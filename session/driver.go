// Package session runs one user turn of a stored conversation through the agent.
//
// A turn loads the recent history, prefixes it with the system preamble,
// runs the state machine and stores exactly two messages: the user's
// message and the extracted answer.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/premjatin/LLM-WebSearch/agent"
	"github.com/premjatin/LLM-WebSearch/llm"
	"github.com/premjatin/LLM-WebSearch/storage"
)

// FallbackAnswer is returned when a run produced no usable assistant answer.
const FallbackAnswer = "I encountered an issue processing the final response."

// Runner executes the orchestration state machine over a message sequence.
type Runner interface {
	Run(ctx context.Context, messages []llm.Message) (agent.Result, error)
}

// HistoryStore is the persistence the driver needs.
type HistoryStore interface {
	History(ctx context.Context, ref storage.ConversationRef, limit int) ([]storage.Message, error)
	AppendTurn(ctx context.Context, ref storage.ConversationRef, question, answer string) error
}

// Reply is the outcome of one turn.
type Reply struct {
	Answer string
	Run    agent.Result
}

// Driver answers user messages within stored conversations.
type Driver struct {
	runner       Runner
	store        HistoryStore
	preamble     string
	historyLimit int
	log          zerolog.Logger
}

// NewDriver creates a driver using the default preamble and history window.
func NewDriver(runner Runner, store HistoryStore) *Driver {
	return &Driver{
		runner:       runner,
		store:        store,
		preamble:     DefaultPreamble,
		historyLimit: storage.DefaultHistoryLimit,
		log:          zerolog.Nop(),
	}
}

// WithPreamble replaces the system preamble. An empty preamble sends none.
func (d *Driver) WithPreamble(preamble string) *Driver {
	d.preamble = preamble
	return d
}

// WithHistoryLimit sets how many stored messages are loaded per turn.
func (d *Driver) WithHistoryLimit(n int) *Driver {
	d.historyLimit = n
	return d
}

// WithLogger sets the driver logger.
func (d *Driver) WithLogger(log zerolog.Logger) *Driver {
	d.log = log
	return d
}

// Messages builds the initial sequence of a run: preamble, history, user message.
func (d *Driver) Messages(history []llm.Message, userMessage string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	if d.preamble != "" {
		msgs = append(msgs, llm.SystemMessage{Content: d.preamble})
	}
	msgs = append(msgs, history...)
	return append(msgs, llm.UserMessage{Content: userMessage})
}

// Answer runs one turn over the given history without touching storage.
// Errors are fatal run failures: the step bound or an unavailable backend.
func (d *Driver) Answer(ctx context.Context, userMessage string, history []llm.Message) (Reply, error) {
	result, err := d.runner.Run(ctx, d.Messages(history, userMessage))
	if err != nil {
		return Reply{Run: result}, err
	}
	return Reply{Answer: ExtractAnswer(result.Messages), Run: result}, nil
}

// Run answers userMessage within the referenced conversation and persists
// the user message and the answer. Nothing is stored when the run fails.
func (d *Driver) Run(ctx context.Context, ref storage.ConversationRef, userMessage string) (Reply, error) {
	stored, err := d.store.History(ctx, ref, d.historyLimit)
	if err != nil {
		return Reply{}, fmt.Errorf("load history: %w", err)
	}
	history := ToMessages(stored)

	d.log.Debug().
		Stringer("conversation", ref).
		Int("history", len(history)).
		Msg("running turn")

	reply, err := d.Answer(ctx, userMessage, history)
	if err != nil {
		d.log.Error().Err(err).Stringer("conversation", ref).Msg("turn failed")
		return reply, err
	}

	if err := d.store.AppendTurn(ctx, ref, userMessage, reply.Answer); err != nil {
		return reply, fmt.Errorf("store turn: %w", err)
	}

	d.log.Info().
		Stringer("conversation", ref).
		Int("steps", reply.Run.Steps).
		Int("tool_calls", len(reply.Run.Invocations)).
		Msg("turn complete")
	return reply, nil
}

// ExtractAnswer returns the content of the trailing assistant message when it
// has no pending tool calls. Otherwise it scans backward for the most recent
// such message, and returns FallbackAnswer when there is none.
func ExtractAnswer(messages []llm.Message) string {
	if n := len(messages); n > 0 {
		if last, ok := messages[n-1].(llm.AssistantMessage); ok && !last.HasToolCalls() {
			return last.Content
		}
	}

	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(llm.AssistantMessage)
		if !ok || msg.HasToolCalls() {
			continue
		}
		if strings.HasPrefix(msg.Content, "Error:") {
			break
		}
		return msg.Content
	}
	return FallbackAnswer
}

// ToMessages maps stored messages onto the model's message roles.
func ToMessages(stored []storage.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		switch m.Sender {
		case storage.SenderUser:
			msgs = append(msgs, llm.UserMessage{Content: m.Text})
		case storage.SenderAI:
			msgs = append(msgs, llm.AssistantMessage{Content: m.Text})
		}
	}
	return msgs
}
