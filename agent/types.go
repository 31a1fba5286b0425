// Package agent implements the tool-calling orchestration state machine.
//
// A run alternates between two states: Agent, which asks the model for the
// next turn, and Action, which executes the tool calls that turn requested.
// The run ends when the model answers without requesting a tool, or aborts
// when the step bound is reached.
package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/premjatin/LLM-WebSearch/llm"
)

// State is a node of the orchestration state machine.
type State int

const (
	StateAgent State = iota
	StateAction
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateAgent:
		return "agent"
	case StateAction:
		return "action"
	case StateEnd:
		return "end"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrStepLimitExceeded is matched by errors.Is for runs aborted by the step bound.
var ErrStepLimitExceeded = errors.New("step limit exceeded")

// StepLimitError reports a run that needed more than Limit steps.
type StepLimitError struct {
	Limit int
	Steps int
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("agent stopped after %d of %d steps: %s", e.Steps, e.Limit, ErrStepLimitExceeded)
}

func (e *StepLimitError) Unwrap() error {
	return ErrStepLimitExceeded
}

// Invocation records one tool call executed during an Action step.
type Invocation struct {
	CallID     string        `json:"call_id"`
	Name       string        `json:"name"`
	Step       int           `json:"step"`
	InputSize  int           `json:"input_size"`
	OutputSize int           `json:"output_size"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
}

// Result is the outcome of a run. On error it holds whatever had been
// produced before the run stopped.
type Result struct {
	// Messages is the full sequence: the input followed by every assistant
	// and tool message the run appended.
	Messages    []llm.Message
	Steps       int
	LLMCalls    int
	Usage       llm.TokenUsage
	Invocations []Invocation
	Duration    time.Duration
}

// Final returns the trailing message when it is an assistant answer with no
// pending tool calls.
func (r Result) Final() (llm.AssistantMessage, bool) {
	if len(r.Messages) == 0 {
		return llm.AssistantMessage{}, false
	}
	msg, ok := r.Messages[len(r.Messages)-1].(llm.AssistantMessage)
	if !ok || msg.HasToolCalls() {
		return llm.AssistantMessage{}, false
	}
	return msg, true
}
