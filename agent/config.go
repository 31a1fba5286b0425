// Agent configuration types.
//
// Information Hiding:
// - Default values hidden

package agent

import (
	"github.com/premjatin/LLM-WebSearch/tools"
)

const (
	// DefaultMaxSteps bounds the number of Agent and Action states one run may execute.
	DefaultMaxSteps = 15

	// DefaultParallelTools bounds concurrent tool calls within one Action step.
	DefaultParallelTools = 4
)

// Config holds the run configuration of an agent.
type Config struct {
	// Name identifies the agent in logs.
	Name string

	// MaxSteps is the step bound. Starting a state once MaxSteps states
	// have run aborts the run with a StepLimitError.
	MaxSteps int

	// ParallelTools caps how many tool calls of one Action step run at once.
	ParallelTools int

	// Tools available to the model, in the order they are offered.
	Tools []tools.Tool

	// ToolConfig controls per-call timeout and retries.
	ToolConfig tools.ToolConfig
}

// DefaultConfig returns a configuration with no tools.
func DefaultConfig() Config {
	return Config{
		Name:          "searchy",
		MaxSteps:      DefaultMaxSteps,
		ParallelTools: DefaultParallelTools,
		Tools:         []tools.Tool{},
		ToolConfig:    tools.DefaultToolConfig(),
	}
}

// HasTools returns true if the agent has tools configured.
func (c *Config) HasTools() bool {
	return len(c.Tools) > 0
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "searchy"
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.ParallelTools <= 0 {
		c.ParallelTools = DefaultParallelTools
	}
	if c.ToolConfig == (tools.ToolConfig{}) {
		c.ToolConfig = tools.DefaultToolConfig()
	}
	return c
}
