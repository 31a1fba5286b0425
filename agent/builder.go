// Agent builder for fluent configuration.

package agent

import (
	"github.com/premjatin/LLM-WebSearch/tools"
)

// Builder provides fluent configuration for creating agents.
type Builder struct {
	name          string
	maxSteps      int
	parallelTools int
	tools         []tools.Tool
	toolConfig    tools.ToolConfig
}

// NewBuilder creates a new agent builder with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:          name,
		maxSteps:      DefaultMaxSteps,
		parallelTools: DefaultParallelTools,
		tools:         []tools.Tool{},
		toolConfig:    tools.DefaultToolConfig(),
	}
}

// MaxSteps sets the step bound.
func (b *Builder) MaxSteps(n int) *Builder {
	b.maxSteps = n
	return b
}

// ParallelTools sets how many tool calls may run at once.
func (b *Builder) ParallelTools(n int) *Builder {
	b.parallelTools = n
	return b
}

// Tool adds a tool to the agent.
func (b *Builder) Tool(tool tools.Tool) *Builder {
	b.tools = append(b.tools, tool)
	return b
}

// Tools adds multiple tools at once.
func (b *Builder) Tools(toolList []tools.Tool) *Builder {
	b.tools = append(b.tools, toolList...)
	return b
}

// ToolConfig sets the per-call timeout and retry policy.
func (b *Builder) ToolConfig(config tools.ToolConfig) *Builder {
	b.toolConfig = config
	return b
}

// Build creates the agent configuration.
func (b *Builder) Build() Config {
	return Config{
		Name:          b.name,
		MaxSteps:      b.maxSteps,
		ParallelTools: b.parallelTools,
		Tools:         b.tools,
		ToolConfig:    b.toolConfig,
	}.withDefaults()
}

// Name returns the builder's agent name.
func (b *Builder) Name() string {
	return b.name
}

// ToolCount returns the number of tools registered.
func (b *Builder) ToolCount() int {
	return len(b.tools)
}
