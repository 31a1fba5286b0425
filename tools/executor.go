// Tool Executor with timeout and retry logic.
//
// Information Hiding:
// - Retry strategy implementation hidden
// - Backoff algorithm hidden
// - Error classification logic hidden

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/premjatin/LLM-WebSearch/internal/metrics"
)

// Executor runs tools with validation, a per-call timeout and bounded retries.
type Executor struct {
	config  ToolConfig
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewExecutor creates a new tool executor with the given configuration.
func NewExecutor(config ToolConfig) *Executor {
	return &Executor{config: config, log: zerolog.Nop()}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultToolConfig())
}

// WithLogger sets the executor logger.
func (e *Executor) WithLogger(log zerolog.Logger) *Executor {
	e.log = log
	return e
}

// WithMetrics sets the metrics sink.
func (e *Executor) WithMetrics(m *metrics.Metrics) *Executor {
	e.metrics = m
	return e
}

// Execute validates the arguments and runs the tool, retrying transient failures.
// The returned ToolResult always describes the outcome; the error is non-nil
// only when ctx is cancelled while waiting to retry.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	name := tool.Metadata().Name
	start := time.Now()

	result, err := e.execute(ctx, tool, args)

	ok := err == nil && result.Success()
	e.metrics.RecordTool(name, time.Since(start), ok)
	event := e.log.Debug()
	if !ok {
		event = e.log.Warn()
		if err != nil {
			event = event.Err(err)
		} else {
			event = event.AnErr("tool_error", result.Error)
		}
	}
	event.Str("tool", name).Dur("duration", time.Since(start)).Bool("ok", ok).Msg("tool executed")

	return result, err
}

func (e *Executor) execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	if err := tool.Validate(args); err != nil {
		return FailureResult(fmt.Errorf("validation failed: %w", err)), nil
	}

	var lastErr error
	toolName := tool.Metadata().Name
	maxAttempts := e.config.Retries()

	for attempt := uint32(0); attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ToolResult{}, ctx.Err()
			case <-time.After(e.calculateBackoff(attempt)):
			}
		}

		result, err := e.runOnce(ctx, tool, args)
		if err != nil {
			lastErr = err
			if !isTransient(err) {
				break
			}
			continue
		}

		if result.Success() || !isTransient(result.Error) {
			return result, nil
		}
		lastErr = result.Error
	}

	errMsg := "unknown error"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	if maxAttempts == 1 {
		return FailureResultf("tool '%s' failed: %s", toolName, errMsg), nil
	}
	return FailureResultf("tool '%s' failed after %d attempts: %s", toolName, maxAttempts, errMsg), nil
}

func (e *Executor) runOnce(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.config.Timeout())*time.Second)
	defer cancel()
	return tool.Execute(ctx, args)
}

// calculateBackoff returns the backoff duration for the given attempt.
func (e *Executor) calculateBackoff(attempt uint32) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)

	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// isTransient reports whether err looks like a timeout or connection failure.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errLower := strings.ToLower(err.Error())
	for _, s := range []string{"validation", "not allowed", "permission", "empty"} {
		if strings.Contains(errLower, s) {
			return false
		}
	}
	for _, s := range []string{"timeout", "timed out", "connection", "network", "temporarily"} {
		if strings.Contains(errLower, s) {
			return true
		}
	}
	return false
}
