package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by an agent run. Tools see a read-only copy of the conversation so far and
// never append to it; the run appends the returned result.
type ToolContext struct {
	ctx            context.Context
	runID          string
	functionCallID string
	toolName       string
	history        []Message

	*scopedLogger
}

// NewToolContext constructs a tool context for one invocation. The history
// slice is copied.
func NewToolContext(ctx context.Context, runID, functionCallID, toolName string, history []Message, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}

	h := make([]Message, len(history))
	copy(h, history)

	return &ToolContext{
		ctx:            ctx,
		runID:          runID,
		functionCallID: functionCallID,
		toolName:       toolName,
		history:        h,
		scopedLogger:   newScopedLogger(logger, runID, functionCallID, toolName),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runID }

// Logger returns a logger that tags entries with the invocation identifiers.
func (tc *ToolContext) Logger() logging.Logger { return scopedAdapter{l: tc.scopedLogger} }

// FunctionCallID returns the provider call ID associated with the tool invocation.
// Empty when the provider does not assign one.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// ToolName returns the name of the tool being invoked.
func (tc *ToolContext) ToolName() string { return tc.toolName }

// History returns a copy of the conversation preceding this call.
func (tc *ToolContext) History() []Message {
	out := make([]Message, len(tc.history))
	copy(out, tc.history)
	return out
}

// LastUserText returns the most recent user turn, if any.
func (tc *ToolContext) LastUserText() (string, bool) {
	for i := len(tc.history) - 1; i >= 0; i-- {
		if u, ok := tc.history[i].(UserText); ok {
			return u.Content, true
		}
	}
	return "", false
}

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.toolName == "" {
		return fmt.Errorf("invalid ToolContext: missing tool name")
	}

	return nil
}
