// Package tool implements the tool calling subsystem of an agent run: the Tool
// contract, a concurrency-safe Registry that resolves, validates and invokes
// tools, and the built-in final answer and provider-managed declarations.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// Tool defines a capability the model can call.
//
// Tools are registered with a Registry and declared to the model through
// their name, description and JSON schema. Implementations must be safe for
// concurrent use when runs execute in parallel.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description is shown to the model to explain when to call the tool.
	Description() string

	// Parameters returns the JSON schema of the accepted arguments.
	Parameters() map[string]any

	// Call executes the tool. Arguments have already been validated against
	// the tool's schema.
	Call(toolCtx *core.ToolContext, args any) (any, error)
}

// SchemaProvider is implemented by tools whose schema depends on the
// invocation (e.g. an enum of values only known per run). When present it
// takes precedence over Parameters for validation.
type SchemaProvider interface {
	ParametersFor(toolCtx *core.ToolContext) map[string]any
}

// ProviderManaged marks tools executed by the model provider rather than
// locally. They are declared to the provider but never invoked.
type ProviderManaged interface {
	ProviderManaged() bool
}

// Error codes used by ToolError.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeExecutionError = "EXECUTION_ERROR"
	CodePanic          = "PANIC"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

func isProviderManaged(t Tool) bool {
	pm, ok := t.(ProviderManaged)
	return ok && pm.ProviderManaged()
}
