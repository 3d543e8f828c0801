package tool

import (
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
)

// FinalAnswerName is the reserved tool that ends an agent run.
const FinalAnswerName = "agent_final_answer"

// FinalAnswerTool is called by the model to deliver its final answer. Its
// return value is the run's termination payload rather than a history entry.
type FinalAnswerTool struct{}

// NewFinalAnswerTool returns the final answer tool.
func NewFinalAnswerTool() *FinalAnswerTool { return &FinalAnswerTool{} }

// Name implements Tool.
func (FinalAnswerTool) Name() string { return FinalAnswerName }

// Description implements Tool.
func (FinalAnswerTool) Description() string {
	return "Call this tool with your final answer once the task is complete."
}

// Parameters implements Tool.
func (FinalAnswerTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"final_answer": map[string]any{
				"description": "The final answer to the task.",
			},
		},
		"required": []string{"final_answer"},
	}
}

// Call returns the final_answer argument.
func (FinalAnswerTool) Call(_ *core.ToolContext, args any) (any, error) {
	return util.ArgumentsObject(args)["final_answer"], nil
}

// ManagedTool declares a tool hosted by the model provider.
type ManagedTool struct {
	name        string
	description string
}

// WebSearch declares the provider-hosted web search tool.
func WebSearch() *ManagedTool {
	return &ManagedTool{name: model.ToolWebSearch, description: "Search the web."}
}

// CodeExecution declares the provider-hosted code execution tool.
func CodeExecution() *ManagedTool {
	return &ManagedTool{name: model.ToolCodeExecution, description: "Execute code in a sandbox."}
}

// Name implements Tool.
func (t *ManagedTool) Name() string { return t.name }

// Description implements Tool.
func (t *ManagedTool) Description() string { return t.description }

// Parameters implements Tool.
func (t *ManagedTool) Parameters() map[string]any { return nil }

// ProviderManaged implements ProviderManaged.
func (t *ManagedTool) ProviderManaged() bool { return true }

// Call implements Tool. Hosted tools never run locally.
func (t *ManagedTool) Call(_ *core.ToolContext, _ any) (any, error) {
	return nil, NewToolError(t.name, "provider-managed tool cannot be invoked locally", CodeExecutionError)
}

var (
	_ Tool            = FinalAnswerTool{}
	_ Tool            = (*ManagedTool)(nil)
	_ ProviderManaged = (*ManagedTool)(nil)
)
