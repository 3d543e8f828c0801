package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/tool"
)

// Corrective turns appended as user messages when the model does not comply.

func finalIterationWarning() string {
	return fmt.Sprintf(
		"This is your last step. You must call the %s tool now with your best final answer.",
		tool.FinalAnswerName,
	)
}

func missingToolCallMessage(names []string) string {
	return fmt.Sprintf(
		"You must call exactly one tool at every step. Available tools: %s. When the task is complete, call %s.",
		strings.Join(names, ", "), tool.FinalAnswerName,
	)
}

func unknownToolMessage(name string, names []string) string {
	return fmt.Sprintf(
		"Tool %q does not exist. Call one of the available tools: %s.",
		name, strings.Join(names, ", "),
	)
}

func invalidArgumentsMessage(name, reason string, schema map[string]any) string {
	return fmt.Sprintf(
		"The arguments for tool %q are invalid: %s. Call it again with arguments matching this JSON schema: %s",
		name, reason, util.SchemaJSON(schema),
	)
}

func exceededIterationsReason(max int) string {
	return fmt.Sprintf("Agent exceeded maximum iterations (%d)", max)
}
