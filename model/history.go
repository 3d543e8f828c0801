package model

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// NotExecutedResult is the synthesized result paired with a tool call that
// was rejected (unknown tool, invalid arguments) before execution.
const NotExecutedResult = "Tool call was not executed."

// PairToolCalls prepares a history for providers that require every tool
// call to be answered by a result carrying the same call ID:
//
//   - calls without a provider ID get a deterministic one ("call_<position>")
//   - a result without an ID inherits the ID of the call it answers
//   - a call not directly followed by its result gets a NotExecutedResult
//
// Results that answer no call pass through unchanged. The input slice is not modified.
func PairToolCalls(msgs []core.Message) []core.Message {
	out := make([]core.Message, 0, len(msgs)+2)

	for i := 0; i < len(msgs); i++ {
		call, ok := msgs[i].(core.ToolCall)
		if !ok {
			out = append(out, msgs[i])
			continue
		}

		if call.ProviderCallID == "" {
			call.ProviderCallID = fmt.Sprintf("call_%d", i)
		}
		out = append(out, call)

		if i+1 < len(msgs) {
			if res, isRes := msgs[i+1].(core.ToolCallResult); isRes && (res.ProviderCallID == "" || res.ProviderCallID == call.ProviderCallID) {
				res.ProviderCallID = call.ProviderCallID
				out = append(out, res)
				i++
				continue
			}
		}

		out = append(out, core.ToolCallResult{ProviderCallID: call.ProviderCallID, Result: NotExecutedResult})
	}

	return out
}

// IsErrorResult reports whether a tool result carries an error payload
// ({"error": ...}) or is the synthesized NotExecutedResult.
func IsErrorResult(result any) bool {
	switch v := result.(type) {
	case map[string]any:
		_, ok := v["error"]
		return ok
	case string:
		return v == NotExecutedResult
	}
	return false
}

// CanonicalFinish maps a provider-native stop reason via table; unmapped
// reasons pass through unchanged.
func CanonicalFinish(table map[string]string, native string) string {
	if c, ok := table[native]; ok {
		return c
	}
	return native
}
