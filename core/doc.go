// Package core provides the foundational domain types shared by the model
// adapters, the tool invoker and the agent loop:
//
//   - Message (UserText, AssistantText, ToolCall, ToolCallResult) and its
//     lossless canonical encoding
//   - The error taxonomy (unsupported feature, streaming, validation,
//     unknown tool, unknown message type)
//   - ToolContext, the scoped surface handed to tool implementations
//   - IterationBudget, the per-run iteration ceiling
//
// The package keeps provider wire formats and persistence out of scope.
package core
