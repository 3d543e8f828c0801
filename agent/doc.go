// Package agent implements the ReAct tool-calling loop.
//
// An Agent repeatedly sends the run history to a model.Completer, interprets
// the reply and executes at most one tool call per turn through a
// tool.Registry. The loop ends when the model calls the agent_final_answer
// tool (Completed) or when the iteration ceiling is reached (Failed).
//
// Model noncompliance is absorbed as corrective conversation turns:
//   - a reply without a tool call
//   - a call to an unknown tool
//   - arguments that fail schema validation
//
// System failures (unsupported features, transport or streaming errors,
// cancellation) abort the run and are returned to the caller.
//
// History is owned by the loop for the duration of a run. Tools receive a
// read-only copy through core.ToolContext.
package agent
