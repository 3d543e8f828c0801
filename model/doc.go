// Package model defines the provider-agnostic abstractions for driving
// language models.
//
// Core goals:
//   - Isolate every vendor wire protocol behind one Adapter capability set
//   - Normalize streaming events into one incrementally updated Snapshot
//     plus a uniform text delta and finish reason
//   - Coalesce fine-grained deltas so consumers are woken at bounded frequency
//   - Keep request/response shapes transport independent (Transport, EventSource)
//   - Facilitate lightweight scripting for tests (ScriptedCompleter)
//
// Providers (Anthropic, OpenAI, Bedrock, Google) live in sub-packages and are
// selected through a Registry keyed by Provider.
package model
