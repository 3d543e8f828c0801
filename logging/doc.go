// Package logging defines the Logger contract shared by the agent loop, the
// model client, transports and the tool invoker, together with slog-backed
// implementations.
//
// StructuredLogger adds component, run and provider scoping and emits one
// summary entry per model or tool call through CallLogger:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false).WithComponent("agent")
//	a := agent.New(client, func(o *agent.Options) { o.Logger = logger })
//
// NoOpLogger is substituted wherever a nil Logger is configured.
package logging
