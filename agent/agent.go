package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/persist"
	"github.com/hupe1980/agentloop/tool"
)

// Options configures an Agent.
//
// Use functional options with New to override defaults.
type Options struct {
	// Model is passed through to every request.
	Model           string
	MaxIterations   int
	EnableStreaming bool
	MaxTokens       int64
	Temperature     *float64
	Instruction     Instruction
	// Variables are available to a static instruction template.
	Variables map[string]any
	Tools     []tool.Tool
	Validator tool.SchemaValidator
	Recorder  persist.Recorder
	Logger    logging.Logger
	// OnChunk receives every flushed delta together with a snapshot copy.
	OnChunk model.StreamFunc
}

// Agent drives runs against one model.Completer. An Agent holds no per-run
// state and can execute independent runs concurrently.
type Agent struct {
	llm      model.Completer
	registry *tool.Registry
	opts     Options
}

// New creates an agent with sensible defaults:
//   - 10 iterations per run
//   - non-streaming model calls
//   - the agent_final_answer tool always registered
//   - no persistence and no logging
func New(llm model.Completer, optFns ...func(o *Options)) *Agent {
	opts := Options{
		MaxIterations: 10,
		Instruction:   NewInstructionFromText(defaultInstruction),
		Recorder:      persist.NopRecorder{},
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}
	if opts.Recorder == nil {
		opts.Recorder = persist.NopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	tools := append([]tool.Tool{tool.NewFinalAnswerTool()}, opts.Tools...)

	return &Agent{
		llm: llm,
		registry: tool.NewRegistry(tools, func(o *tool.RegistryOptions) {
			o.Validator = opts.Validator
			o.Logger = opts.Logger
		}),
		opts: opts,
	}
}

const defaultInstruction = "You are a helpful assistant that solves tasks step by step using the available tools. " +
	"Call exactly one tool at every step and finish by calling " + tool.FinalAnswerName + "."

// Registry exposes the tools available to runs of this agent.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// Run executes a fresh run for task.
func (a *Agent) Run(ctx context.Context, task string) (*Run, error) {
	return a.Execute(ctx, NewRun(task, a.opts.MaxIterations))
}

// Execute drives run until it reaches a terminal state.
//
// Each iteration:
//  1. On the last allowed iteration appends a warning and forces the
//     agent_final_answer tool choice
//  2. Sends the history and system prompt to the model
//  3. Interprets the reply, appending corrective turns on noncompliance or
//     invoking the single requested tool
//  4. Counts the iteration
//
// A run that exhausts its iterations ends Failed with a nil error. System
// failures end the run Failed and are returned. The outcome is handed to
// the Recorder in both cases.
func (a *Agent) Execute(ctx context.Context, run *Run) (*Run, error) {
	if run.Status.IsTerminal() {
		return run, fmt.Errorf("run %s already %s", run.ID, run.Status)
	}
	if run.MaxIterations < 1 {
		run.MaxIterations = a.opts.MaxIterations
	}

	ctx = core.WithRunID(ctx, run.ID)
	logger := a.opts.Logger

	run.Status = StatusIterating
	run.StartedAt = time.Now()

	logger.Info("agent.run.start", "run_id", run.ID, "max_iterations", run.MaxIterations)

	system, err := a.opts.Instruction.Resolve(ctx, run, a.variables(run))
	if err != nil {
		return a.fail(ctx, run, fmt.Errorf("resolve instruction: %w", err))
	}

	budget := core.NewIterationBudget(run.MaxIterations)
	for i := 0; i < run.IterationCount; i++ {
		_ = budget.Increment()
	}

	for !budget.Exhausted() {
		logger.Debug("agent.iteration.start", "run_id", run.ID, "iteration", budget.Count()+1)

		req := model.Request{
			Model:       a.opts.Model,
			System:      system,
			Tools:       a.registry.Definitions(),
			MaxTokens:   a.opts.MaxTokens,
			Temperature: a.opts.Temperature,
			Stream:      a.opts.EnableStreaming,
		}

		if budget.IsLast() {
			run.History = append(run.History, core.UserText{Content: finalIterationWarning()})
			req.ToolChoice = model.ForceTool(tool.FinalAnswerName)
		}

		req.Messages = append([]core.Message(nil), run.History...)

		snap, err := a.llm.Complete(ctx, req, a.onFlush(ctx, run))

		_ = budget.Increment()
		run.IterationCount = budget.Count()

		if err != nil {
			return a.fail(ctx, run, err)
		}

		done, err := a.interpret(ctx, run, snap)
		if err != nil {
			return a.fail(ctx, run, err)
		}

		if done {
			return a.complete(ctx, run)
		}
	}

	run.Status = StatusFailed
	run.FailureReason = exceededIterationsReason(run.MaxIterations)
	run.CompletedAt = time.Now()

	logger.Warn("agent.run.failed", "run_id", run.ID, "reason", run.FailureReason)
	a.recordFinal(ctx, run)

	return run, nil
}

// interpret applies one model reply to the history. It reports whether the
// final answer was captured.
func (a *Agent) interpret(ctx context.Context, run *Run, snap *model.Snapshot) (bool, error) {
	logger := a.opts.Logger
	text := snap.Text()
	calls := snap.ToolCalls()

	if len(calls) == 0 {
		if text != "" {
			run.History = append(run.History, core.AssistantText{Content: text})
		}
		run.History = append(run.History, core.UserText{Content: missingToolCallMessage(a.registry.Names())})

		logger.Warn("agent.corrective.missing_tool_call", "run_id", run.ID, "iteration", run.IterationCount)

		return false, nil
	}

	if len(calls) > 1 {
		ignored := make([]string, 0, len(calls)-1)
		for _, c := range calls[1:] {
			ignored = append(ignored, c.Name)
		}
		logger.Warn("agent.tool_call.ignored", "run_id", run.ID, "ignored", ignored)
	}

	call := calls[0]
	run.History = append(run.History, core.ToolCall{
		ProviderCallID:   call.ID,
		Name:             call.Name,
		Arguments:        call.Arguments,
		AssistantMessage: text,
	})

	res, err := a.registry.Invoke(ctx, call.Name, call.Arguments, call.ID, run.History)

	var (
		unknownErr    *core.UnknownToolError
		validationErr *core.ValidationError
		toolErr       *tool.ToolError
	)

	switch {
	case err == nil:
	case errors.As(err, &unknownErr):
		run.History = append(run.History, core.UserText{Content: unknownToolMessage(call.Name, unknownErr.Available)})
		logger.Warn("agent.corrective.unknown_tool", "run_id", run.ID, "tool", call.Name)
		return false, nil
	case errors.As(err, &validationErr):
		run.History = append(run.History, core.UserText{
			Content: invalidArgumentsMessage(call.Name, validationErr.Reason, validationErr.Schema),
		})
		logger.Warn("agent.corrective.invalid_arguments", "run_id", run.ID, "tool", call.Name, "reason", validationErr.Reason)
		return false, nil
	case errors.As(err, &toolErr):
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		run.History = append(run.History, core.ToolCallResult{
			ProviderCallID: call.ID,
			Result:         map[string]any{"error": toolErr.Message},
		})
		logger.Warn("agent.tool.failed", "run_id", run.ID, "tool", call.Name, "code", toolErr.Code)
		return false, nil
	default:
		return false, err
	}

	if call.Name == tool.FinalAnswerName {
		run.FinalAnswer = res.Value
		return true, nil
	}

	run.History = append(run.History, res.Message)

	return false, nil
}

func (a *Agent) onFlush(ctx context.Context, run *Run) model.StreamFunc {
	return func(delta string, snap *model.Snapshot) error {
		if err := a.opts.Recorder.RecordProgress(ctx, run.ID, snap); err != nil {
			a.opts.Logger.Warn("agent.record_progress.failed", "run_id", run.ID, "error", err)
		}

		if a.opts.OnChunk != nil {
			return a.opts.OnChunk(delta, snap)
		}

		return nil
	}
}

func (a *Agent) complete(ctx context.Context, run *Run) (*Run, error) {
	run.Status = StatusCompleted
	run.CompletedAt = time.Now()

	a.opts.Logger.Info("agent.run.completed", "run_id", run.ID, "iterations", run.IterationCount, "duration_ms", run.Duration().Milliseconds())
	a.recordFinal(ctx, run)

	return run, nil
}

func (a *Agent) fail(ctx context.Context, run *Run, err error) (*Run, error) {
	run.Status = StatusFailed
	run.FailureReason = err.Error()
	run.CompletedAt = time.Now()

	a.opts.Logger.Error("agent.run.error", "run_id", run.ID, "error", err)
	a.recordFinal(ctx, run)

	return run, err
}

// recordFinal uses a context detached from cancellation so that cancelled
// runs are still recorded.
func (a *Agent) recordFinal(ctx context.Context, run *Run) {
	if err := a.opts.Recorder.RecordFinal(context.WithoutCancel(ctx), run.ID, run.Result()); err != nil {
		a.opts.Logger.Warn("agent.record_final.failed", "run_id", run.ID, "error", err)
	}
}

func (a *Agent) variables(run *Run) map[string]any {
	vars := make(map[string]any, len(a.opts.Variables)+2)
	for k, v := range a.opts.Variables {
		vars[k] = v
	}
	vars["task"] = run.Task
	vars["run_id"] = run.ID
	return vars
}
