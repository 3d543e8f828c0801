package tool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

// InvocationResult is the outcome of a successful invocation.
type InvocationResult struct {
	// Message is the ToolCallResult keyed by the provider call ID.
	Message core.ToolCallResult
	// Value is the raw value returned by the tool.
	Value    any
	Duration time.Duration
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Validator SchemaValidator
	Logger    logging.Logger
}

// Registry holds the tools available to a run. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	opts  RegistryOptions
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools []Tool, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Validator: NewJSONSchemaValidator(),
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Validator == nil {
		opts.Validator = NewJSONSchemaValidator()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	r := &Registry{tools: make(map[string]Tool, len(tools)), opts: opts}
	for _, t := range tools {
		r.Register(t)
	}

	return r
}

// Register adds a tool, replacing any tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[t.Name()] = t
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tools, name)
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Names returns the names of locally executable tools, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name, t := range r.tools {
		if !isProviderManaged(t) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return names
}

// Definitions returns the declarations of all tools sorted by name.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]model.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, model.ToolDefinition{
			Name:            t.Name(),
			Description:     t.Description(),
			Parameters:      t.Parameters(),
			ProviderManaged: isProviderManaged(t),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return defs
}

// SchemaFor returns the schema used to validate calls of t.
func (r *Registry) SchemaFor(t Tool, toolCtx *core.ToolContext) map[string]any {
	if sp, ok := t.(SchemaProvider); ok {
		return sp.ParametersFor(toolCtx)
	}
	return t.Parameters()
}

// Invoke resolves, validates and executes one tool call. It fails with
// *core.UnknownToolError when name is not available, *core.ValidationError
// when args violate the schema, and *ToolError when the tool itself fails or
// panics. history is handed to the tool read-only and never modified.
func (r *Registry) Invoke(ctx context.Context, name string, args any, callID string, history []core.Message) (*InvocationResult, error) {
	t, ok := r.Get(name)
	if !ok || isProviderManaged(t) {
		return nil, &core.UnknownToolError{Name: name, Available: r.Names()}
	}

	toolCtx := core.NewToolContext(ctx, core.RunIDFromContext(ctx), callID, name, history, r.opts.Logger)

	schema := r.SchemaFor(t, toolCtx)
	if err := r.opts.Validator.Validate(schema, args); err != nil {
		return nil, &core.ValidationError{Tool: name, Reason: err.Error(), Schema: schema}
	}

	start := time.Now()
	value, err := r.call(t, toolCtx, args)
	dur := time.Since(start)

	if cl, ok := r.opts.Logger.(logging.CallLogger); ok {
		cl.LogToolCall(name, dur, err == nil, err)
	}

	if err != nil {
		return nil, err
	}

	return &InvocationResult{
		Message:  core.ToolCallResult{ProviderCallID: callID, Result: value},
		Value:    value,
		Duration: dur,
	}, nil
}

func (r *Registry) call(t Tool, toolCtx *core.ToolContext, args any) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.Logger.Error("tool.call.panic", "tool", t.Name(), "panic", rec, "stack", string(debug.Stack()))
			value = nil
			err = &ToolError{Tool: t.Name(), Message: fmt.Sprintf("panic: %v", rec), Code: CodePanic}
		}
	}()

	value, err = t.Call(toolCtx, args)
	if err != nil {
		if _, ok := err.(*ToolError); !ok {
			err = &ToolError{Tool: t.Name(), Message: err.Error(), Code: CodeExecutionError}
		}
	}

	return value, err
}
