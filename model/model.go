package model

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/agentloop/core"
)

// Provider identifies a vendor wire protocol.
type Provider string

const (
	ProviderAnthropic       Provider = "anthropic"
	ProviderOpenAI          Provider = "openai"
	ProviderOpenAIResponses Provider = "openai_responses"
	ProviderBedrock         Provider = "bedrock"
	ProviderGoogle          Provider = "google"
	ProviderMock            Provider = "mock"
)

const (
	defaultMaxTokens int64 = 4096

	// DefaultChunkSize is the coalescing threshold in bytes of buffered text.
	DefaultChunkSize = 25
)

// Canonical finish reasons. Providers map their native stop reasons onto these;
// unmapped values pass through unchanged.
const (
	FinishStop          = "stop"
	FinishToolCalls     = "tool_calls"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
	FinishError         = "error"
)

// Names of provider-managed tools understood by the adapters.
const (
	ToolWebSearch     = "web_search"
	ToolCodeExecution = "code_execution"
)

// ToolDefinition declares a tool to the model. ProviderManaged tools are mapped
// onto the provider's native tool mechanism and are never executed locally.
type ToolDefinition struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	ProviderManaged bool           `json:"provider_managed,omitempty"`
}

// ToolChoiceMode controls whether and which tool the model must call.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceTool     ToolChoiceMode = "tool"
)

// ToolChoice is the tool selection constraint for one call. The zero value means auto.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode,omitempty"`
	Name string         `json:"name,omitempty"`
}

// ForceTool returns a choice that requires the model to call exactly the named tool.
func ForceTool(name string) ToolChoice { return ToolChoice{Mode: ToolChoiceTool, Name: name} }

// IsForced reports whether a specific tool is required.
func (c ToolChoice) IsForced() bool { return c.Mode == ToolChoiceTool && c.Name != "" }

// Request captures the normalized model input for one call.
type Request struct {
	Model       string           `json:"model"`
	System      string           `json:"system,omitempty"`
	Messages    []core.Message   `json:"-"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  ToolChoice       `json:"tool_choice,omitempty"`
	MaxTokens   int64            `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

// EffectiveMaxTokens returns MaxTokens or the default when unset.
func (r Request) EffectiveMaxTokens() int64 {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

// ToolCall is a tool request extracted from a model response.
// Arguments holds the parsed JSON value, or the raw string when parsing failed.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// Adapter isolates one vendor wire protocol behind a fixed capability set.
type Adapter interface {
	// Provider returns the identifier the adapter is registered under.
	Provider() Provider

	// FormatOutbound maps a request onto the provider wire payload.
	// Inputs the provider cannot express fail with *core.UnsupportedFeatureError.
	FormatOutbound(req Request) (any, error)

	// ParseResponse converts a complete (non-streaming) response body into a snapshot.
	ParseResponse(body []byte) (*Snapshot, error)

	// ExtractToolCalls returns the tool calls of a non-streaming response, or nil.
	ExtractToolCalls(body []byte) ([]ToolCall, error)

	// SupportsNativeToolUse reports whether the provider has a tool calling protocol.
	SupportsNativeToolUse() bool

	// ProviderManagedTool maps a provider-managed tool onto the provider's native tool.
	ProviderManagedTool(def ToolDefinition) (any, error)

	// NewNormalizer returns a fresh streaming normalizer for one call.
	NewNormalizer() Normalizer
}

// StreamFunc receives coalesced text and the full snapshot at each flush.
type StreamFunc func(delta string, snapshot *Snapshot) error

// Completer drives one model call. *Client is the production implementation.
type Completer interface {
	Provider() Provider
	SupportsNativeToolUse() bool
	Complete(ctx context.Context, req Request, onFlush StreamFunc) (*Snapshot, error)
}

// Info contains metadata about a configured model client.
type Info struct {
	Provider      Provider `json:"provider"`
	SupportsTools bool     `json:"supports_tools"`
}

// ExtractFromResponse implements ExtractToolCalls on top of ParseResponse.
func ExtractFromResponse(a Adapter, body []byte) ([]ToolCall, error) {
	snap, err := a.ParseResponse(body)
	if err != nil {
		return nil, err
	}

	calls := snap.ToolCalls()
	if len(calls) == 0 {
		return nil, nil
	}

	return calls, nil
}

// SplitTools separates locally executed tools from provider-managed ones.
func SplitTools(defs []ToolDefinition) (local, managed []ToolDefinition) {
	for _, d := range defs {
		if d.ProviderManaged {
			managed = append(managed, d)
		} else {
			local = append(local, d)
		}
	}
	return local, managed
}

// Registry is a static table of adapter constructors keyed by provider.
type Registry struct {
	factories map[Provider]func() Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[Provider]func() Adapter{}}
}

// Register adds or replaces the constructor for a provider.
func (r *Registry) Register(p Provider, factory func() Adapter) {
	r.factories[p] = factory
}

// Lookup constructs the adapter registered for p.
func (r *Registry) Lookup(p Provider) (Adapter, error) {
	f, ok := r.factories[p]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", p)
	}
	return f(), nil
}

// Providers lists registered providers in sorted order.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
