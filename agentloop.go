// Package agentloop wires the provider adapters, the agent loop and the
// persistence backends into a small host-facing API. Most applications:
//  1. Load a config.Config (or build one in code)
//  2. Create a Loop via NewFromConfig or New
//  3. Execute tasks synchronously (Run) or in the background (RunAsync)
//
// Independent runs may execute concurrently. They share only the tool
// implementations, which must therefore be safe for concurrent use.
package agentloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/config"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/model/anthropic"
	"github.com/hupe1980/agentloop/model/bedrock"
	"github.com/hupe1980/agentloop/model/google"
	"github.com/hupe1980/agentloop/model/openai"
	"github.com/hupe1980/agentloop/persist"
	"github.com/hupe1980/agentloop/tool"
)

// ErrClosed is returned by Run and RunAsync after Close.
var ErrClosed = errors.New("agentloop: closed")

// DefaultRegistry returns the adapter registry of all built-in providers.
func DefaultRegistry() *model.Registry {
	r := model.NewRegistry()
	r.Register(model.ProviderAnthropic, func() model.Adapter { return anthropic.NewAdapter() })
	r.Register(model.ProviderOpenAI, func() model.Adapter { return openai.NewAdapter() })
	r.Register(model.ProviderOpenAIResponses, func() model.Adapter { return openai.NewResponsesAdapter() })
	r.Register(model.ProviderBedrock, func() model.Adapter { return bedrock.NewAdapter() })
	r.Register(model.ProviderGoogle, func() model.Adapter { return google.NewAdapter() })
	return r
}

// Options configures a Loop.
type Options struct {
	// MaxConcurrentRuns bounds the number of runs executing at once.
	// Zero means unlimited.
	MaxConcurrentRuns int
	Recorder          persist.Recorder
	Logger            logging.Logger
}

// Loop executes agent runs with bounded concurrency.
type Loop struct {
	agent  *agent.Agent
	opts   Options
	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	closer func() error
}

// Outcome is delivered by RunAsync once a run ends.
type Outcome struct {
	Run *agent.Run
	Err error
}

// New creates a Loop around an agent.
func New(a *agent.Agent, optFns ...func(o *Options)) *Loop {
	opts := Options{
		MaxConcurrentRuns: 4,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	l := &Loop{agent: a, opts: opts}
	if opts.MaxConcurrentRuns > 0 {
		l.sem = make(chan struct{}, opts.MaxConcurrentRuns)
	}

	return l
}

// NewFromConfig builds the model client, recorder, logger and agent
// described by cfg. Extra tools are registered next to agent_final_answer.
func NewFromConfig(ctx context.Context, cfg *config.Config, tools ...tool.Tool) (*Loop, error) {
	logger := NewLogger(cfg)

	llm, err := NewCompleter(cfg, logger)
	if err != nil {
		return nil, err
	}

	rec, closer, err := NewRecorder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := agent.New(llm, func(o *agent.Options) {
		o.Model = cfg.Model
		o.MaxIterations = cfg.Agent.MaxIterations
		o.EnableStreaming = cfg.Agent.Streaming
		o.MaxTokens = cfg.Agent.MaxTokens
		o.Temperature = cfg.Agent.Temperature
		if cfg.Agent.Instruction != "" {
			o.Instruction = agent.NewInstructionFromText(cfg.Agent.Instruction)
		}
		o.Tools = tools
		o.Recorder = rec
		o.Logger = logger
	})

	l := New(a, func(o *Options) {
		o.MaxConcurrentRuns = cfg.Agent.MaxConcurrentRuns
		o.Recorder = rec
		o.Logger = logger
	})
	l.closer = closer

	return l, nil
}

// NewLogger creates the structured logger described by cfg.Logging.
func NewLogger(cfg *config.Config) logging.Logger {
	return logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false).
		WithComponent("agentloop").
		WithProvider(cfg.Provider)
}

// NewCompleter creates the model client for cfg.Provider.
func NewCompleter(cfg *config.Config, logger logging.Logger) (model.Completer, error) {
	reg := DefaultRegistry()
	if _, err := reg.Lookup(model.Provider(cfg.Provider)); err != nil {
		return nil, fmt.Errorf("%w (available: %v)", err, reg.Providers())
	}

	chunk := cfg.Agent.ChunkSize

	switch model.Provider(cfg.Provider) {
	case model.ProviderAnthropic:
		return anthropic.NewClient(func(o *anthropic.Options) {
			o.APIKey, o.BaseURL, o.ChunkSize, o.Logger = cfg.APIKey, cfg.Endpoint, chunk, logger
		}), nil
	case model.ProviderOpenAI:
		return openai.NewClient(func(o *openai.Options) {
			o.APIKey, o.BaseURL, o.ChunkSize, o.Logger = cfg.APIKey, cfg.Endpoint, chunk, logger
		}), nil
	case model.ProviderOpenAIResponses:
		return openai.NewResponsesClient(func(o *openai.Options) {
			o.APIKey, o.BaseURL, o.ChunkSize, o.Logger = cfg.APIKey, cfg.Endpoint, chunk, logger
		}), nil
	case model.ProviderBedrock:
		return bedrock.NewClient(cfg.Model, func(o *bedrock.Options) {
			o.BaseURL, o.ChunkSize, o.Logger = cfg.Endpoint, chunk, logger
			if cfg.Region != "" {
				o.Region = cfg.Region
			}
		}), nil
	case model.ProviderGoogle:
		return google.NewClient(cfg.Model, func(o *google.Options) {
			o.APIKey, o.BaseURL, o.ChunkSize, o.Logger = cfg.APIKey, cfg.Endpoint, chunk, logger
		}), nil
	default:
		return nil, fmt.Errorf("provider %q has no client constructor", cfg.Provider)
	}
}

// NewRecorder creates the persistence backend described by cfg.Persistence.
// The returned close function is never nil.
func NewRecorder(ctx context.Context, cfg *config.Config) (persist.Recorder, func() error, error) {
	nop := func() error { return nil }
	p := cfg.Persistence

	switch p.Driver {
	case "", "none":
		return persist.NopRecorder{}, nop, nil
	case "memory":
		return persist.NewInMemory(), nop, nil
	case "redis":
		codec, err := persist.CodecByName(p.Codec)
		if err != nil {
			return nil, nil, err
		}

		rec, closer, err := persist.DialRedis(ctx, p.Address, p.Password, p.DB, redisOptions(p, codec))
		if err != nil {
			return nil, nil, err
		}

		return rec, closer, nil
	default:
		return nil, nil, fmt.Errorf("unknown persistence driver %q", p.Driver)
	}
}

func redisOptions(p config.PersistenceConfig, codec persist.Codec) func(o *persist.RedisOptions) {
	return func(o *persist.RedisOptions) {
		o.Codec = codec
		o.TTL = p.TTL
		o.PublishProgress = p.PublishProgress
		if p.Prefix != "" {
			o.Prefix = p.Prefix
		}
	}
}

// Agent returns the agent executed by the loop.
func (l *Loop) Agent() *agent.Agent { return l.agent }

// Recorder returns the configured recorder, or nil.
func (l *Loop) Recorder() persist.Recorder { return l.opts.Recorder }

// Run executes task and blocks until the run ends. It waits for a free slot
// when MaxConcurrentRuns runs are already executing.
func (l *Loop) Run(ctx context.Context, task string) (*agent.Run, error) {
	if err := l.begin(); err != nil {
		return nil, err
	}
	defer l.wg.Done()

	return l.run(ctx, task)
}

// RunAsync starts task in the background. The returned channel receives
// exactly one Outcome and is then closed.
func (l *Loop) RunAsync(ctx context.Context, task string) (<-chan Outcome, error) {
	if err := l.begin(); err != nil {
		return nil, err
	}

	out := make(chan Outcome, 1)

	go func() {
		defer l.wg.Done()
		defer close(out)

		run, err := l.run(ctx, task)
		out <- Outcome{Run: run, Err: err}
	}()

	return out, nil
}

// Close waits for in-flight runs and releases the recorder connection.
func (l *Loop) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.wg.Wait()

	if l.closer != nil {
		return l.closer()
	}

	return nil
}

func (l *Loop) begin() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrClosed
	}

	l.wg.Add(1)

	return nil
}

func (l *Loop) run(ctx context.Context, task string) (*agent.Run, error) {
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
			defer func() { <-l.sem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	l.opts.Logger.Debug("agentloop.run.dispatch", "task_len", len(task))

	return l.agent.Run(ctx, task)
}
