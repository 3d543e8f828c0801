// Package config loads the YAML file that describes a model provider, the
// agent loop settings and the persistence backend of a host process.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	Provider    string            `yaml:"provider"`
	Model       string            `yaml:"model"`
	Endpoint    string            `yaml:"endpoint"`
	Region      string            `yaml:"region"`
	APIKey      string            `yaml:"api_key"`
	Agent       AgentConfig       `yaml:"agent"`
	Logging     LoggingConfig     `yaml:"logging"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// AgentConfig controls the agent loop.
type AgentConfig struct {
	MaxIterations     int      `yaml:"max_iterations"`
	Streaming         bool     `yaml:"streaming"`
	ChunkSize         int      `yaml:"chunk_size"`
	MaxTokens         int64    `yaml:"max_tokens"`
	Temperature       *float64 `yaml:"temperature"`
	Instruction       string   `yaml:"instruction"`
	MaxConcurrentRuns int      `yaml:"max_concurrent_runs"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PersistenceConfig selects where run progress and outcomes are recorded.
type PersistenceConfig struct {
	// Driver is "none", "memory" or "redis".
	Driver   string        `yaml:"driver"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	Codec    string        `yaml:"codec"`
	TTL      time.Duration `yaml:"ttl"`
	// PublishProgress also publishes each snapshot on the run's redis channel.
	PublishProgress bool `yaml:"publish_progress"`
}

// Load parses the YAML file at path. Environment references such as
// ${OPENAI_API_KEY} are expanded before decoding.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(content)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(content []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(content))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}

	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 10
	}

	if c.Agent.ChunkSize == 0 {
		c.Agent.ChunkSize = 25
	}

	if c.Agent.MaxConcurrentRuns == 0 {
		c.Agent.MaxConcurrentRuns = 4
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Persistence.Driver == "" {
		c.Persistence.Driver = "memory"
	}

	if c.Persistence.Codec == "" {
		c.Persistence.Codec = "json"
	}

	if c.Persistence.Prefix == "" {
		c.Persistence.Prefix = "agentloop"
	}

	if c.Persistence.TTL == 0 {
		c.Persistence.TTL = 24 * time.Hour
	}
}

// Validate checks value ranges and enumerations. Whether the provider is
// actually registered is checked when a client is built from the config.
func (c *Config) Validate() error {
	var errs []error

	if c.Model == "" {
		errs = append(errs, errors.New("model must be set"))
	}

	if c.Agent.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations))
	}

	if c.Agent.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("agent.chunk_size must be positive, got %d", c.Agent.ChunkSize))
	}

	if c.Agent.MaxConcurrentRuns < 1 {
		errs = append(errs, fmt.Errorf("agent.max_concurrent_runs must be positive, got %d", c.Agent.MaxConcurrentRuns))
	}

	if t := c.Agent.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("agent.temperature must be within [0, 2], got %g", *t))
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	switch c.Persistence.Driver {
	case "none", "memory":
	case "redis":
		if c.Persistence.Address == "" {
			errs = append(errs, errors.New("persistence.address is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown persistence.driver %q", c.Persistence.Driver))
	}

	switch c.Persistence.Codec {
	case "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("unknown persistence.codec %q", c.Persistence.Codec))
	}

	return errors.Join(errs...)
}
