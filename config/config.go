// Package config loads agent configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/logging"
)

// Environment variables overriding file values.
const (
	EnvModel         = "AGENTGRAPH_MODEL"
	EnvFixingModel   = "AGENTGRAPH_FIXING_MODEL"
	EnvMaxIterations = "AGENTGRAPH_MAX_ITERATIONS"
	EnvLogLevel      = "AGENTGRAPH_LOG_LEVEL"
)

// Agent is the file representation of an agent.
type Agent struct {
	ID                string  `yaml:"id"`
	Model             string  `yaml:"model"`
	FixingModel       string  `yaml:"fixing_model"`
	MaxIterations     int     `yaml:"max_iterations"`
	SystemPrompt      string  `yaml:"system_prompt"`
	ToolConcurrency   int     `yaml:"tool_concurrency"`
	StructuredRetries int     `yaml:"structured_retries"`
	Logging           Logging `yaml:"logging"`
}

// Logging selects the log level and output format.
type Logging struct {
	Level string `yaml:"level"`
	// Format is "json" (default) or "console".
	Format string `yaml:"format"`
}

// Default returns the built-in defaults.
func Default() Agent {
	return Agent{
		Model:             "gpt-4o-mini",
		MaxIterations:     agent.DefaultConfig.MaxIterations,
		ToolConcurrency:   agent.DefaultConfig.ToolConcurrency,
		StructuredRetries: agent.DefaultConfig.StructuredRetries,
		Logging:           Logging{Level: "info", Format: "json"},
	}
}

// Load reads a YAML file, applies defaults and environment overrides, and
// validates the result.
func Load(path string) (Agent, error) {
	f, err := os.Open(path)
	if err != nil {
		return Agent{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse is Load for an already opened document.
func Parse(r io.Reader) (Agent, error) {
	cfg := Default()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Agent{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Agent{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Agent{}, err
	}
	return cfg, nil
}

func (c *Agent) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Model = v
	}
	if v, ok := lookup(EnvFixingModel); ok && v != "" {
		c.FixingModel = v
	}
	if v, ok := lookup(EnvMaxIterations); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxIterations, err)
		}
		c.MaxIterations = n
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration.
func (c Agent) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations))
	}
	if c.ToolConcurrency < 0 {
		errs = append(errs, fmt.Errorf("tool_concurrency must not be negative, got %d", c.ToolConcurrency))
	}
	if c.StructuredRetries < 0 {
		errs = append(errs, fmt.Errorf("structured_retries must not be negative, got %d", c.StructuredRetries))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// AgentConfig converts the file values into agent.Config.
func (c Agent) AgentConfig() agent.Config {
	return agent.Config{
		ID:                c.ID,
		Model:             c.Model,
		FixingModel:       c.FixingModel,
		MaxIterations:     c.MaxIterations,
		StructuredRetries: c.StructuredRetries,
		ToolConcurrency:   c.ToolConcurrency,
	}
}

// Apply copies the configuration into agent options.
func (c Agent) Apply(o *agent.Options) {
	o.Config = c.AgentConfig()
	if c.SystemPrompt != "" {
		o.Instruction = agent.NewInstructionFromText(c.SystemPrompt)
	}
}

// Build constructs a zerolog-backed logger writing to w.
func (l Logging) Build(w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	if l.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	zl := zerolog.New(w).Level(logging.ZerologLevel(level)).With().Timestamp().Logger()
	return logging.NewZerologAdapter(zl), nil
}
