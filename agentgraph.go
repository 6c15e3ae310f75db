// Package agentgraph provides a high-level façade over the agent runtime.
// Most applications interact with this package by:
//  1. Describing the agent in a YAML file (or relying on the defaults)
//  2. Calling New with a model executor and the tools the agent may use
//  3. Running the returned agent with Run or RunAndGetResult
//
// Strategies, features and stores remain available through the agent, graph,
// feature and session packages for anything the façade does not cover.
package agentgraph

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/config"
	"github.com/hupe1980/agentgraph/feature/tracing"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/pipeline"
	"github.com/hupe1980/agentgraph/session"
	"github.com/hupe1980/agentgraph/tool"
)

// Options configures New.
type Options struct {
	// ConfigPath names a YAML agent configuration. Empty uses config.Default
	// with environment overrides applied.
	ConfigPath string

	// Strategy defaults to graph.SingleRunStrategy.
	Strategy *graph.Subgraph[string, string]

	Tools []tool.Tool

	// TraceProcessors, when set, installs the tracing feature with them.
	TraceProcessors []pipeline.MessageProcessor

	SessionStore session.Store
	SessionID    string

	// Logger overrides the logger built from the configuration.
	Logger    logging.Logger
	LogOutput io.Writer
}

// New assembles an agent from configuration, tools and optional tracing.
func New(executor model.Executor, optFns ...func(o *Options)) (*agent.Agent, error) {
	opts := Options{LogOutput: os.Stderr}
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger, err = cfg.Logging.Build(opts.LogOutput)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}

	registry, err := tool.NewRegistry(opts.Tools...)
	if err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	strategy := opts.Strategy
	if strategy == nil {
		strategy = graph.SingleRunStrategy("single_run")
	}

	a := agent.New(strategy, executor, func(o *agent.Options) {
		cfg.Apply(o)
		o.Registry = registry
		o.SessionStore = opts.SessionStore
		o.SessionID = opts.SessionID
		o.Logger = logger
	})

	if len(opts.TraceProcessors) > 0 {
		if err := agent.Install(a, tracing.Feature{}, func(c *tracing.Config) {
			c.Logger = logger
			for _, p := range opts.TraceProcessors {
				c.AddProcessor(p)
			}
		}); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func loadConfig(path string) (config.Agent, error) {
	if path == "" {
		return config.Parse(strings.NewReader(""))
	}
	return config.Load(path)
}

