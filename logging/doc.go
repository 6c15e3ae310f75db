// Package logging provides a minimal logging interface and adapters for agentgraph.
//
// The Logger interface defines the standard leveled methods (Debug, Info, Warn,
// Error) that agents, graphs, sessions and the tool dispatcher use for
// observability. Arguments after the message are alternating key/value pairs.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZerologAdapter wrapping github.com/rs/zerolog
//   - GologAdapter wrapping github.com/kataras/golog
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewZerologAdapter(zerolog.New(os.Stdout).With().Timestamp().Logger())
//	a := agent.New(strategy, executor, func(o *agent.Options) { o.Logger = logger })
//
// The interface is intentionally small so that any structured logger can be
// plugged in without pulling it into the core packages.
package logging
