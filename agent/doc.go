// Package agent runs strategy graphs against a model executor and a tool
// registry.
//
// An Agent owns a Pipeline, builds a fresh run scope (iteration counter,
// key/value store, LLM context, environment) for every Run and drives its
// strategy subgraph from start to finish. Runs are single-flight: a second
// Run on the same agent fails with ErrAgentRunning while one is in progress.
//
// Lifecycle of a run:
//
//  1. Wait for installed features to become ready.
//  2. OnAgentCreated (first run only), OnAgentStarted, OnStrategyStarted.
//  3. Execute the strategy.
//  4. SendTermination on the environment, OnStrategyFinished, OnAgentFinished.
//
// Failures are reported to the environment and to the run-error handlers. A
// handler may claim the failure; the run then ends without result and
// without error. Unclaimed failures are returned to the caller.
//
// Features are installed with Install before the first run:
//
//	a := agent.New(graph.SingleRunStrategy("chat"), executor, func(o *agent.Options) {
//		o.Registry = registry
//		o.Config.Model = "gpt-4o-mini"
//	})
//	_ = agent.Install(a, tracing.Feature{}, nil)
//	answer, ok, err := a.RunAndGetResult(ctx, "What is 2+2?")
package agent
