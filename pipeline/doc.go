// Package pipeline is the interceptor registry that lets independently
// developed features observe or alter every lifecycle transition of an agent
// run without the runtime depending on them.
//
// Each hook category keeps an ordered map of handlers keyed by FeatureKey.
// Registering a handler twice for the same key and category replaces the
// earlier handler in place; dispatch invokes every handler of the category
// sequentially in registration order.
//
// Categories:
//   - agent: created, started, finished, run error (handlers may claim the error)
//   - environment transform (left fold over decorators)
//   - strategy: started, finished
//   - node: before, after
//   - model call: before/after, with and without tools
//   - tool batch: before/after
//   - tool call: call, validation error, failure, result
//
// Features are installed with Install. A feature's configuration may carry
// MessageProcessors; they are initialized asynchronously and the run waits
// for them through AwaitFeaturesReady. CloseFeatures releases them.
package pipeline
