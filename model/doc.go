// Package model defines the provider-neutral boundary to text generation
// services.
//
// An Executor runs a Request (transcript, model id, tool descriptors and a
// tool choice constraint) and returns one or more Responses, or streams plain
// text chunks. Concrete providers live in sub-packages:
//
//   - model/openai     OpenAI Chat Completions via github.com/openai/openai-go
//   - model/anthropic  Anthropic Messages via github.com/anthropics/anthropic-sdk-go
//   - model/langchain  any github.com/tmc/langchaingo llms.Model
//
// MockExecutor is provided for tests and examples.
package model
