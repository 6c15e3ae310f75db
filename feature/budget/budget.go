// Package budget meters token usage and cost of model calls and stops a run
// once a configured limit is crossed.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/pipeline"
)

// Key identifies the budget feature.
const Key pipeline.FeatureKey = "budget"

// ErrBudgetExceeded rejects model calls made after usage reached a limit.
var ErrBudgetExceeded = errors.New("budget exceeded")

var perMillion = decimal.NewFromInt(1_000_000)

// Price is the cost of one million tokens.
type Price struct {
	Input  decimal.Decimal
	Output decimal.Decimal
}

// NewPrice parses per-million prices such as "0.15" and "0.60".
func NewPrice(input, output string) (Price, error) {
	in, err := decimal.NewFromString(input)
	if err != nil {
		return Price{}, fmt.Errorf("input price: %w", err)
	}
	out, err := decimal.NewFromString(output)
	if err != nil {
		return Price{}, fmt.Errorf("output price: %w", err)
	}
	return Price{Input: in, Output: out}, nil
}

// Cost returns the price of the given token counts.
func (p Price) Cost(promptTokens, completionTokens int) decimal.Decimal {
	in := p.Input.Mul(decimal.NewFromInt(int64(promptTokens)))
	out := p.Output.Mul(decimal.NewFromInt(int64(completionTokens)))
	return in.Add(out).Div(perMillion)
}

// Usage is the cumulative consumption recorded by a Tracker.
type Usage struct {
	Calls            int
	PromptTokens     int
	CompletionTokens int
	Cost             decimal.Decimal
}

// TotalTokens returns prompt plus completion tokens.
func (u Usage) TotalTokens() int { return u.PromptTokens + u.CompletionTokens }

// Tracker accumulates usage across runs. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	total   Usage
	byModel map[string]Usage
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{byModel: make(map[string]Usage)}
}

// Record adds one response's usage, priced with p.
func (t *Tracker) Record(modelName string, usage model.TokenUsage, p Price) {
	cost := p.Cost(usage.PromptTokens, usage.CompletionTokens)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total = add(t.total, usage, cost)
	t.byModel[modelName] = add(t.byModel[modelName], usage, cost)
}

// Total returns the usage recorded so far.
func (t *Tracker) Total() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// ByModel returns the usage recorded for one model.
func (t *Tracker) ByModel(modelName string) Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byModel[modelName]
}

// Reset clears all recorded usage.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = Usage{}
	t.byModel = make(map[string]Usage)
}

func add(u Usage, usage model.TokenUsage, cost decimal.Decimal) Usage {
	u.Calls++
	u.PromptTokens += usage.PromptTokens
	u.CompletionTokens += usage.CompletionTokens
	u.Cost = u.Cost.Add(cost)
	return u
}

// Config configures the budget feature.
type Config struct {
	pipeline.FeatureConfig

	// Tracker receives the usage. A fresh tracker is used when nil.
	Tracker *Tracker
	// Prices maps model names to their price; DefaultPrice covers the rest.
	Prices       map[string]Price
	DefaultPrice Price
	// MaxCost stops further calls once reached. Zero disables the check.
	MaxCost decimal.Decimal
	// MaxTokens stops further calls once reached. Zero disables the check.
	MaxTokens int
	Logger    logging.Logger
}

// SetPrice registers the price of a model.
func (c *Config) SetPrice(modelName string, p Price) {
	if c.Prices == nil {
		c.Prices = make(map[string]Price)
	}
	c.Prices[modelName] = p
}

// Feature is the budget feature.
type Feature struct{}

var _ pipeline.Feature[Config] = Feature{}

// Key implements pipeline.Feature.
func (Feature) Key() pipeline.FeatureKey { return Key }

// NewConfig implements pipeline.Feature.
func (Feature) NewConfig() Config {
	return Config{Logger: logging.NoOpLogger{}}
}

// Install implements pipeline.Feature.
func (Feature) Install(cfg Config, p *pipeline.Pipeline) error {
	if cfg.MaxCost.IsNegative() {
		return fmt.Errorf("budget: negative max cost %s", cfg.MaxCost)
	}
	if cfg.MaxTokens < 0 {
		return fmt.Errorf("budget: negative max tokens %d", cfg.MaxTokens)
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NewTracker()
	}

	m := &meter{cfg: cfg, logger: logging.OrNoOp(cfg.Logger)}

	p.InterceptBeforeLLMCall(Key, m.before)
	p.InterceptBeforeLLMCallWithTools(Key, m.before)
	p.InterceptAfterLLMCall(Key, m.after)
	p.InterceptAfterLLMCallWithTools(Key, m.after)
	return nil
}

type meter struct {
	cfg    Config
	logger logging.Logger
}

func (m *meter) before(_ context.Context, ev pipeline.BeforeLLMCallEvent) error {
	if err := m.check(); err != nil {
		m.logger.Warn("budget.call.rejected", "run_id", ev.RunID, "model", ev.Request.Model, "error", err)
		return err
	}
	return nil
}

func (m *meter) after(_ context.Context, ev pipeline.AfterLLMCallEvent) error {
	for _, r := range ev.Responses {
		if r.Usage == nil {
			continue
		}
		name := r.Model
		if name == "" {
			name = ev.Request.Model
		}
		m.cfg.Tracker.Record(name, *r.Usage, m.price(name))
	}

	total := m.cfg.Tracker.Total()
	m.logger.Debug("budget.usage.recorded",
		"run_id", ev.RunID,
		"total_tokens", total.TotalTokens(),
		"cost", total.Cost.String(),
	)
	return nil
}

func (m *meter) price(modelName string) Price {
	if p, ok := m.cfg.Prices[modelName]; ok {
		return p
	}
	return m.cfg.DefaultPrice
}

func (m *meter) check() error {
	total := m.cfg.Tracker.Total()
	if m.cfg.MaxTokens > 0 && total.TotalTokens() >= m.cfg.MaxTokens {
		return fmt.Errorf("%w: %d of %d tokens used", ErrBudgetExceeded, total.TotalTokens(), m.cfg.MaxTokens)
	}
	if m.cfg.MaxCost.IsPositive() && total.Cost.GreaterThanOrEqual(m.cfg.MaxCost) {
		return fmt.Errorf("%w: cost %s of %s", ErrBudgetExceeded, total.Cost.String(), m.cfg.MaxCost.String())
	}
	return nil
}
