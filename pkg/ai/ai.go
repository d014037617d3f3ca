package ai

import (
	"context"
)

// GenerateOptions is the resolved form of a request's GenerateOption list.
// Adapters fill in their own model and temperature before applying options,
// so an empty Model never reaches the provider.
type GenerateOptions struct {
	Model         string
	SystemPrompts []string
	Temperature   float64
	// Thinking is a reasoning effort ("low", "medium", "high"). Empty
	// disables reasoning.
	Thinking string
}

// ModelMetrics sums token usage and model time since the last reset.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// Add accumulates o into m and recomputes the throughput.
func (m *ModelMetrics) Add(o ModelMetrics) {
	m.InputTokens += o.InputTokens
	m.OutputTokens += o.OutputTokens
	m.TotalTokens += o.TotalTokens
	m.DurationMs += o.DurationMs

	if m.DurationMs > 0 {
		tokensPerSecond := (float64(m.TotalTokens) * 1000.0) / float64(m.DurationMs)
		m.TokenPerSecond = float32(int(tokensPerSecond*100+0.5)) / 100
	}
}

type GenerateOption func(*GenerateOptions)

// WithModel overrides the adapter's model for one request, e.g. a smaller
// model for search queries.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts replaces the system messages sent ahead of the prompt.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking sets the reasoning effort. The OpenAI adapter forces a
// temperature of 1.0 against the hosted API when it is set.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// GraphAIClient defines the language model operations used to extract
// partial graphs and to phrase web searches.
type GraphAIClient interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error

	ResetMetrics()
	GetMetrics() ModelMetrics
}
