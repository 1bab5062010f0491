// Package llm defines the provider-neutral types used to talk to language
// models. Concrete adapters live in internal/llm/{provider}/.
package llm

import "context"

// Provider is implemented by every chat-capable LLM backend.
type Provider interface {
	// Chat creates a completion from a conversation history.
	// With WithStreamFunc set, chunks are delivered to the stream function
	// in arrival order before Chat returns.
	Chat(ctx context.Context, messages []Message, opts ...CallOption) (*Response, error)
}

// Embedder turns text into a dense vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HealthReporter is optionally implemented by providers that can report
// connection health. Detected via type assertion.
type HealthReporter interface {
	Heartbeat(ctx context.Context) error
}

// StreamFunc receives one chunk of generated text. Returning a non-nil
// error aborts the stream and is returned from Chat unchanged.
type StreamFunc func(ctx context.Context, chunk []byte) error

// CallOption configures a single Chat call.
type CallOption func(*CallConfig)

// CallConfig holds the resolved configuration for a single LLM call.
// Users interact through CallOption functions, not this struct directly.
type CallConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	StreamFunc  StreamFunc
}

// WithModel sets the model to use for this call, overriding the provider default.
func WithModel(model string) CallOption {
	return func(c *CallConfig) { c.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) CallOption {
	return func(c *CallConfig) { c.Temperature = temp }
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(max int) CallOption {
	return func(c *CallConfig) { c.MaxTokens = max }
}

// WithStreamFunc enables streaming mode.
func WithStreamFunc(fn StreamFunc) CallOption {
	return func(c *CallConfig) { c.StreamFunc = fn }
}

// ApplyOptions creates a CallConfig from a list of options, starting from defaults.
func ApplyOptions(opts ...CallOption) CallConfig {
	cfg := CallConfig{
		Temperature: 0.7,
		MaxTokens:   2048,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
