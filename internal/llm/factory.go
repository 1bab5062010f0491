// Package llm builds the configured language model provider and embedder.
package llm

import (
	"context"
	"fmt"

	"github.com/HerbHall/parley/internal/llm/anthropic"
	"github.com/HerbHall/parley/internal/llm/ollama"
	"github.com/HerbHall/parley/internal/llm/openai"
	pkgllm "github.com/HerbHall/parley/pkg/llm"
	"go.uber.org/zap"
)

// Config holds the LLM configuration with per-provider sub-configs.
type Config struct {
	Provider  string           `mapstructure:"provider"`  // "ollama" (default), "openai", "anthropic"
	Embedding string           `mapstructure:"embedding"` // "ollama" (default), "openai"
	Ollama    ollama.Config    `mapstructure:"ollama"`
	OpenAI    openai.Config    `mapstructure:"openai"`
	Anthropic anthropic.Config `mapstructure:"anthropic"`
}

// DefaultConfig returns the local Ollama setup.
func DefaultConfig() Config {
	return Config{
		Provider:  "ollama",
		Embedding: "ollama",
		Ollama:    ollama.DefaultConfig(),
		OpenAI:    openai.DefaultConfig(),
		Anthropic: anthropic.DefaultConfig(),
	}
}

// NewProvider creates the chat provider named by cfg.Provider.
func NewProvider(cfg Config, logger *zap.Logger) (pkgllm.Provider, error) {
	switch cfg.Provider {
	case "ollama", "":
		return ollama.New(cfg.Ollama, logger)
	case "openai":
		return openai.New(cfg.OpenAI, logger)
	case "anthropic":
		return anthropic.New(cfg.Anthropic, logger)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// NewEmbedder creates the embedder named by cfg.Embedding.
func NewEmbedder(cfg Config, logger *zap.Logger) (pkgllm.Embedder, error) {
	switch cfg.Embedding {
	case "ollama", "":
		return ollama.New(cfg.Ollama, logger)
	case "openai":
		return openai.New(cfg.OpenAI, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding)
	}
}

// Probe logs whether the provider is reachable. An unreachable provider is
// not fatal; requests fail individually until it comes online.
func Probe(ctx context.Context, p pkgllm.Provider, name string, logger *zap.Logger) bool {
	hr, ok := p.(pkgllm.HealthReporter)
	if !ok {
		return true
	}

	if err := hr.Heartbeat(ctx); err != nil {
		logger.Warn("llm provider not reachable; chat will fail until it comes online",
			zap.String("provider", name),
			zap.Error(err),
		)
		return false
	}

	logger.Info("llm provider connected", zap.String("provider", name))
	return true
}
