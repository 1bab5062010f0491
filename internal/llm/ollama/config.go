package ollama

import "time"

// Config holds the Ollama provider configuration.
type Config struct {
	URL            string        `mapstructure:"url"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns sensible defaults for local Ollama.
func DefaultConfig() Config {
	return Config{
		URL:            "http://localhost:11434",
		Model:          "llama3.1:8b",
		EmbeddingModel: "nomic-embed-text",
		Timeout:        5 * time.Minute,
	}
}
