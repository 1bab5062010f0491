package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DataDir         string        `mapstructure:"data_dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	FloodRPS        float64       `mapstructure:"flood_rps"`
	FloodBurst      int           `mapstructure:"flood_burst"`
}

// DefaultConfig returns the built-in server settings.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		DataDir:         "./data",
		ShutdownTimeout: 15 * time.Second,
		FloodRPS:        100,
		FloodBurst:      200,
	}
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.flood_rps", 100)
	v.SetDefault("server.flood_burst", 200)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/parley.db")

	// Protection pipeline
	v.SetDefault("protection.backend", "memory")
	v.SetDefault("protection.capacity", 500)
	v.SetDefault("protection.sweep_interval", "1m")
	v.SetDefault("protection.blocked_ips", []string{"1.2.3.4", "5.6.7.8"})
	v.SetDefault("protection.default.name", "default")
	v.SetDefault("protection.default.limit", 10)
	v.SetDefault("protection.default.window", "60s")
	v.SetDefault("protection.upload.name", "upload")
	v.SetDefault("protection.upload.limit", 5)
	v.SetDefault("protection.upload.window", "300s")
	v.SetDefault("validation.max_length", 1000)
	v.SetDefault("validation.image_max_length", 500)
	v.SetDefault("validation.allowed", "")
	v.SetDefault("history.max_turns", 4)
	v.SetDefault("history.max_chars", 500)
	v.SetDefault("stream.timeout", "30s")
	v.SetDefault("upload.max_bytes", 10<<20)
	v.SetDefault("upload.queue_key", "file-queue")

	// Collaborators
	v.SetDefault("persistence.backend", "sqlite")
	v.SetDefault("persistence.write_timeout", "10s")
	v.SetDefault("persistence.supabase.url", "")
	v.SetDefault("persistence.supabase.api_key", "")
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.embedding", "ollama")
	v.SetDefault("llm.ollama.url", "http://localhost:11434")
	v.SetDefault("llm.ollama.model", "llama3.1:8b")
	v.SetDefault("llm.ollama.embedding_model", "nomic-embed-text")
	v.SetDefault("llm.ollama.timeout", "5m")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com")
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.openai.timeout", "2m")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.anthropic.timeout", "2m")
	v.SetDefault("rag.enabled", false)
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.qdrant.url", "localhost:6334")
	v.SetDefault("rag.qdrant.api_key", "")
	v.SetDefault("image.base_url", "https://image.pollinations.ai")
	v.SetDefault("image.width", 512)
	v.SetDefault("image.height", 512)
	v.SetDefault("image.timeout", "60s")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("parley")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/parley")
	}

	// Environment variable support: PARLEY_SERVER_PORT=9090
	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("protection.blocked_ips", "PARLEY_PROTECTION_BLOCKED_IPS", "PARLEY_BLOCKED_IPS")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
