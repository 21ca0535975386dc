package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// Config holds runtime configuration for all services.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760" validate:"min=1"` // 10MB in bytes

	// Store
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"postgres" validate:"oneof=postgres sqlite memory"`
	DBURL         string `env:"DB_URL" validate:"required_if=StoreProvider postgres"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"insights.db"`

	// Queue
	QueueProvider     string `env:"QUEUE_PROVIDER" envDefault:"nats" validate:"oneof=nats memory"`
	QueueURL          string `env:"QUEUE_URL" validate:"required_if=QueueProvider nats"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY" envDefault:"4" validate:"min=1,max=256"`

	// Per-record lock; empty address selects the in-process lock.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Model. An empty key for the selected provider disables model calls.
	LLMProvider        string        `env:"LLM_PROVIDER" envDefault:"openai" validate:"oneof=openai gemini"`
	OpenAIKey          string        `env:"OPENAI_API_KEY"`
	GeminiKey          string        `env:"GEMINI_API_KEY"`
	LLMModel           string        `env:"LLM_MODEL"`
	LLMBaseURL         string        `env:"LLM_BASE_URL"`
	LLMTemperature     float64       `env:"LLM_TEMPERATURE" envDefault:"0.2" validate:"min=0,max=2"`
	LLMMaxOutputTokens int           `env:"LLM_MAX_OUTPUT_TOKENS" envDefault:"1024" validate:"min=1"`
	SummarizeTimeout   time.Duration `env:"SUMMARIZE_TIMEOUT" envDefault:"30s" validate:"min=1s"`

	// Sampling
	SampleRows       int `env:"SAMPLE_ROWS" envDefault:"10" validate:"min=1"`
	SampleColumns    int `env:"SAMPLE_COLUMNS" envDefault:"20" validate:"min=1"`
	SampleLines      int `env:"SAMPLE_LINES" envDefault:"20" validate:"min=1"`
	SampleKeys       int `env:"SAMPLE_KEYS" envDefault:"20" validate:"min=1"`
	PromptMaxChars   int `env:"PROMPT_MAX_CHARS" envDefault:"6000" validate:"min=100"`
	MetadataMaxChars int `env:"METADATA_MAX_CHARS" envDefault:"1500" validate:"min=100"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks provider names, required connection strings and numeric bounds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ModelKey returns the credential of the selected model provider.
func (c Config) ModelKey() string {
	if c.LLMProvider == "gemini" {
		return c.GeminiKey
	}
	return c.OpenAIKey
}
