package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// clearEnv empties the process environment for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	originalEnv := os.Environ()
	os.Clearenv()
	t.Cleanup(func() {
		os.Clearenv()
		for _, kv := range originalEnv {
			if i := strings.IndexByte(kv, '='); i > 0 {
				os.Setenv(kv[:i], kv[i+1:])
			}
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Port", cfg.Port, 8080},
		{"LogLevel", cfg.LogLevel, "info"},
		{"MaxUploadSize", cfg.MaxUploadSize, int64(10485760)},
		{"StoreProvider", cfg.StoreProvider, "postgres"},
		{"SQLitePath", cfg.SQLitePath, "insights.db"},
		{"QueueProvider", cfg.QueueProvider, "nats"},
		{"WorkerConcurrency", cfg.WorkerConcurrency, 4},
		{"LLMProvider", cfg.LLMProvider, "openai"},
		{"LLMModel", cfg.LLMModel, ""},
		{"LLMTemperature", cfg.LLMTemperature, 0.2},
		{"LLMMaxOutputTokens", cfg.LLMMaxOutputTokens, 1024},
		{"SummarizeTimeout", cfg.SummarizeTimeout, 30 * time.Second},
		{"SampleRows", cfg.SampleRows, 10},
		{"SampleColumns", cfg.SampleColumns, 20},
		{"SampleLines", cfg.SampleLines, 20},
		{"SampleKeys", cfg.SampleKeys, 20},
		{"PromptMaxChars", cfg.PromptMaxChars, 6000},
		{"MetadataMaxChars", cfg.MetadataMaxChars, 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s=%v, got %v", tt.name, tt.expected, tt.got)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "o-key")
	t.Setenv("SUMMARIZE_TIMEOUT", "5s")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.LogLevel)
	}
	if cfg.ModelKey() != "g-key" {
		t.Errorf("expected gemini key to be selected, got %q", cfg.ModelKey())
	}
	if cfg.SummarizeTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.SummarizeTimeout)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base := Load()
	base.StoreProvider = "memory"
	base.QueueProvider = "memory"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"memory defaults", func(*Config) {}, false},
		{"postgres needs url", func(c *Config) { c.StoreProvider = "postgres" }, true},
		{"postgres with url", func(c *Config) { c.StoreProvider = "postgres"; c.DBURL = "postgres://x" }, false},
		{"nats needs url", func(c *Config) { c.QueueProvider = "nats" }, true},
		{"unknown store", func(c *Config) { c.StoreProvider = "mongo" }, true},
		{"unknown llm", func(c *Config) { c.LLMProvider = "stub" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"zero concurrency", func(c *Config) { c.WorkerConcurrency = 0 }, true},
		{"tiny timeout", func(c *Config) { c.SummarizeTimeout = time.Millisecond }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
