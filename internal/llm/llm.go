// Package llm wraps the generative model backends used for summarization.
package llm

import (
	"context"
	"time"
)

// Provider names accepted by configuration.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultTemperature     = 0.2
	defaultMaxOutputTokens = 1024
)

// Output is one model response. Text is the first text part; InlineData holds a base64
// payload when the model returned data instead of text.
type Output struct {
	Text       string
	InlineData string
	MIMEType   string
}

// Client is the model backend. A nil Client means no credential is configured.
type Client interface {
	Generate(ctx context.Context, prompt string) (Output, error)
}

// Options are the generation controls shared by all providers.
type Options struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
	// BaseURL overrides the provider endpoint.
	BaseURL string
}

func (o Options) withDefaults(model string) Options {
	if o.Model == "" {
		o.Model = model
	}
	if o.Temperature <= 0 {
		o.Temperature = defaultTemperature
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = defaultMaxOutputTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}
