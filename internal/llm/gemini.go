package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient calls Gemini generateContent through the genai SDK.
type GeminiClient struct {
	opts   Options
	client *genai.Client
}

// NewGeminiClient builds a client for the Gemini API, or opts.BaseURL when set.
func NewGeminiClient(apiKey string, opts Options) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	opts = opts.withDefaults(defaultGeminiModel)
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: opts.Timeout},
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	cli, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{opts: opts, client: cli}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (Output, error) {
	if c == nil || c.client == nil {
		return Output{}, fmt.Errorf("nil gemini client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(reqCtx, c.opts.Model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(float32(c.opts.Temperature)),
			TopK:             genai.Ptr(float32(32)),
			TopP:             genai.Ptr(float32(0.95)),
			MaxOutputTokens:  int32(c.opts.MaxOutputTokens),
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Output{}, err
		}
		return Output{}, geminiTransportError(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return Output{}, fmt.Errorf("gemini: prompt blocked (%s): %w", resp.PromptFeedback.BlockReason, ErrBlocked)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return Output{}, fmt.Errorf("gemini: no candidates: %w", ErrBlocked)
	}
	cand := resp.Candidates[0]
	var parts []*genai.Part
	if cand.Content != nil {
		parts = cand.Content.Parts
	}
	switch cand.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent,
		genai.FinishReasonSPII, genai.FinishReasonRecitation:
		if len(parts) == 0 {
			return Output{}, fmt.Errorf("gemini: finish reason %s: %w", cand.FinishReason, ErrBlocked)
		}
	}

	var out Output
	for _, p := range parts {
		if p == nil || p.Thought {
			continue
		}
		if out.Text == "" && p.Text != "" {
			out.Text = p.Text
		}
		if out.InlineData == "" && p.InlineData != nil && len(p.InlineData.Data) > 0 {
			out.InlineData = base64.StdEncoding.EncodeToString(p.InlineData.Data)
			out.MIMEType = p.InlineData.MIMEType
		}
	}
	return out, nil
}

func geminiTransportError(err error) *TransportError {
	te := &TransportError{Provider: ProviderGemini, Err: err}
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		te.StatusCode = apiErr.Code
	case errors.As(err, &apiErrPtr):
		te.StatusCode = apiErrPtr.Code
	}
	return te
}
