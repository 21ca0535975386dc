package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const systemPrompt = "You summarize datasets. You reply with a single JSON object and nothing else."

// OpenAIClient calls the OpenAI Chat Completions API in JSON mode.
type OpenAIClient struct {
	opts   Options
	client *openai.Client
}

// NewOpenAIClient builds a client against api.openai.com, or opts.BaseURL when set.
func NewOpenAIClient(apiKey string, opts Options) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	opts = opts.withDefaults(string(openai.ChatModelGPT4oMini))
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	return &OpenAIClient{opts: opts, client: &cli}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (Output, error) {
	if c == nil || c.client == nil {
		return Output{}, fmt.Errorf("nil openai client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.opts.Model),
		Messages:            buildMessages(systemPrompt, prompt),
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(int64(c.opts.MaxOutputTokens)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Output{}, err
		}
		te := &TransportError{Provider: ProviderOpenAI, Err: err}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			te.StatusCode = apiErr.StatusCode
		}
		return Output{}, te
	}
	if len(resp.Choices) == 0 {
		return Output{}, fmt.Errorf("openai: no choices returned: %w", ErrBlocked)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" || choice.Message.Refusal != "" {
		return Output{}, fmt.Errorf("openai: %s: %w", firstNonEmpty(choice.Message.Refusal, choice.FinishReason), ErrBlocked)
	}
	return Output{Text: choice.Message.Content}, nil
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(user),
				},
			},
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
