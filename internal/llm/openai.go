package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"testgen/internal/prompt"
)

const (
	defaultChatTimeout     = 60 * time.Second
	defaultChatTemperature = 0.7
	defaultMaxTokens       = 2000
)

// OpenAIConfig holds the settings read once at startup.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       openai.ChatModel
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	model       openai.ChatModel
	temperature float64
	maxTokens   int64
	timeout     time.Duration
	client      *openai.Client
}

// NewOpenAIClient builds a client against api.openai.com, or cfg.BaseURL when set.
// SDK retries are disabled; a failed call is reported to the caller as is.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT3_5Turbo
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = defaultChatTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultChatTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(opts...)
	return &OpenAIClient{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		client:      &cli,
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, p prompt.Prompt) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("nil openai client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            buildMessages(p.System, p.User),
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
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
