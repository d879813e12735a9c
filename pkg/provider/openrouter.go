package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "anthropic/claude-3-haiku"
)

// OpenRouter implements Provider against the OpenRouter aggregation API,
// which speaks the OpenAI chat-completions format.
type OpenRouter struct {
	client openai.Client
	model  string
}

// NewOpenRouter creates an OpenRouter provider.
func NewOpenRouter(apiKey, model string) (*OpenRouter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter: %w", ErrNotConfigured)
	}
	if model == "" {
		model = defaultOpenRouterModel
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(openRouterBaseURL),
	)
	return &OpenRouter{client: client, model: model}, nil
}

// Name returns the provider identifier.
func (p *OpenRouter) Name() string {
	return "openrouter"
}

// Execute sends the task prompt plus the image and parses the JSON answer.
func (p *OpenRouter) Execute(ctx context.Context, task Task, input Input) (*Output, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(BuildPrompt(task, input)),
	}
	if url, err := imageDataURL(input); err == nil {
		parts = append(parts, openai.ImageContentPart(
			openai.ChatCompletionContentPartImageImageURLParam{URL: url},
		))
	} else if taskNeedsImage(task) {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(p.model),
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		MaxTokens: openai.Int(1024),
	})
	if err != nil {
		return nil, fmt.Errorf("openrouter API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openrouter returned no choices")
	}

	return ParseOutput(resp.Choices[0].Message.Content)
}

// Chat sends an assistant conversation through OpenRouter.
func (p *OpenRouter) Chat(ctx context.Context, messages []Message) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(msg.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(msg.Content))
		default:
			msgs = append(msgs, openai.UserMessage(msg.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(p.model),
		Messages:  msgs,
		MaxTokens: openai.Int(1000),
	})
	if err != nil {
		return "", fmt.Errorf("openrouter API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
