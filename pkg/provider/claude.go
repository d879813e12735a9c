package provider

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultClaudeModel = "claude-3-haiku-20240307"

// Claude implements Provider against the first-party Anthropic API, for
// deployments holding their own Anthropic key instead of going through
// OpenRouter.
type Claude struct {
	client anthropic.Client
	model  string
}

// NewClaude creates a Claude provider.
func NewClaude(apiKey, model string) (*Claude, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("claude: %w", ErrNotConfigured)
	}
	if model == "" {
		model = defaultClaudeModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Claude{client: client, model: model}, nil
}

// Name returns the provider identifier.
func (p *Claude) Name() string {
	return "claude"
}

// Execute sends the task prompt plus the image to Claude and parses the
// JSON answer.
func (p *Claude) Execute(ctx context.Context, task Task, input Input) (*Output, error) {
	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewTextBlock(BuildPrompt(task, input)),
	}
	if img, err := imageData(input); err == nil {
		encoded := base64.StdEncoding.EncodeToString(img)
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/jpeg", encoded))
	} else if taskNeedsImage(task) {
		return nil, err
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	return ParseOutput(claudeText(resp))
}

// Chat sends an assistant conversation to Claude. System turns are folded
// into the first user message since the Messages API takes them separately.
func (p *Claude) Chat(ctx context.Context, messages []Message) (string, error) {
	var system string
	var params []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = msg.Content
		case "assistant":
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			content := msg.Content
			if system != "" && len(params) == 0 {
				content = system + "\n\n" + content
				system = ""
			}
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		}
	}
	if len(params) == 0 {
		return "", fmt.Errorf("no messages to send")
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		Messages:  params,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	return claudeText(resp), nil
}

func claudeText(resp *anthropic.Message) string {
	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return content
}
