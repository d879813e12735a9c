package provider

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-flash"

// Gemini implements Provider for Google Gemini vision models. It is the
// strongest image analyst of the external providers.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini provider.
func NewGemini(apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNotConfigured)
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

// Name returns the provider identifier.
func (p *Gemini) Name() string {
	return "gemini"
}

// Execute sends the task prompt plus the image to Gemini and parses the
// JSON answer.
func (p *Gemini) Execute(ctx context.Context, task Task, input Input) (*Output, error) {
	parts := []*genai.Part{{Text: BuildPrompt(task, input)}}
	if img, err := imageData(input); err == nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: img},
		})
	} else if taskNeedsImage(task) {
		return nil, err
	}

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	text, err := geminiText(resp)
	if err != nil {
		return nil, err
	}
	return ParseOutput(text)
}

// Chat sends an assistant conversation to Gemini.
func (p *Gemini) Chat(ctx context.Context, messages []Message) (string, error) {
	var contents []*genai.Content
	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	return geminiText(resp)
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}
	if content == "" {
		return "", fmt.Errorf("gemini returned empty content")
	}
	return content, nil
}
