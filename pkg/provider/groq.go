package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	defaultGroqModel = "llama-3.1-70b-versatile"
)

// Groq implements Provider against Groq's OpenAI-compatible API. The
// hosted Llama models are text-only, so stage tasks are answered from the
// prompt context without the image; Groq sits late in the fallback chains.
type Groq struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type groqRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type groqResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewGroq creates a Groq provider.
func NewGroq(apiKey, model string) (*Groq, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("groq: %w", ErrNotConfigured)
	}
	if model == "" {
		model = defaultGroqModel
	}
	return &Groq{
		apiKey:     apiKey,
		baseURL:    groqBaseURL,
		model:      model,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the provider identifier.
func (p *Groq) Name() string {
	return "groq"
}

// Execute answers a stage task from the prompt context.
func (p *Groq) Execute(ctx context.Context, task Task, input Input) (*Output, error) {
	content, err := p.complete(ctx, []Message{
		{Role: "user", Content: BuildPrompt(task, input)},
	})
	if err != nil {
		return nil, err
	}
	return ParseOutput(content)
}

// Chat sends an assistant conversation to Groq.
func (p *Groq) Chat(ctx context.Context, messages []Message) (string, error) {
	return p.complete(ctx, messages)
}

func (p *Groq) complete(ctx context.Context, messages []Message) (string, error) {
	reqBody := groqRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   1000,
		Temperature: 0.7,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal groq request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create groq request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &Error{Temporary: true, Err: fmt.Errorf("groq API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read groq response: %w", err)
	}

	var groqResp groqResponse
	if err := json.Unmarshal(body, &groqResp); err != nil {
		return "", fmt.Errorf("parse groq response: %w", err)
	}
	if groqResp.Error != nil {
		return "", &Error{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("groq API error: %s (type: %s)", groqResp.Error.Message, groqResp.Error.Type),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("groq API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}
	if len(groqResp.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices")
	}
	return groqResp.Choices[0].Message.Content, nil
}
