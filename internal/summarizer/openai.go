package summarizer

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = `You rewrite Instagram captions as a single news-style summary for X.com.

Rules:
- Plain prose, no hashtags, no emoji, no quotes around the answer
- Keep names, places and numbers from the caption
- End on a complete sentence
- Stay under 280 characters`

// OpenAI generates summaries through any OpenAI-compatible chat endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

type OpenAIConfig struct {
	BaseURL  string
	Model    string
	APIToken string
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	config := openai.DefaultConfig(cfg.APIToken)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Generate ignores beam settings, which chat endpoints do not expose.
func (o *OpenAI) Generate(ctx context.Context, text string, cfg GenerationConfig) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
		MaxTokens:   cfg.MaxLength,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
