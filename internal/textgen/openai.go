package textgen

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

type OpenAI struct {
	client openai.Client
	model  string
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI reads the API key from the environment (OPENAI_API_KEY).
func NewOpenAI(model string) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(),
		model:  model,
	}
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	res, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:       o.model,
		MaxTokens:   openai.Int(MaxTokens),
		Temperature: openai.Float(Temperature),
		TopP:        openai.Float(TopP),
	})
	if err != nil {
		return "", fmt.Errorf("openai generation failed: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("openai response contains no choices")
	}

	return res.Choices[0].Message.Content, nil
}
