package clusterer

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIBackend implements Backend over the OpenAI chat completions
// API, the alternate clusterer backend, selected the same way the
// teacher's summarizer chooses between providers via an env switch.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

func NewOpenAIBackend(apiKey, model string) *OpenAIBackend {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &OpenAIBackend{client: openai.NewClient(apiKey), model: model}
}

func (b *OpenAIBackend) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    "system",
			Content: prompt,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("openai clusterer backend: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai clusterer backend: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
