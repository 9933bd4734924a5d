package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4.1-mini"

type openaiGenerator struct {
	client openai.Client
	model  string
}

func newOpenAI(apiKey, baseURL, model string) *openaiGenerator {
	if model == "" {
		model = defaultOpenAIModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openaiGenerator{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Stream implements Generator with streaming chat completions.
func (o *openaiGenerator) Stream(ctx context.Context, req Request) (<-chan string, <-chan error) {
	return stream(ctx, func(ctx context.Context, emit func(string) bool) error {
		messages := []openai.ChatCompletionMessageParamUnion{}
		if req.System != "" {
			messages = append(messages, openai.SystemMessage(req.System))
		}
		messages = append(messages, openai.UserMessage(req.User))

		s := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(o.model),
			Messages: messages,
		})
		defer s.Close()

		for s.Next() {
			chunk := s.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !emit(delta) {
					return ctx.Err()
				}
			}
		}
		if err := s.Err(); err != nil {
			return fmt.Errorf("openai stream: %w", err)
		}
		return nil
	})
}
