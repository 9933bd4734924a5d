package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type geminiGenerator struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, apiKey, model string) (*geminiGenerator, error) {
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &geminiGenerator{client: client, model: model}, nil
}

// Stream implements Generator with GenerateContentStream.
func (g *geminiGenerator) Stream(ctx context.Context, req Request) (<-chan string, <-chan error) {
	return stream(ctx, func(ctx context.Context, emit func(string) bool) error {
		var cfg *genai.GenerateContentConfig
		if req.System != "" {
			cfg = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
			}
		}
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(req.User), cfg) {
			if err != nil {
				return fmt.Errorf("gemini stream: %w", err)
			}
			if delta := resp.Text(); delta != "" {
				if !emit(delta) {
					return ctx.Err()
				}
			}
		}
		return nil
	})
}
