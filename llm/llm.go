// Package llm streams chat completions from a hosted large-language-model
// API. Providers share one Generator interface so the HTTP relay does not
// care which backend is configured.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned by New when the selected provider has no API key.
var ErrNotConfigured = errors.New("llm: provider not configured")

// Request is a single-turn chat: one system instruction, one user message.
type Request struct {
	System string
	User   string
}

// Generator streams the text of a completion.
//
// The content channel yields deltas in order and is closed when the
// completion ends. The error channel then yields at most one error and is
// closed. Cancelling ctx stops the upstream request.
type Generator interface {
	Stream(ctx context.Context, req Request) (<-chan string, <-chan error)
}

// Config selects and configures a provider.
type Config struct {
	Provider      string `env:"LLM_PROVIDER" envDefault:"openai"` // openai or gemini
	OpenAIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4.1-mini"`
	GeminiKey     string `env:"GEMINI_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
}

// New creates the Generator selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		if cfg.OpenAIKey == "" {
			return nil, ErrNotConfigured
		}
		return newOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, ErrNotConfigured
		}
		return newGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (valid: openai, gemini)", cfg.Provider)
	}
}

// Collect drains a stream into one string. On error the text received so
// far is returned with it.
func Collect(ctx context.Context, g Generator, req Request) (string, error) {
	out, errc := g.Stream(ctx, req)
	var b strings.Builder
	for delta := range out {
		b.WriteString(delta)
	}
	if err := <-errc; err != nil {
		return b.String(), err
	}
	return b.String(), nil
}

// stream runs produce in a goroutine and wires it to the channel pair of
// the Generator contract.
func stream(ctx context.Context, produce func(ctx context.Context, emit func(string) bool) error) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(out)
		emit := func(delta string) bool {
			select {
			case out <- delta:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if err := produce(ctx, emit); err != nil {
			errc <- err
			return
		}
		if err := ctx.Err(); err != nil {
			errc <- err
		}
	}()
	return out, errc
}

// Static is a Generator that replays fixed deltas.
type Static struct {
	Deltas []string
	Err    error
}

// Stream implements Generator.
func (s Static) Stream(ctx context.Context, _ Request) (<-chan string, <-chan error) {
	return stream(ctx, func(ctx context.Context, emit func(string) bool) error {
		for _, d := range s.Deltas {
			if !emit(d) {
				return ctx.Err()
			}
		}
		return s.Err
	})
}
