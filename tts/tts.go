// Package tts turns article text into speech through a hosted
// text-to-speech API.
package tts

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("tts: provider not configured")

// DefaultVoiceID is the preset voice used when none is configured.
const DefaultVoiceID = "khVCkwSTjNQ8vAvDc1cG"

// Request holds the parameters of one synthesis.
type Request struct {
	Text    string
	VoiceID string // empty selects the configured voice
}

// Audio is synthesized speech and its content type.
type Audio struct {
	Data        []byte
	ContentType string // "audio/mpeg"
}

// Synthesizer converts text to Audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// Config configures the ElevenLabs client.
type Config struct {
	APIKey  string `env:"ELEVEN_LABS_API_KEY"`
	VoiceID string `env:"ELEVEN_LABS_VOICE_ID" envDefault:"khVCkwSTjNQ8vAvDc1cG"`
	BaseURL string `env:"ELEVEN_LABS_BASE_URL" envDefault:"https://api.elevenlabs.io"`
	ModelID string `env:"ELEVEN_LABS_MODEL_ID"`
}

// APIError is a non-2xx answer from the speech API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("elevenlabs API %d: %s", e.Status, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}
