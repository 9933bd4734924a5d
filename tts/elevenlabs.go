package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	maxAudioSize = 50 << 20
	audioMPEG    = "audio/mpeg"
)

// ElevenLabs is a Synthesizer backed by the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	apiKey  string
	voiceID string
	baseURL string
	modelID string
	client  *http.Client

	maxTries      uint
	retryInterval time.Duration
}

// NewElevenLabs creates a client from cfg. It returns ErrNotConfigured
// when cfg has no API key.
func NewElevenLabs(cfg Config) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	voice := cfg.VoiceID
	if voice == "" {
		voice = DefaultVoiceID
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.elevenlabs.io"
	}
	return &ElevenLabs{
		apiKey:        cfg.APIKey,
		voiceID:       voice,
		baseURL:       strings.TrimRight(base, "/"),
		modelID:       cfg.ModelID,
		client:        &http.Client{Timeout: 2 * time.Minute},
		maxTries:      3,
		retryInterval: 500 * time.Millisecond,
	}, nil
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// Synthesize implements Synthesizer. Rate limits and server errors are
// retried with exponential backoff; other failures are returned at once.
func (e *ElevenLabs) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("tts: text is required")
	}
	voice := req.VoiceID
	if voice == "" {
		voice = e.voiceID
	}
	body, err := json.Marshal(elevenLabsRequest{Text: req.Text, ModelID: e.modelID})
	if err != nil {
		return nil, err
	}
	endpoint := e.baseURL + "/v1/text-to-speech/" + url.PathEscape(voice)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInterval
	return backoff.Retry(ctx, func() (*Audio, error) {
		audio, err := e.call(ctx, endpoint, body)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return audio, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(e.maxTries))
}

func (e *ElevenLabs) call(ctx context.Context, endpoint string, body []byte) (*Audio, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", audioMPEG)
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	// The request asks for MPEG audio; upstream labels vary.
	return &Audio{Data: data, ContentType: audioMPEG}, nil
}
