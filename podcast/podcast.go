// Package podcast produces and caches the spoken version of an article.
package podcast

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Really-Nice-Guy/ST-May01/blob"
	"github.com/Really-Nice-Guy/ST-May01/tts"
)

// ErrEmptyText is returned when there is nothing to read aloud.
var ErrEmptyText = errors.New("podcast: article has no text")

const (
	contentType  = "audio/mpeg"
	cacheSeconds = "3600"
)

// Source is the article being narrated.
type Source struct {
	ID   int64
	Text string
}

// Key names the audio object for src. Editing the text changes the key.
func Key(src Source) string {
	sum := sha256.Sum256([]byte(src.Text))
	return fmt.Sprintf("sundaythoughts_%d_%s.mp3", src.ID, hex.EncodeToString(sum[:])[:8])
}

// Service generates audio on first request and serves it from the bucket
// afterwards.
type Service struct {
	bucket blob.Bucket
	speech tts.Synthesizer
	logger *zap.Logger
	group  singleflight.Group
}

// New returns a Service. speech may be nil, in which case only audio that
// already exists in the bucket can be served.
func New(bucket blob.Bucket, speech tts.Synthesizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{bucket: bucket, speech: speech, logger: logger}
}

// Ensure returns the public URL of the audio for src, synthesizing and
// uploading it when the bucket does not have it yet.
func (s *Service) Ensure(ctx context.Context, src Source) (string, error) {
	if strings.TrimSpace(src.Text) == "" {
		return "", ErrEmptyText
	}
	key := Key(src)
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.ensure(context.WithoutCancel(ctx), key, src)
	})
	if err != nil {
		return "", err
	}
	if shared {
		s.logger.Debug("podcast generation shared", zap.String("key", key))
	}
	return v.(string), nil
}

func (s *Service) ensure(ctx context.Context, key string, src Source) (string, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check podcast: %w", err)
	}
	if ok {
		return s.bucket.PublicURL(key), nil
	}
	if s.speech == nil {
		return "", tts.ErrNotConfigured
	}

	audio, err := s.speech.Synthesize(ctx, tts.Request{Text: src.Text})
	if err != nil {
		return "", err
	}
	err = s.bucket.Put(ctx, key, bytes.NewReader(audio.Data), blob.PutOptions{
		ContentType:  contentType,
		CacheControl: cacheSeconds,
	})
	// Another instance may have uploaded the same key first.
	if err != nil && !errors.Is(err, blob.ErrExists) {
		return "", fmt.Errorf("upload podcast: %w", err)
	}
	s.logger.Info("podcast generated",
		zap.Int64("article_id", src.ID),
		zap.String("key", key),
		zap.Int("bytes", len(audio.Data)),
	)
	return s.bucket.PublicURL(key), nil
}

// Synthesize reads text aloud without touching the bucket.
func (s *Service) Synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	if s.speech == nil {
		return nil, tts.ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return s.speech.Synthesize(ctx, tts.Request{Text: text})
}
