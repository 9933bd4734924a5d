package sundaythoughts

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Really-Nice-Guy/ST-May01/podcast"
	"github.com/Really-Nice-Guy/ST-May01/tts"
)

type podcastRequest struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// handlePodcast synthesizes text and returns the audio directly.
func (a *App) handlePodcast(c echo.Context) error {
	if a.Speech == nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Missing Eleven Labs credentials"})
	}
	var req podcastRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	text := req.Text
	if strings.TrimSpace(text) == "" && req.ID > 0 {
		if art, err := a.Cache.Get(c.Request().Context(), req.ID); err == nil {
			text = art.Writeup
		}
	}
	if strings.TrimSpace(text) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Text is required"})
	}

	audio, err := a.Podcasts.Synthesize(c.Request().Context(), text)
	if err != nil {
		return a.audioError(c, req.ID, err)
	}
	return c.Blob(http.StatusOK, audio.ContentType, audio.Data)
}

// handleArticlePodcast returns the URL of the article's audio, generating
// and storing it on first request.
func (a *App) handleArticlePodcast(c echo.Context) error {
	art, err := a.article(c)
	if err != nil {
		return jsonError(c, err)
	}
	u, err := a.Podcasts.Ensure(c.Request().Context(), podcast.Source{ID: art.ID, Text: art.Writeup})
	if err != nil {
		return a.audioError(c, art.ID, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": u})
}

// audioError mirrors the speech API status for upstream failures.
func (a *App) audioError(c echo.Context, articleID int64, err error) error {
	var apiErr *tts.APIError
	switch {
	case errors.Is(err, tts.ErrNotConfigured):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Podcast generation is not configured"})
	case errors.Is(err, podcast.ErrEmptyText):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Article has no text"})
	case errors.As(err, &apiErr):
		a.Logger.Error("speech API", zap.Int64("article_id", articleID), zap.Int("status", apiErr.Status), zap.String("body", apiErr.Body))
		return c.JSON(apiErr.Status, map[string]string{"error": "Failed to generate audio"})
	default:
		a.Logger.Error("podcast", zap.Int64("article_id", articleID), zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to generate audio"})
	}
}
