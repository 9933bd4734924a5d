package sundaythoughts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Really-Nice-Guy/ST-May01/llm"
	"github.com/Really-Nice-Guy/ST-May01/markdown"
)

// Event stream frames mirror the chat-completions chunk shape so clients
// read choices[0].delta.content.
type sseChunk struct {
	Choices []sseChoice `json:"choices"`
}

type sseChoice struct {
	Delta sseDelta `json:"delta"`
}

type sseDelta struct {
	Content string `json:"content"`
}

type textRequest struct {
	Text string `json:"text" form:"text"`
}

// maxPromptText bounds the text forwarded to the model.
const maxPromptText = 100_000

var errNoModel = map[string]string{"error": "AI features are not configured"}

func bindText(c echo.Context) (string, error) {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return "", c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", c.JSON(http.StatusBadRequest, map[string]string{"error": "Text is required"})
	}
	if len(text) > maxPromptText {
		return "", c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "Text is too long"})
	}
	return text, nil
}

func (a *App) handleFormatText(c echo.Context) error {
	if a.Generator == nil {
		return c.JSON(http.StatusServiceUnavailable, errNoModel)
	}
	text, err := bindText(c)
	if text == "" {
		return err
	}
	return a.relay(c, llm.FormatArticle(text, time.Now()), nil)
}

func (a *App) handleExplain(c echo.Context) error {
	if a.Generator == nil {
		return c.JSON(http.StatusServiceUnavailable, errNoModel)
	}
	text, err := bindText(c)
	if text == "" {
		return err
	}
	return a.relay(c, llm.Explain(text), nil)
}

// handleFormatArticle streams the formatted version of a stored article.
// A fresh stored copy is replayed as a single frame; otherwise the model
// output is relayed and kept once the stream completes.
func (a *App) handleFormatArticle(c echo.Context) error {
	art, err := a.article(c)
	if err != nil {
		return jsonError(c, err)
	}
	ctx := c.Request().Context()
	hash := ContentHash(art.Writeup)

	content, err := a.Store.GetFormatted(ctx, art.ID, hash)
	if err == nil {
		startStream(c)
		if err := writeDelta(c.Response(), content); err != nil {
			return nil
		}
		writeDone(c.Response())
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		a.Logger.Error("load formatted article", zap.Int64("article_id", art.ID), zap.Error(err))
	}

	if a.Generator == nil {
		return c.JSON(http.StatusServiceUnavailable, errNoModel)
	}
	if strings.TrimSpace(art.Writeup) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Article has no text"})
	}
	return a.relay(c, llm.FormatArticle(art.Writeup, time.Now()), func(full string) {
		if strings.TrimSpace(full) == "" {
			return
		}
		// The reader may already be gone; the copy is still worth keeping.
		if err := a.Store.SaveFormatted(context.WithoutCancel(ctx), art.ID, full, hash); err != nil {
			a.Logger.Error("save formatted article", zap.Int64("article_id", art.ID), zap.Error(err))
		}
	})
}

// handleFormattedFragment returns the stored formatted copy rendered to
// sanitised HTML, for swapping in once a stream has finished.
func (a *App) handleFormattedFragment(c echo.Context) error {
	art, err := a.article(c)
	if err != nil {
		return jsonError(c, err)
	}
	content, err := a.Store.GetFormatted(c.Request().Context(), art.ID, ContentHash(art.Writeup))
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No formatted copy yet"})
	}
	if err != nil {
		return err
	}
	return c.HTML(http.StatusOK, markdown.Render(content))
}

func startStream(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()
}

func writeDelta(w *echo.Response, delta string) error {
	b, err := json.Marshal(sseChunk{Choices: []sseChoice{{Delta: sseDelta{Content: delta}}}})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func writeDone(w *echo.Response) {
	fmt.Fprint(w, "data: [DONE]\n\n")
	w.Flush()
}

func writeErrorEvent(w *echo.Response, msg string) {
	b, _ := json.Marshal(map[string]string{"error": msg})
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", b)
	w.Flush()
}

// relay streams a completion to the client as server-sent events. When the
// model finishes without error, onDone receives the full text. A client
// disconnect cancels the upstream request.
func (a *App) relay(c echo.Context, req llm.Request, onDone func(full string)) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	deltas, errc := a.Generator.Stream(ctx, req)
	startStream(c)
	w := c.Response()

	var full strings.Builder
	for delta := range deltas {
		full.WriteString(delta)
		if err := writeDelta(w, delta); err != nil {
			cancel()
			for range deltas {
			}
			<-errc
			return nil
		}
	}
	if err := <-errc; err != nil {
		if ctx.Err() != nil {
			return nil
		}
		a.Logger.Error("model stream", zap.Error(err), zap.Int("received", full.Len()))
		writeErrorEvent(w, "The model request failed. Please try again.")
		return nil
	}
	if onDone != nil {
		onDone(full.String())
	}
	writeDone(w)
	return nil
}
