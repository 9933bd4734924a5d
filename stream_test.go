package sundaythoughts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/Really-Nice-Guy/ST-May01/llm"
)

// sseDeltas parses the data frames of an event stream.
func sseDeltas(t *testing.T, body string) (deltas []string, done bool, errEvent bool) {
	t.Helper()
	for _, frame := range strings.Split(body, "\n\n") {
		if frame == "" {
			continue
		}
		if strings.HasPrefix(frame, "event: error\n") {
			errEvent = true
			continue
		}
		data, ok := strings.CutPrefix(frame, "data: ")
		if !ok {
			t.Fatalf("malformed frame %q", frame)
		}
		if data == "[DONE]" {
			done = true
			continue
		}
		var chunk sseChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			t.Fatalf("frame %q: %v", data, err)
		}
		deltas = append(deltas, chunk.Choices[0].Delta.Content)
	}
	return deltas, done, errEvent
}

func TestFormatArticleStreamsThenReplays(t *testing.T) {
	gen := &countingGen{Static: llm.Static{Deltas: []string{"### Beta Chips\n", "*01 Feb 2024*\n\n", "chips"}}}
	app := newTestApp(t, WithGenerator(gen))
	arts := seedApp(t, app)
	c := newClient(t, app)
	c.loginReader("reader@example.com")
	path := "/api/articles/" + strconv.FormatInt(arts[0].ID, 10) + "/format"

	rec := c.postJSON(path, "")
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("Cache-Control = %q", cc)
	}
	deltas, done, _ := sseDeltas(t, rec.Body.String())
	if !done || len(deltas) != 3 || deltas[2] != "chips" {
		t.Fatalf("deltas = %q, done = %v", deltas, done)
	}

	full := strings.Join(deltas, "")
	stored, err := app.Store.GetFormatted(context.Background(), arts[0].ID, ContentHash(arts[0].Writeup))
	if err != nil || stored != full {
		t.Fatalf("stored copy = %q, %v", stored, err)
	}

	rec = c.postJSON(path, "")
	deltas, done, _ = sseDeltas(t, rec.Body.String())
	if !done || len(deltas) != 1 || deltas[0] != full {
		t.Fatalf("replay deltas = %q, done = %v", deltas, done)
	}
	if n := gen.calls.Load(); n != 1 {
		t.Fatalf("model called %d times, want 1", n)
	}
}

func TestFormatArticleUpstreamError(t *testing.T) {
	gen := llm.Static{Deltas: []string{"partial"}, Err: errors.New("upstream exploded")}
	app := newTestApp(t, WithGenerator(gen))
	arts := seedApp(t, app)
	c := newClient(t, app)
	c.loginReader("reader@example.com")

	rec := c.postJSON("/api/articles/"+strconv.FormatInt(arts[0].ID, 10)+"/format", "")
	expectStatus(t, rec, http.StatusOK)
	deltas, done, errEvent := sseDeltas(t, rec.Body.String())
	if done || !errEvent || len(deltas) != 1 {
		t.Fatalf("deltas = %q, done = %v, error event = %v", deltas, done, errEvent)
	}
	if strings.Contains(rec.Body.String(), "exploded") {
		t.Fatal("upstream error leaked to the client")
	}
	if _, err := app.Store.GetFormatted(context.Background(), arts[0].ID, ContentHash(arts[0].Writeup)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed stream was stored: %v", err)
	}
}

func TestFormatArticleMissing(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t, app)
	c.loginReader("reader@example.com")
	rec := c.postJSON("/api/articles/42/format", "")
	expectStatus(t, rec, http.StatusNotFound)
	expectBody(t, rec, "Article not found")
}

func TestFormatTextAndExplain(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t, app)
	c.loginReader("reader@example.com")

	for _, path := range []string{"/api/format-article", "/api/explain"} {
		rec := c.postJSON(path, `{"text":"  "}`)
		expectStatus(t, rec, http.StatusBadRequest)

		rec = c.postJSON(path, `{"text":"Inflation cooled in March."}`)
		expectStatus(t, rec, http.StatusOK)
		deltas, done, _ := sseDeltas(t, rec.Body.String())
		if !done || strings.Join(deltas, "") != "### Title\n*01 Jan 2024*\n\nBody" {
			t.Fatalf("%s: deltas = %q", path, deltas)
		}
	}

	rec := c.postJSON("/api/explain", `{"text":"`+strings.Repeat("a", maxPromptText+1)+`"}`)
	expectStatus(t, rec, http.StatusRequestEntityTooLarge)
}

func TestAIRoutesWithoutModel(t *testing.T) {
	app := newTestApp(t, WithGenerator(nil))
	c := newClient(t, app)
	c.loginReader("reader@example.com")
	rec := c.postJSON("/api/explain", `{"text":"hello"}`)
	expectStatus(t, rec, http.StatusServiceUnavailable)
}

func TestAIRoutesRateLimited(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t, app)
	c.loginReader("reader@example.com")
	for i := 0; i < 20; i++ {
		c.postJSON("/api/explain", `{"text":"hello"}`)
	}
	expectStatus(t, c.postJSON("/api/explain", `{"text":"hello"}`), http.StatusTooManyRequests)
}

func TestAIRoutesRequireReader(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t, app)
	expectStatus(t, c.postJSON("/api/explain", `{"text":"hello"}`), http.StatusUnauthorized)
}

func TestFormattedFragment(t *testing.T) {
	app := newTestApp(t)
	arts := seedApp(t, app)
	c := newClient(t, app)
	c.loginReader("reader@example.com")
	path := "/api/articles/" + strconv.FormatInt(arts[0].ID, 10) + "/formatted"

	expectStatus(t, c.get(path), http.StatusNotFound)

	expectStatus(t, c.postJSON("/api/articles/"+strconv.FormatInt(arts[0].ID, 10)+"/format", ""), http.StatusOK)
	rec := c.get(path)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("Content-Type = %q", ct)
	}
	expectBody(t, rec, "<h3", "Title</h3>", "<em>01 Jan 2024</em>", "Body")

	expectStatus(t, c.get("/api/articles/999/formatted"), http.StatusNotFound)
}

func TestFormattedFragmentIsSanitised(t *testing.T) {
	app := newTestApp(t)
	arts := seedApp(t, app)
	ctx := context.Background()
	if err := app.Store.SaveFormatted(ctx, arts[1].ID, "### Rates\n\n<script>alert(1)</script>\n\nrates", ContentHash(arts[1].Writeup)); err != nil {
		t.Fatal(err)
	}
	c := newClient(t, app)
	c.loginReader("reader@example.com")

	rec := c.get("/api/articles/" + strconv.FormatInt(arts[1].ID, 10) + "/formatted")
	expectStatus(t, rec, http.StatusOK)
	expectBody(t, rec, "Rates</h3>", "rates")
	if strings.Contains(rec.Body.String(), "<script>") {
		t.Fatalf("script survived rendering: %s", rec.Body.String())
	}
}

func TestFormattedFragmentRequiresReader(t *testing.T) {
	app := newTestApp(t)
	arts := seedApp(t, app)
	c := newClient(t, app)
	expectStatus(t, c.get("/api/articles/"+strconv.FormatInt(arts[0].ID, 10)+"/formatted"), http.StatusUnauthorized)
}
