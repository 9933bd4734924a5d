package sundaythoughts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"github.com/Really-Nice-Guy/ST-May01/llm"
	"github.com/Really-Nice-Guy/ST-May01/tts"
)

// stubViews renders one line per page so tests can assert on what the
// handlers passed in.
func stubViews() ViewFuncs {
	text := func(format string, args ...any) templ.Component {
		return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
			_, err := fmt.Fprintf(w, format, args...)
			return err
		})
	}
	return ViewFuncs{
		Home: func(p ListingPage) templ.Component {
			featured := ""
			if p.Featured != nil {
				featured = p.Featured.Title
			}
			var cards []string
			for _, c := range p.Cards {
				cards = append(cards, c.Title)
			}
			return text("home featured=%s cards=%s total=%d reader=%s", featured, strings.Join(cards, "|"), p.Total, p.Session.Reader)
		},
		HomePartial: func(p ListingPage) templ.Component {
			return text("partial start=%d end=%d", p.Window.Start, p.Window.End)
		},
		Gate: func(p GatePage) templ.Component {
			return text("gate denied=%v msg=%s next=%s mailto=%s", p.Denied, p.Message, p.Next, p.Mailto)
		},
		Article: func(p ArticlePage) templ.Component {
			return text("article %s formatted=%s comments=%d msg=%s", p.Card.Title, p.Formatted, len(p.Comments), p.Message)
		},
		Subscribe: func(p SubscribePage) templ.Component {
			return text("subscribe success=%v msg=%s", p.Success, p.Message)
		},
		AdminLogin: func(showError bool, _ string) templ.Component {
			return text("admin-login error=%v", showError)
		},
		AdminDashboard: func(p AdminPage) templ.Component {
			var rows []string
			for _, r := range p.Rows {
				rows = append(rows, fmt.Sprintf("%s:%d:%v", r.Title, r.Comments, r.Formatted))
			}
			return text("dashboard rows=%s msg=%s stats=%v", strings.Join(rows, "|"), p.Message, p.Stats != nil)
		},
		AdminForm: func(p AdminFormPage) templ.Component {
			var cats []string
			for _, c := range p.Categories {
				cats = append(cats, c.Value)
			}
			return text("form id=%d title=%s categories=%s", p.Article.ID, p.Article.Title, strings.Join(cats, "|"))
		},
		AdminUsers: func(p AdminUsersPage) templ.Component {
			var emails []string
			for _, u := range p.Users {
				emails = append(emails, u.Email)
			}
			return text("users %s msg=%s", strings.Join(emails, "|"), p.Message)
		},
		NotFound:    func() templ.Component { return text("not-found") },
		ServerError: func() templ.Component { return text("server-error") },
	}
}

type fakeSpeech struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSpeech) Synthesize(_ context.Context, req tts.Request) (*tts.Audio, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &tts.Audio{Data: []byte("ID3:" + req.Text), ContentType: "audio/mpeg"}, nil
}

// countingGen is a Generator that counts streams.
type countingGen struct {
	llm.Static
	calls atomic.Int32
}

func (g *countingGen) Stream(ctx context.Context, req llm.Request) (<-chan string, <-chan error) {
	g.calls.Add(1)
	return g.Static.Stream(ctx, req)
}

const adminPassword = "letmein"

func testConfig(dir string) SiteConfig {
	return SiteConfig{
		Name:                  "Sunday Thoughts",
		URL:                   "https://sundaythoughts.example",
		SessionSecret:         "test-session-secret-0123456789",
		AdminPassword:         adminPassword,
		GateEnabled:           true,
		AccessRequestEmail:    "owner@example.com",
		AnalyticsEnabled:      true,
		AnalyticsDatabasePath: filepath.Join(dir, "analytics.db"),
		Storage:               StorageConfig{Driver: "local", LocalDir: filepath.Join(dir, "storage")},
	}
}

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(DriverSQLite, filepath.Join(dir, "content.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	base := []Option{
		WithStore(store),
		WithLogger(zap.NewNop()),
		WithStaticDir(dir),
		WithGenerator(llm.Static{Deltas: []string{"### Title\n", "*01 Jan 2024*\n\n", "Body"}}),
		WithSynthesizer(&fakeSpeech{}),
	}
	app := New(testConfig(dir), stubViews(), append(base, opts...)...)
	if err := app.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		app.Close()
		store.Close()
	})
	return app
}

// client keeps cookies between requests and sends the CSRF token the way
// the page script does.
type client struct {
	t    *testing.T
	app  *App
	jar  map[string]*http.Cookie
	csrf string
	ua   string
}

func newClient(t *testing.T, app *App) *client {
	c := &client{t: t, app: app, jar: map[string]*http.Cookie{}, ua: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15"}
	c.get("/robots.txt")
	if c.csrf == "" {
		t.Fatal("no CSRF cookie issued")
	}
	return c
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	for _, ck := range c.jar {
		req.AddCookie(ck)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.ua)
	}
	rec := httptest.NewRecorder()
	c.app.Echo.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.jar, ck.Name)
			continue
		}
		c.jar[ck.Name] = ck
		if ck.Name == "_csrf" {
			c.csrf = ck.Value
		}
	}
	return rec
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	c.t.Helper()
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *client) postJSON(path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) loginReader(email string) {
	c.t.Helper()
	if _, err := c.app.Store.AddUser(context.Background(), User{Email: email}); err != nil {
		c.t.Fatalf("add user: %v", err)
	}
	rec := c.postForm("/login", url.Values{"email": {email}})
	if rec.Code != http.StatusSeeOther {
		c.t.Fatalf("login: status %d: %s", rec.Code, rec.Body.String())
	}
}

func (c *client) loginAdmin() {
	c.t.Helper()
	rec := c.postForm("/admin/login/", url.Values{"password": {adminPassword}})
	if rec.Code != http.StatusSeeOther {
		c.t.Fatalf("admin login: status %d: %s", rec.Code, rec.Body.String())
	}
}

func seedApp(t *testing.T, app *App) []Article {
	t.Helper()
	arts := seedArticles(t, app.Store)
	app.Cache.Invalidate()
	return arts
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

func expectBody(t *testing.T, rec *httptest.ResponseRecorder, parts ...string) {
	t.Helper()
	body := rec.Body.String()
	for _, p := range parts {
		if !strings.Contains(body, p) {
			t.Errorf("body missing %q; got: %s", p, body)
		}
	}
}
