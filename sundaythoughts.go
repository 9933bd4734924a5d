// Package sundaythoughts serves the Sunday Thoughts article collection:
// an email-gated listing of articles, model-formatted article pages with
// explanations and podcasts, comments, and an admin area.
//
// Pages are rendered through the ViewFuncs struct so the templates live in
// their own package; sundaythoughts owns handlers, middleware, storage and
// the integrations with the hosted model, speech and storage services.
package sundaythoughts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Really-Nice-Guy/ST-May01/analytics"
	"github.com/Really-Nice-Guy/ST-May01/blob"
	"github.com/Really-Nice-Guy/ST-May01/llm"
	"github.com/Really-Nice-Guy/ST-May01/podcast"
	"github.com/Really-Nice-Guy/ST-May01/tts"
)

// Buckets are the object stores behind podcasts, cover images and PDFs.
type Buckets struct {
	Podcasts blob.Bucket
	Images   blob.Bucket
	PDFs     blob.Bucket
}

// App is the central application. It wires together the store, cache,
// external services, handlers, middleware and templates.
type App struct {
	Config    SiteConfig
	Echo      *echo.Echo
	Store     *Store
	Cache     *ArticleCache
	Views     ViewFuncs
	Logger    *zap.Logger
	Generator llm.Generator   // nil when no model provider is configured
	Speech    tts.Synthesizer // nil when no speech key is configured
	Podcasts  *podcast.Service
	Tracker   *analytics.Tracker

	buckets        Buckets
	loginLimiter   *LoginLimiter
	readerLimiter  *LoginLimiter
	aiLimiter      *LoginLimiter
	analyticsStore *analytics.Store
	proxyClient    *http.Client
	customRoutes   []func(*App)
	staticDir      string
	ownsStore      bool
	initialized    bool
}

// New creates an App with the given configuration and view functions.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     views,
		staticDir: "public",
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
	return a
}

// Init opens storage, connects the external services and registers
// middleware and routes. Start calls it; tests call it directly and drive
// a.Echo as an http.Handler.
func (a *App) Init(ctx context.Context) error {
	if a.initialized {
		return nil
	}
	if a.Config.SessionSecret == "" {
		return errors.New("sundaythoughts: SessionSecret is required")
	}

	if a.Store == nil {
		store, err := OpenStore(a.Config.DatabaseDriver, a.Config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("sundaythoughts: init store: %w", err)
		}
		a.Store = store
		a.ownsStore = true
	}
	a.Cache = NewArticleCache(a.Store, a.Config.ArticleCacheTTL)

	if err := a.initServices(ctx); err != nil {
		return err
	}

	a.loginLimiter = NewLoginLimiter(5, time.Minute)
	a.readerLimiter = NewLoginLimiter(5, time.Minute)
	a.aiLimiter = NewLoginLimiter(20, time.Minute)
	a.proxyClient = a.newProxyClient()

	if a.Config.AnalyticsEnabled {
		store, err := analytics.NewStore(a.Config.AnalyticsDatabasePath)
		if err != nil {
			return fmt.Errorf("sundaythoughts: init analytics: %w", err)
		}
		a.analyticsStore = store
		if err := analytics.InitSalt(ctx, store); err != nil {
			return fmt.Errorf("sundaythoughts: init analytics salt: %w", err)
		}
		a.Tracker = analytics.NewTracker(store, siteHost(a.Config.URL), a.Logger)
		a.Tracker.StartCleanup(365*24*time.Hour, 24*time.Hour)
	}

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.initialized = true
	return nil
}

// initServices connects the model, speech and storage backends that were
// not supplied through options. Missing credentials disable the feature
// rather than failing startup.
func (a *App) initServices(ctx context.Context) error {
	if a.Generator == nil {
		gen, err := llm.New(ctx, a.Config.LLM)
		switch {
		case errors.Is(err, llm.ErrNotConfigured):
			a.Logger.Warn("no model provider configured; formatting and explanations are disabled")
		case err != nil:
			return fmt.Errorf("sundaythoughts: init model provider: %w", err)
		default:
			a.Generator = gen
		}
	}

	if a.Speech == nil {
		el, err := tts.NewElevenLabs(a.Config.Speech)
		switch {
		case errors.Is(err, tts.ErrNotConfigured):
			a.Logger.Warn("no speech API key configured; podcasts are served from storage only")
		case err != nil:
			return fmt.Errorf("sundaythoughts: init speech: %w", err)
		default:
			a.Speech = el
		}
	}

	if err := a.initBuckets(); err != nil {
		return err
	}
	a.Podcasts = podcast.New(a.buckets.Podcasts, a.Speech, a.Logger)
	return nil
}

func (a *App) initBuckets() error {
	st := a.Config.Storage
	open := func(name string) (blob.Bucket, error) {
		switch st.Driver {
		case "supabase":
			if st.SupabaseURL == "" {
				return nil, errors.New("sundaythoughts: SUPABASE_URL is required for the supabase storage driver")
			}
			return blob.NewSupabase(st.SupabaseURL, name, st.ServiceKey), nil
		case "", "local":
			return blob.NewLocal(st.LocalDir, name, mediaPrefix), nil
		default:
			return nil, fmt.Errorf("unknown storage driver %q (valid: local, supabase)", st.Driver)
		}
	}
	for _, b := range []struct {
		dst  *blob.Bucket
		name string
	}{
		{&a.buckets.Podcasts, st.PodcastBucket},
		{&a.buckets.Images, st.ImageBucket},
		{&a.buckets.PDFs, st.PDFBucket},
	} {
		if *b.dst != nil {
			continue
		}
		bucket, err := open(b.name)
		if err != nil {
			return err
		}
		*b.dst = bucket
	}
	return nil
}

// Start initializes the app and serves HTTP until the server is shut down.
func (a *App) Start(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}
	a.Logger.Info("listening",
		zap.String("addr", a.Config.Addr),
		zap.String("site", a.Config.URL),
		zap.Bool("gate", a.Config.GateEnabled),
		zap.Bool("model", a.Generator != nil),
		zap.Bool("speech", a.Speech != nil),
		zap.String("database", a.Store.Driver()),
		zap.String("storage", a.Config.Storage.Driver),
	)
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

// Close releases resources. Call it when the app is shutting down.
func (a *App) Close() error {
	for _, l := range []*LoginLimiter{a.loginLimiter, a.readerLimiter, a.aiLimiter} {
		if l != nil {
			l.Stop()
		}
	}
	if a.Tracker != nil {
		a.Tracker.Close()
	}
	if a.analyticsStore != nil {
		a.analyticsStore.Close()
	}
	if a.Store != nil && a.ownsStore {
		return a.Store.Close()
	}
	return nil
}

// ImageURL returns the public URL of a cover image path.
func (a *App) ImageURL(p string) string {
	if p == "" || a.buckets.Images == nil {
		return ""
	}
	return a.buckets.Images.PublicURL(p)
}

// PDFURL returns the public URL of an article PDF path.
func (a *App) PDFURL(p string) string {
	if p == "" || a.buckets.PDFs == nil {
		return ""
	}
	return a.buckets.PDFs.PublicURL(p)
}

func siteHost(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
