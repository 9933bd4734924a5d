package sundaythoughts

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/Really-Nice-Guy/ST-May01/llm"
	"github.com/Really-Nice-Guy/ST-May01/tts"
)

// SiteConfig holds all configuration for a Sunday Thoughts site.
type SiteConfig struct {
	Name        string `env:"SITE_NAME" envDefault:"Sunday Thoughts"`
	URL         string `env:"SITE_URL" envDefault:"http://localhost:3000"`
	Description string `env:"SITE_DESCRIPTION"`
	Author      string `env:"SITE_AUTHOR"`

	Addr           string `env:"ADDR" envDefault:":3000"`
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"` // sqlite or postgres
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"data/sundaythoughts.db"`

	AnalyticsEnabled      bool   `env:"ANALYTICS_ENABLED" envDefault:"true"`
	AnalyticsDatabasePath string `env:"ANALYTICS_DATABASE_PATH" envDefault:"data/analytics.db"`

	AdminPassword string `env:"ADMIN_PASSWORD"`
	SessionSecret string `env:"SESSION_SECRET"`
	CookieSecure  bool   `env:"COOKIE_SECURE"`

	// GateEnabled hides the listing and articles behind the email allow-list.
	GateEnabled        bool   `env:"GATE_ENABLED" envDefault:"true"`
	AccessRequestEmail string `env:"ACCESS_REQUEST_EMAIL"`

	ArticleCacheTTL time.Duration `env:"ARTICLE_CACHE_TTL" envDefault:"5m"`

	LLM     llm.Config
	Speech  tts.Config
	Storage StorageConfig

	ProxyAllowedHosts []string `env:"PROXY_ALLOWED_HOSTS" envSeparator:","`
}

// StorageConfig selects the object store that holds images, PDFs and podcasts.
type StorageConfig struct {
	Driver        string `env:"STORAGE_DRIVER" envDefault:"local"` // local or supabase
	SupabaseURL   string `env:"SUPABASE_URL"`
	ServiceKey    string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	LocalDir      string `env:"STORAGE_LOCAL_DIR" envDefault:"data/storage"`
	PodcastBucket string `env:"PODCAST_BUCKET" envDefault:"articlepodcast"`
	ImageBucket   string `env:"IMAGE_BUCKET" envDefault:"images"`
	PDFBucket     string `env:"PDF_BUCKET" envDefault:"articlepdffile"`
}

// LoadConfig reads a SiteConfig from the environment.
func LoadConfig() (SiteConfig, error) {
	var cfg SiteConfig
	if err := env.Parse(&cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Sunday Thoughts"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabaseDriver == "" {
		c.DatabaseDriver = DriverSQLite
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = "data/sundaythoughts.db"
	}
	if c.AnalyticsDatabasePath == "" {
		c.AnalyticsDatabasePath = "data/analytics.db"
	}
	if c.ArticleCacheTTL == 0 {
		c.ArticleCacheTTL = 5 * time.Minute
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "data/storage"
	}
	if c.Storage.PodcastBucket == "" {
		c.Storage.PodcastBucket = "articlepodcast"
	}
	if c.Storage.ImageBucket == "" {
		c.Storage.ImageBucket = "images"
	}
	if c.Storage.PDFBucket == "" {
		c.Storage.PDFBucket = "articlepdffile"
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for user-owned static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithLogger replaces the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		a.Logger = l
	}
}

// WithStore uses an already opened store instead of opening one from config.
func WithStore(s *Store) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithGenerator overrides the chat-completion backend.
func WithGenerator(g llm.Generator) Option {
	return func(a *App) {
		a.Generator = g
	}
}

// WithSynthesizer overrides the text-to-speech backend.
func WithSynthesizer(s tts.Synthesizer) Option {
	return func(a *App) {
		a.Speech = s
	}
}

// WithBuckets overrides object storage. Nil fields fall back to the
// configured storage driver.
func WithBuckets(b Buckets) Option {
	return func(a *App) {
		a.buckets = b
	}
}
