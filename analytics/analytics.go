// Package analytics records privacy-preserving reading statistics for
// articles. IP addresses are never stored, only salted hashes.
package analytics

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// salt holds the per-installation random salt for IP hashing.
var salt struct {
	once  sync.Once
	value string
}

// InitSalt loads or generates the persistent hashing salt.
// Must be called once at startup before any visit is tracked.
func InitSalt(ctx context.Context, store *Store) error {
	var initErr error
	salt.once.Do(func() {
		s, err := store.GetSetting(ctx, "hash_salt")
		if err != nil {
			initErr = fmt.Errorf("read hash salt: %w", err)
			return
		}
		if s == "" {
			b := make([]byte, 32)
			if _, err := rand.Read(b); err != nil {
				initErr = fmt.Errorf("generate salt: %w", err)
				return
			}
			s = hex.EncodeToString(b)
			if err := store.SetSetting(ctx, "hash_salt", s); err != nil {
				initErr = fmt.Errorf("store hash salt: %w", err)
				return
			}
		}
		salt.value = s
	})
	return initErr
}

func hash(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(salt.value))
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// HashIP returns a salted hash of an IP address.
func HashIP(ip string) string { return hash(ip) }

// VisitorID derives an anonymous, salted visitor id from IP and User-Agent.
func VisitorID(ip, userAgent string) string { return hash(ip, userAgent) }

// Visit is one human read of an article.
type Visit struct {
	ArticleID   int64
	VisitorID   string
	IPHash      string
	Browser     string
	OS          string
	Device      string
	Referrer    string
	Timestamp   time.Time
	DurationSec int
}

// BotVisit is one crawler fetch of an article.
type BotVisit struct {
	ArticleID int64
	BotName   string
	IPHash    string
	UserAgent string
	Timestamp time.Time
}

// ArticleStat is the readership of one article over a period.
type ArticleStat struct {
	ArticleID   int64 `json:"article_id"`
	Views       int   `json:"views"`
	Readers     int   `json:"readers"`
	AvgDuration int   `json:"avg_duration_sec"`
}

// DimensionStat is a breakdown bucket (browser, referrer, bot name).
type DimensionStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DailyView is the number of reads on one day.
type DailyView struct {
	Date  string `json:"date"`
	Views int    `json:"views"`
}

// Summary is the reading report shown on the admin dashboard.
type Summary struct {
	Days        int             `json:"days"`
	Views       int             `json:"views"`
	Readers     int             `json:"readers"`
	BotVisits   int             `json:"bot_visits"`
	TopArticles []ArticleStat   `json:"top_articles"`
	Browsers    []DimensionStat `json:"browsers"`
	OS          []DimensionStat `json:"os"`
	Devices     []DimensionStat `json:"devices"`
	Referrers   []DimensionStat `json:"referrers"`
	Bots        []DimensionStat `json:"bots"`
	Daily       []DailyView     `json:"daily"`
}

// ParseUserAgent extracts browser, OS, and device from a User-Agent string.
func ParseUserAgent(ua string) (browser, os, device string) {
	ua = strings.ToLower(ua)

	// More specific patterns first: Edge and Opera also say "chrome".
	switch {
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "opera") || strings.Contains(ua, "opr/"):
		browser = "Opera"
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "crios"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	default:
		browser = "Other"
	}

	// Android UAs contain "linux".
	switch {
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		os = "iOS"
	case strings.Contains(ua, "macintosh") || strings.Contains(ua, "mac os"):
		os = "macOS"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	default:
		os = "Other"
	}

	// iPad UAs contain "mobile".
	switch {
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		device = "Tablet"
	case strings.Contains(ua, "mobile"):
		device = "Mobile"
	default:
		device = "Desktop"
	}
	return
}

// knownBots maps User-Agent fragments to display names. Order matters:
// specific names are checked before the generic fragments.
var knownBots = []struct{ pattern, name string }{
	{"googlebot", "Googlebot"},
	{"bingbot", "Bingbot"},
	{"yandex", "Yandex"},
	{"baidu", "Baidu"},
	{"duckduckbot", "DuckDuckBot"},
	{"facebookexternalhit", "Facebook"},
	{"twitterbot", "Twitterbot"},
	{"linkedinbot", "LinkedIn"},
	{"slackbot", "Slack"},
	{"gptbot", "GPTBot"},
	{"claudebot", "ClaudeBot"},
	{"ahrefsbot", "Ahrefs"},
	{"semrushbot", "SEMrush"},
	{"mj12bot", "Majestic"},
	{"dotbot", "Moz"},
	{"slurp", "Yahoo Slurp"},
	{"crawler", "Generic Crawler"},
	{"spider", "Generic Spider"},
}

var genericBotMarkers = []string{"bot", "crawl", "spider", "slurp", "scrape", "headless"}

// IsBot reports whether ua is likely a crawler.
func IsBot(ua string) bool {
	if strings.TrimSpace(ua) == "" {
		return true
	}
	ua = strings.ToLower(ua)
	for _, b := range knownBots {
		if strings.Contains(ua, b.pattern) {
			return true
		}
	}
	for _, m := range genericBotMarkers {
		if strings.Contains(ua, m) {
			return true
		}
	}
	return false
}

// BotName returns a display name for the crawler identified by ua.
func BotName(ua string) string {
	ua = strings.ToLower(ua)
	for _, b := range knownBots {
		if strings.Contains(ua, b.pattern) {
			return b.name
		}
	}
	if strings.Contains(ua, "bot") {
		return "Other Bot"
	}
	return "Unknown"
}

var referrerDomain = regexp.MustCompile(`^https?://(?:www\.)?([^/:?#]+)`)

// CleanReferrer reduces a referrer URL to a source name. siteHost is the
// site's own host; internal navigation is reported as "Internal".
func CleanReferrer(ref, siteHost string) string {
	if ref == "" {
		return "Direct"
	}
	lower := strings.ToLower(ref)
	for _, se := range []struct{ marker, name string }{
		{"google.", "Google"},
		{"bing.", "Bing"},
		{"duckduckgo.", "DuckDuckGo"},
		{"yahoo.", "Yahoo"},
		{"linkedin.", "LinkedIn"},
		{"t.co/", "Twitter"},
	} {
		if strings.Contains(lower, se.marker) {
			return se.name
		}
	}
	m := referrerDomain.FindStringSubmatch(lower)
	if len(m) < 2 {
		return "Other"
	}
	if siteHost != "" && strings.TrimPrefix(strings.ToLower(siteHost), "www.") == m[1] {
		return "Internal"
	}
	return m[1]
}
