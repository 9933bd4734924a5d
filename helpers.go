package sundaythoughts

import (
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// Category is a listing filter choice. Value is matched as a substring of
// the article category.
type Category struct {
	Value string
	Label string
}

// Categories are the filter choices offered on the listing.
var Categories = []Category{
	{Value: "all", Label: "All Categories"},
	{Value: "geopolitics", Label: "Geopolitics"},
	{Value: "tech", Label: "New Age Technology"},
	{Value: "leadership", Label: "Thought Leadership"},
	{Value: "ai", Label: "AI/Data Cloud"},
	{Value: "macro", Label: "Macroeconomy"},
}

// SortFields are the accepted listing sort fields with their labels.
var SortFields = []Category{
	{Value: "title", Label: "Title"},
	{Value: "category", Label: "Category"},
	{Value: "created_date", Label: "Date"},
}

const excerptWords = 100

// Excerpt returns the first n space-separated words of text followed by "...".
func Excerpt(text string, n int) string {
	words := strings.Split(text, " ")
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ") + "..."
}

// FormatDate renders a YYYY-MM-DD date as "02 Jan 2006". Unparseable input
// is returned unchanged.
func FormatDate(date string) string {
	t, err := time.Parse(dateLayout, normalizeDate(date))
	if err != nil {
		return date
	}
	return t.Format("02 Jan 2006")
}

// PublicURL builds the public object URL of path in bucket. One leading
// slash on path is ignored. An empty path yields "".
func PublicURL(base, bucket, objectPath string) string {
	objectPath = strings.TrimPrefix(objectPath, "/")
	if objectPath == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/storage/v1/object/public/" + bucket + "/" + objectPath
}

// ScrollWindow is the half-open range [Start, End) of articles shown next
// to the featured one. The featured article sits at index 0.
type ScrollWindow struct {
	Start int
	End   int
}

// DefaultWindow is the window shown on first load.
var DefaultWindow = ScrollWindow{Start: 1, End: 5}

const windowStep = 2

// Move shifts the window by two articles in direction ("up" or "down")
// within a listing of total articles.
func (w ScrollWindow) Move(direction string, total int) ScrollWindow {
	if direction == "up" {
		w.Start = max(w.Start-windowStep, 1)
		w.End = max(w.End-windowStep, DefaultWindow.End)
	} else {
		w.Start = min(w.Start+windowStep, total-4)
		w.End = min(w.End+windowStep, total)
	}
	return w.clamp(total)
}

// clamp keeps the window inside [1, total].
func (w ScrollWindow) clamp(total int) ScrollWindow {
	if w.Start < 1 {
		w.Start = 1
	}
	if w.End > total {
		w.End = total
	}
	if w.End < w.Start {
		w.End = w.Start
	}
	return w
}

// WindowAt returns the window starting at start, clamped to total.
func WindowAt(start, total int) ScrollWindow {
	if start < 1 {
		start = 1
	}
	size := DefaultWindow.End - DefaultWindow.Start
	return ScrollWindow{Start: start, End: start + size}.clamp(total)
}

// ArticleLink returns the site-relative URL of an article page.
func ArticleLink(id int64) string {
	return "/article/" + strconv.FormatInt(id, 10)
}

// BuildURL joins a base URL with path segments.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) == 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// FilterEmpty removes empty/whitespace-only strings from a slice.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// WebsiteJsonLD returns a JSON-LD string for a WebSite schema using SiteConfig.
func WebsiteJsonLD(cfg SiteConfig) string {
	data := map[string]interface{}{
		"@context":    "https://schema.org",
		"@type":       "WebSite",
		"name":        cfg.Name,
		"url":         BuildURL(cfg.URL),
		"description": cfg.Description,
	}
	if cfg.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  cfg.Author,
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ArticleJsonLD returns a JSON-LD string for an Article schema.
func ArticleJsonLD(a Article, cfg SiteConfig) string {
	articleURL := BuildURL(cfg.URL, "article", strconv.FormatInt(a.ID, 10))
	data := map[string]interface{}{
		"@context":         "https://schema.org",
		"@type":            "Article",
		"headline":         a.Title,
		"description":      Excerpt(a.Writeup, 30),
		"datePublished":    a.CreatedDate,
		"url":              articleURL,
		"articleSection":   a.Category,
		"mainEntityOfPage": map[string]string{"@type": "WebPage", "@id": articleURL},
	}
	if cfg.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  cfg.Author,
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
