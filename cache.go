package sundaythoughts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// ArticleCache is an in-memory cache of all articles with TTL. The listing
// re-sorts and filters on every request, so one load serves every query.
type ArticleCache struct {
	mu         sync.RWMutex
	articles   []Article // newest first
	categories []string
	fetched    time.Time
	ttl        time.Duration
	store      *Store
}

// NewArticleCache creates an ArticleCache backed by the given Store.
func NewArticleCache(s *Store, ttl time.Duration) *ArticleCache {
	return &ArticleCache{store: s, ttl: ttl}
}

func (c *ArticleCache) valid() bool {
	return c.articles != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *ArticleCache) Invalidate() {
	c.mu.Lock()
	c.articles = nil
	c.categories = nil
	c.mu.Unlock()
}

func (c *ArticleCache) load(ctx context.Context) error {
	if c.valid() {
		return nil
	}
	articles, err := c.store.ListArticles(ctx, ArticleQuery{})
	if err != nil {
		return err
	}
	if articles == nil {
		articles = []Article{}
	}
	c.articles = articles
	c.categories = collectCategories(articles)
	c.fetched = time.Now()
	return nil
}

// ensureLoaded returns the cached articles after ensuring the cache is fresh.
// It tries a read lock first; only takes a write lock if a reload is needed.
func (c *ArticleCache) ensureLoaded(ctx context.Context) ([]Article, []string, error) {
	c.mu.RLock()
	if c.valid() {
		articles, categories := c.articles, c.categories
		c.mu.RUnlock()
		return articles, categories, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil {
		return nil, nil, err
	}
	return c.articles, c.categories, nil
}

// List returns the articles matching q.
func (c *ArticleCache) List(ctx context.Context, q ArticleQuery) ([]Article, error) {
	articles, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	return QueryArticles(articles, q), nil
}

// Categories returns the distinct lowercase categories in use.
func (c *ArticleCache) Categories(ctx context.Context) ([]string, error) {
	_, categories, err := c.ensureLoaded(ctx)
	return categories, err
}

// Get returns a single article by id.
func (c *ArticleCache) Get(ctx context.Context, id int64) (Article, error) {
	articles, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return Article{}, err
	}
	for _, a := range articles {
		if a.ID == id {
			return a, nil
		}
	}
	return Article{}, ErrNotFound
}

// Latest returns the id of the most recently created article, or 0.
func (c *ArticleCache) Latest(ctx context.Context) (int64, error) {
	articles, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return 0, err
	}
	return LatestArticleID(articles), nil
}

// QueryArticles filters and sorts articles in memory with the same rules as
// Store.ListArticles. The input slice is not modified.
func QueryArticles(articles []Article, q ArticleQuery) []Article {
	q = normalizeQuery(q)
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if q.Category != "" && !strings.Contains(strings.ToLower(a.Category), q.Category) {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(a.Title), q.Search) {
			continue
		}
		out = append(out, a)
	}
	key := func(a Article) string {
		switch q.SortField {
		case "title":
			return strings.ToLower(a.Title)
		case "category":
			return strings.ToLower(a.Category)
		default:
			return a.CreatedDate
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := key(out[i]), key(out[j])
		if ki == kj {
			if q.Ascending {
				return out[i].ID < out[j].ID
			}
			return out[i].ID > out[j].ID
		}
		if q.Ascending {
			return ki < kj
		}
		return ki > kj
	})
	return out
}

// LatestArticleID returns the id of the article with the greatest creation
// date; the first one seen wins ties.
func LatestArticleID(articles []Article) int64 {
	if len(articles) == 0 {
		return 0
	}
	latest := articles[0]
	for _, a := range articles[1:] {
		if a.CreatedDate > latest.CreatedDate {
			latest = a
		}
	}
	return latest.ID
}

func collectCategories(articles []Article) []string {
	set := make(map[string]struct{})
	for _, a := range articles {
		if c := strings.ToLower(strings.TrimSpace(a.Category)); c != "" {
			set[c] = struct{}{}
		}
	}
	result := make([]string, 0, len(set))
	for c := range set {
		result = append(result, c)
	}
	sort.Strings(result)
	return result
}
