package sundaythoughts

import "time"

// Article is a row of the content table. Image and PDF are object paths
// inside their storage buckets, not URLs.
type Article struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Image       string `json:"image"`
	CreatedDate string `json:"created_date"` // YYYY-MM-DD
	Writeup     string `json:"writeup"`
	Category    string `json:"category"`
	Dated       bool   `json:"datedornot"`
	PDF         string `json:"articlepdffile"`
}

// Comment is a reader comment attached to an article.
type Comment struct {
	ID        string    `json:"id"`
	ArticleID int64     `json:"article_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is an entry of the email allow-list.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ArticleQuery selects and orders articles for the listing.
type ArticleQuery struct {
	Category  string // substring match, "" or "all" for everything
	Search    string // case-insensitive title substring
	SortField string // title, category or created_date
	Ascending bool
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
}
