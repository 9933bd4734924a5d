package sundaythoughts

import (
	"encoding/xml"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string        `xml:"title"`
	Link        string        `xml:"link"`
	Description string        `xml:"description"`
	Category    string        `xml:"category,omitempty"`
	PubDate     string        `xml:"pubDate,omitempty"`
	GUID        string        `xml:"guid"`
	Enclosure   *rssEnclosure `xml:"enclosure,omitempty"`
}

type rssEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

// feedItems caps the feed at the most recent articles.
const feedItems = 50

func (a *App) renderRSS(c echo.Context, articles []Article) error {
	base := a.Config.URL
	if len(articles) > feedItems {
		articles = articles[:feedItems]
	}
	items := make([]rssItem, 0, len(articles))
	for _, art := range articles {
		pubDate := ""
		if t, err := time.Parse(dateLayout, art.CreatedDate); err == nil {
			pubDate = t.Format(time.RFC1123Z)
		}
		link := BuildURL(base, "article", strconv.FormatInt(art.ID, 10))
		item := rssItem{
			Title:       art.Title,
			Link:        link,
			Description: Excerpt(art.Writeup, 60),
			Category:    art.Category,
			PubDate:     pubDate,
			GUID:        link,
		}
		if u := a.ImageURL(art.Image); u != "" {
			item.Enclosure = &rssEnclosure{URL: absoluteURL(base, u), Type: "image/jpeg"}
		}
		items = append(items, item)
	}
	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       a.Config.Name,
			Link:        BuildURL(base),
			Description: a.Config.Description,
			Items:       items,
		},
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(feed)
}

// absoluteURL resolves site-relative object URLs against the site base.
func absoluteURL(base, u string) string {
	if len(u) > 0 && u[0] == '/' {
		return BuildURL(base, u)
	}
	return u
}
