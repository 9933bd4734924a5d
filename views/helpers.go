package views

import (
	"html/template"
	"net/url"
	"strconv"
	"strings"

	st "github.com/Really-Nice-Guy/ST-May01"
)

const tagline = "A Collection of Insights and Reflections"

// listingURL builds a listing link for q with the window starting at start
// and an optional arrow direction.
func listingURL(q st.ArticleQuery, w st.ScrollWindow, dir string) string {
	v := url.Values{}
	if q.Category != "" && q.Category != "all" {
		v.Set("category", q.Category)
	}
	if q.Search != "" {
		v.Set("q", q.Search)
	}
	if q.SortField != "" {
		v.Set("sort", q.SortField)
	}
	if q.Ascending {
		v.Set("order", "asc")
	}
	v.Set("start", strconv.Itoa(w.Start))
	v.Set("end", strconv.Itoa(w.End))
	if dir != "" {
		v.Set("dir", dir)
	}
	return "/?" + v.Encode()
}

// categoryLabel returns the display label of a category value, or the
// value itself when it is not one of the listing filters.
func categoryLabel(value string) string {
	for _, c := range st.Categories {
		if strings.EqualFold(c.Value, value) {
			return c.Label
		}
	}
	return value
}

// categoryTags splits a stored comma-separated category into labels.
func categoryTags(value string) []string {
	var out []string
	for _, v := range st.FilterEmpty(strings.Split(value, ",")) {
		out = append(out, categoryLabel(v))
	}
	return out
}

var funcs = template.FuncMap{
	"listingURL":    listingURL,
	"categoryLabel": categoryLabel,
	"categoryTags":  categoryTags,
	"formatDate":    st.FormatDate,
	"articleLink":   st.ArticleLink,
	// safeHTML marks sanitised markup produced by the markdown package.
	"safeHTML": func(s string) template.HTML { return template.HTML(s) },
	"jsonLD":   func(s string) template.JS { return template.JS(s) },
}
