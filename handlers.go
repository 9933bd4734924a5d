package sundaythoughts

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Really-Nice-Guy/ST-May01/analytics"
	"github.com/Really-Nice-Guy/ST-May01/markdown"
)

func listingQuery(c echo.Context) ArticleQuery {
	return ArticleQuery{
		Category:  c.QueryParam("category"),
		Search:    c.QueryParam("q"),
		SortField: c.QueryParam("sort"),
		Ascending: c.QueryParam("order") == "asc",
	}
}

// listingWindow reads start/end/dir from the query. dir moves the window
// the way the listing arrows do.
func listingWindow(c echo.Context, total int) ScrollWindow {
	w := DefaultWindow
	if start, err := strconv.Atoi(c.QueryParam("start")); err == nil {
		w = WindowAt(start, total)
		if end, err := strconv.Atoi(c.QueryParam("end")); err == nil && end > start {
			w.End = end
		}
	}
	if dir := c.QueryParam("dir"); dir == "up" || dir == "down" {
		w = w.Move(dir, total)
	}
	return w.clamp(total)
}

func windowSlice(articles []Article, w ScrollWindow) []Article {
	start := min(w.Start, len(articles))
	end := min(max(w.End, start), len(articles))
	return articles[start:end]
}

func (a *App) card(art Article, latestID int64) ArticleCard {
	return ArticleCard{
		Article:  art,
		Link:     ArticleLink(art.ID),
		Date:     FormatDate(art.CreatedDate),
		Excerpt:  Excerpt(art.Writeup, excerptWords),
		ImageURL: a.ImageURL(art.Image),
		PDFURL:   a.PDFURL(art.PDF),
		IsNew:    art.ID == latestID,
	}
}

func (a *App) handleHome(c echo.Context) error {
	ctx := c.Request().Context()
	q := listingQuery(c)
	articles, err := a.Cache.List(ctx, q)
	if err != nil {
		return err
	}
	latest, err := a.Cache.Latest(ctx)
	if err != nil {
		return err
	}

	w := listingWindow(c, len(articles))
	page := ListingPage{
		Site: a.Config,
		Meta: PageMeta{
			Title:       a.Config.Name,
			Description: a.Config.Description,
			URL:         BuildURL(a.Config.URL),
			OGType:      "website",
		},
		Session:    currentSession(c),
		Query:      normalizeQuery(q),
		Window:     w,
		Total:      len(articles),
		CanUp:      w.Start > 1,
		CanDown:    w.End < len(articles),
		Categories: Categories,
		SortFields: SortFields,
		JSONLD:     WebsiteJsonLD(a.Config),
	}
	if len(articles) > 0 {
		featured := a.card(articles[0], latest)
		page.Featured = &featured
	}
	for _, art := range windowSlice(articles, w) {
		page.Cards = append(page.Cards, a.card(art, latest))
	}

	if c.Request().Header.Get("HX-Request") == "true" && c.QueryParam("partial") == "list" {
		return Render(c, a.Views.HomePartial(page))
	}
	return Render(c, a.Views.Home(page))
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound)
	}
	return id, nil
}

// article loads the article named by the :id path parameter. Unknown ids
// yield a 404 HTTPError.
func (a *App) article(c echo.Context) (Article, error) {
	id, err := parseID(c)
	if err != nil {
		return Article{}, err
	}
	art, err := a.Cache.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return Article{}, echo.NewHTTPError(http.StatusNotFound, "Article not found")
	}
	return art, err
}

func (a *App) handleArticle(c echo.Context) error {
	ctx := c.Request().Context()
	art, err := a.article(c)
	if err != nil {
		return err
	}
	latest, err := a.Cache.Latest(ctx)
	if err != nil {
		return err
	}
	comments, err := a.Store.ListComments(ctx, art.ID)
	if err != nil {
		return err
	}

	page := ArticlePage{
		Site: a.Config,
		Meta: PageMeta{
			Title:       art.Title + " | " + a.Config.Name,
			Description: Excerpt(art.Writeup, 30),
			URL:         BuildURL(a.Config.URL, "article", strconv.FormatInt(art.ID, 10)),
			OGType:      "article",
		},
		Session:      currentSession(c),
		Card:         a.card(art, latest),
		Comments:     comments,
		Message:      c.QueryParam("msg"),
		CanFormat:    a.Generator != nil,
		CanExplain:   a.Generator != nil,
		CanPodcast:   a.Podcasts != nil,
		TrackReading: a.Tracker != nil,
		JSONLD:       ArticleJsonLD(art, a.Config),
	}

	content, err := a.Store.GetFormatted(ctx, art.ID, ContentHash(art.Writeup))
	switch {
	case err == nil:
		page.Formatted = markdown.Render(content)
	case !errors.Is(err, ErrNotFound):
		a.Logger.Error("load formatted article", zap.Int64("article_id", art.ID), zap.Error(err))
	}
	// Without a model the writeup is shown as written.
	if page.Formatted == "" && a.Generator == nil {
		page.Formatted = markdown.Render(art.Writeup)
	}

	a.track(c, art.ID)
	return Render(c, a.Views.Article(page))
}

func (a *App) track(c echo.Context, articleID int64) {
	if a.Tracker == nil {
		return
	}
	req := c.Request()
	err := a.Tracker.Track(req.Context(), analytics.Hit{
		ArticleID: articleID,
		IP:        c.RealIP(),
		UserAgent: req.UserAgent(),
		Referrer:  req.Referer(),
		DNT:       req.Header.Get("DNT") == "1",
	})
	if err != nil {
		a.Logger.Warn("track visit", zap.Int64("article_id", articleID), zap.Error(err))
	}
}

func (a *App) handleCommentForm(c echo.Context) error {
	art, err := a.article(c)
	if err != nil {
		return err
	}
	back := ArticleLink(art.ID)
	_, err = a.Store.AddComment(c.Request().Context(), art.ID, c.FormValue("text"))
	if errors.Is(err, ErrEmptyComment) {
		return c.Redirect(http.StatusSeeOther, back+"?msg="+url.QueryEscape("Comment cannot be empty.")+"#comments")
	}
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, back+"#comments")
}

// apiArticle is the JSON shape of an article with its resolved URLs.
type apiArticle struct {
	Article
	ImageURL string `json:"image_url,omitempty"`
	PDFURL   string `json:"pdf_url,omitempty"`
	IsNew    bool   `json:"is_new"`
}

func (a *App) toAPI(art Article, latest int64) apiArticle {
	return apiArticle{Article: art, ImageURL: a.ImageURL(art.Image), PDFURL: a.PDFURL(art.PDF), IsNew: art.ID == latest}
}

func (a *App) handleAPIArticles(c echo.Context) error {
	ctx := c.Request().Context()
	articles, err := a.Cache.List(ctx, listingQuery(c))
	if err != nil {
		a.Logger.Error("list articles", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Error fetching data"})
	}
	latest, err := a.Cache.Latest(ctx)
	if err != nil {
		return err
	}
	out := make([]apiArticle, 0, len(articles))
	for _, art := range articles {
		out = append(out, a.toAPI(art, latest))
	}
	return c.JSON(http.StatusOK, out)
}

func (a *App) handleAPIArticle(c echo.Context) error {
	art, err := a.article(c)
	if err != nil {
		return jsonError(c, err)
	}
	latest, err := a.Cache.Latest(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a.toAPI(art, latest))
}

func (a *App) handleAPIComments(c echo.Context) error {
	art, err := a.article(c)
	if err != nil {
		return jsonError(c, err)
	}
	comments, err := a.Store.ListComments(c.Request().Context(), art.ID)
	if err != nil {
		return err
	}
	if comments == nil {
		comments = []Comment{}
	}
	return c.JSON(http.StatusOK, comments)
}

type commentRequest struct {
	Text string `json:"text" form:"text"`
}

func (a *App) handleAPIAddComment(c echo.Context) error {
	art, err := a.article(c)
	if err != nil {
		return jsonError(c, err)
	}
	var req commentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	cm, err := a.Store.AddComment(c.Request().Context(), art.ID, req.Text)
	if errors.Is(err, ErrEmptyComment) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Comment cannot be empty"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cm)
}

// jsonError turns an HTTPError from a lookup into a JSON body.
func jsonError(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return c.JSON(he.Code, map[string]string{"error": msg})
	}
	return err
}

func (a *App) handleSitemap(c echo.Context) error {
	articles, err := a.Cache.List(c.Request().Context(), ArticleQuery{})
	if err != nil {
		return err
	}
	return a.renderSitemap(c, articles)
}

func (a *App) handleFeed(c echo.Context) error {
	articles, err := a.Cache.List(c.Request().Context(), ArticleQuery{})
	if err != nil {
		return err
	}
	return a.renderRSS(c, articles)
}

func (a *App) handleFavicon(c echo.Context) error {
	return c.File(a.staticDir + "/favicon.svg")
}

func (a *App) handleRobots(c echo.Context) error {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Disallow: /admin/\n")
	b.WriteString("Disallow: /api/\n")
	fmt.Fprintf(&b, "Sitemap: %s\n", BuildURL(a.Config.URL, "sitemap.xml"))
	return c.String(http.StatusOK, b.String())
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	ok := errors.As(err, &he)
	if ok && he.Code == http.StatusNotFound && !strings.HasPrefix(c.Request().URL.Path, "/api/") {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.Logger.Error("server error",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Error(err),
		)
		if strings.HasPrefix(c.Request().URL.Path, "/api/") {
			_ = c.JSON(code, map[string]string{"error": "Internal server error"})
			return
		}
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
