package sundaythoughts

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, a.Views.AdminLogin(false, CsrfToken(c)))
	}
	return a.renderAdminDashboard(c, c.QueryParam("msg"))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	if !a.loginLimiter.Allow(c.RealIP()) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setAdminSession(c); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	return Render(c, a.Views.AdminLogin(true, CsrfToken(c)))
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func adminRedirect(c echo.Context, path, msg string) error {
	if msg != "" {
		path += "?msg=" + url.QueryEscape(msg)
	}
	return c.Redirect(http.StatusSeeOther, path)
}

// formCategories offers the fixed categories followed by any other
// category values already used by articles.
func (a *App) formCategories(ctx context.Context) []Category {
	out := slices.Clone(Categories[1:])
	used, err := a.Cache.Categories(ctx)
	if err != nil {
		a.Logger.Warn("load categories", zap.Error(err))
		return out
	}
	for _, v := range used {
		if !slices.ContainsFunc(out, func(c Category) bool { return c.Value == v }) {
			out = append(out, Category{Value: v, Label: v})
		}
	}
	return out
}

func (a *App) handleAdminNew(c echo.Context) error {
	return Render(c, a.Views.AdminForm(AdminFormPage{
		Article:    Article{CreatedDate: time.Now().Format(dateLayout), Dated: true},
		Categories: a.formCategories(c.Request().Context()),
		CSRFToken:  CsrfToken(c),
	}))
}

func (a *App) handleAdminEdit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	art, err := a.Store.GetArticle(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Article not found")
	}
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminForm(AdminFormPage{
		Article:    art,
		ImageURL:   a.ImageURL(art.Image),
		Categories: a.formCategories(c.Request().Context()),
		CSRFToken:  CsrfToken(c),
	}))
}

func (a *App) handleAdminSave(c echo.Context) error {
	ctx := c.Request().Context()
	if err := c.Request().ParseForm(); err != nil {
		return err
	}
	var art Article
	if raw := strings.TrimSpace(c.FormValue("id")); raw != "" && raw != "0" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return adminRedirect(c, "/admin/", "Invalid article id.")
		}
		art.ID = id
	}
	var previous string
	if art.ID != 0 {
		old, err := a.Store.GetArticle(ctx, art.ID)
		if errors.Is(err, ErrNotFound) {
			return adminRedirect(c, "/admin/", "Article not found.")
		}
		if err != nil {
			return err
		}
		previous = old.Writeup
	}

	art.Title = strings.TrimSpace(c.FormValue("title"))
	if art.Title == "" {
		return adminRedirect(c, "/admin/", "Title is required.")
	}
	art.CreatedDate = strings.TrimSpace(c.FormValue("created_date"))
	if art.CreatedDate == "" {
		art.CreatedDate = time.Now().Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, art.CreatedDate); err != nil {
		return adminRedirect(c, "/admin/", "Invalid date format. Use YYYY-MM-DD.")
	}
	art.Category = strings.Join(FilterEmpty(strings.Split(c.FormValue("category"), ",")), ", ")
	art.Writeup = c.FormValue("writeup")
	art.Dated = c.FormValue("dated") != ""
	art.Image = strings.TrimSpace(c.FormValue("image"))
	art.PDF = strings.TrimSpace(c.FormValue("pdf"))

	if err := a.Store.SaveArticle(ctx, &art); err != nil {
		return err
	}
	if previous != "" && previous != art.Writeup {
		if err := a.Store.DeleteFormatted(ctx, art.ID); err != nil {
			a.Logger.Warn("drop formatted copy", zap.Int64("article_id", art.ID), zap.Error(err))
		}
	}
	a.Cache.Invalidate()
	a.Logger.Info("article saved", zap.Int64("article_id", art.ID), zap.String("title", art.Title))
	return adminRedirect(c, "/admin/", "saved")
}

func (a *App) handleAdminDelete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := a.Store.DeleteArticle(c.Request().Context(), id); err != nil {
		return err
	}
	a.Cache.Invalidate()
	a.Logger.Info("article deleted", zap.Int64("article_id", id))
	if c.Request().Method == http.MethodDelete {
		return c.NoContent(http.StatusNoContent)
	}
	return adminRedirect(c, "/admin/", "deleted")
}

func (a *App) handleAdminClearFormat(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := a.Store.DeleteFormatted(c.Request().Context(), id); err != nil {
		return err
	}
	return adminRedirect(c, "/admin/", "Formatted copy cleared.")
}

func (a *App) renderAdminDashboard(c echo.Context, msg string) error {
	ctx := c.Request().Context()
	articles, err := a.Store.ListArticles(ctx, ArticleQuery{SortField: "created_date"})
	if err != nil {
		return err
	}

	var views map[int64]int
	page := AdminPage{Site: a.Config, Message: msg, CSRFToken: CsrfToken(c)}
	if a.Tracker != nil {
		if views, err = a.Tracker.Views(ctx, 30); err != nil {
			a.Logger.Warn("article views", zap.Error(err))
		}
		if page.Stats, err = a.Tracker.Summary(ctx, 30, 10); err != nil {
			a.Logger.Warn("analytics summary", zap.Error(err))
		}
	}

	page.Rows = make([]AdminRow, 0, len(articles))
	for _, art := range articles {
		row := AdminRow{Article: art, Views: views[art.ID]}
		if row.Comments, err = a.Store.CountComments(ctx, art.ID); err != nil {
			return err
		}
		_, err := a.Store.GetFormatted(ctx, art.ID, ContentHash(art.Writeup))
		row.Formatted = err == nil
		page.Rows = append(page.Rows, row)
	}
	return Render(c, a.Views.AdminDashboard(page))
}

func (a *App) handleAdminUsers(c echo.Context) error {
	return a.renderAdminUsers(c, c.QueryParam("msg"))
}

func (a *App) renderAdminUsers(c echo.Context, msg string) error {
	users, err := a.Store.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminUsers(AdminUsersPage{Users: users, Message: msg, CSRFToken: CsrfToken(c)}))
}

func (a *App) handleAdminAddUser(c echo.Context) error {
	u := User{
		Email:     c.FormValue("email"),
		FirstName: c.FormValue("first_name"),
		LastName:  c.FormValue("last_name"),
	}
	if NormalizeEmail(u.Email) == "" {
		return adminRedirect(c, "/admin/users/", "Email is required.")
	}
	if _, err := a.Store.AddUser(c.Request().Context(), u); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return adminRedirect(c, "/admin/users/", "Email already registered.")
		}
		return err
	}
	return adminRedirect(c, "/admin/users/", "User added.")
}

func (a *App) handleAdminDeleteUser(c echo.Context) error {
	err := a.Store.DeleteUser(c.Request().Context(), c.FormValue("email"))
	if errors.Is(err, ErrNotFound) {
		return adminRedirect(c, "/admin/users/", "No such user.")
	}
	if err != nil {
		return err
	}
	return adminRedirect(c, "/admin/users/", "User removed.")
}
