// Package views provides the default page components of a Sunday Thoughts
// site. Pages are html/template files embedded in the binary and exposed as
// templ components.
package views

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/a-h/templ"

	st "github.com/Really-Nice-Guy/ST-May01"
)

//go:embed templates/*.html
var files embed.FS

// shell is what the layout needs from every page.
type shell struct {
	Title       string
	Description string
	URL         string
	OGType      string
	SiteName    string
	Tagline     string
	CSRFToken   string
	Reader      string
	IsAdmin     bool
	JSONLD      string
	Page        any
}

var pages = map[string]*template.Template{}

func init() {
	base := template.Must(template.New("layout.html").Funcs(funcs).ParseFS(files, "templates/layout.html", "templates/partials.html"))
	for _, name := range []string{
		"home", "gate", "article", "subscribe", "not_found", "server_error",
		"admin_login", "admin_dashboard", "admin_form", "admin_users",
	} {
		t := template.Must(base.Clone())
		pages[name] = template.Must(t.ParseFS(files, "templates/"+name+".html"))
	}
	// The partial renders without the layout.
	pages["list"] = template.Must(template.New("partials.html").Funcs(funcs).ParseFS(files, "templates/partials.html"))
}

func page(name string, data shell) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return pages[name].ExecuteTemplate(w, "layout", data)
	})
}

func siteShell(site st.SiteConfig, meta st.PageMeta, s st.Session, jsonLD string, p any) shell {
	desc := meta.Description
	if desc == "" {
		desc = site.Description
	}
	title := meta.Title
	if title == "" {
		title = site.Name
	}
	return shell{
		Title:       title,
		Description: desc,
		URL:         meta.URL,
		OGType:      meta.OGType,
		SiteName:    site.Name,
		Tagline:     tagline,
		CSRFToken:   s.CSRFToken,
		Reader:      s.Reader,
		IsAdmin:     s.IsAdmin,
		JSONLD:      jsonLD,
		Page:        p,
	}
}

func adminShell(title, csrf string, p any) shell {
	return shell{Title: title + " | Admin", SiteName: "Sunday Thoughts", Tagline: tagline, CSRFToken: csrf, IsAdmin: true, Page: p}
}

// Home renders the listing page.
func Home(p st.ListingPage) templ.Component {
	return page("home", siteShell(p.Site, p.Meta, p.Session, p.JSONLD, p))
}

// HomePartial renders only the article list for in-place window moves.
func HomePartial(p st.ListingPage) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return pages["list"].ExecuteTemplate(w, "article-list", p)
	})
}

// Gate renders the email sign-in prompt.
func Gate(p st.GatePage) templ.Component {
	return page("gate", siteShell(p.Site, p.Meta, p.Session, "", p))
}

// Article renders a single article.
func Article(p st.ArticlePage) templ.Component {
	return page("article", siteShell(p.Site, p.Meta, p.Session, p.JSONLD, p))
}

// Subscribe renders the allow-list sign-up form.
func Subscribe(p st.SubscribePage) templ.Component {
	return page("subscribe", siteShell(p.Site, p.Meta, p.Session, "", p))
}

// AdminLogin renders the password form, with an error line after a failed attempt.
func AdminLogin(showError bool, csrfToken string) templ.Component {
	return page("admin_login", adminShell("Login", csrfToken, struct{ ShowError bool }{showError}))
}

// AdminDashboard renders the article table and, when analytics is on, the reading report.
func AdminDashboard(p st.AdminPage) templ.Component {
	s := adminShell("Dashboard", p.CSRFToken, p)
	s.SiteName = p.Site.Name
	return page("admin_dashboard", s)
}

// AdminForm renders the create/edit form with the cover and PDF upload controls.
func AdminForm(p st.AdminFormPage) templ.Component {
	title := "New article"
	if p.Article.ID != 0 {
		title = "Edit " + p.Article.Title
	}
	return page("admin_form", adminShell(title, p.CSRFToken, p))
}

// AdminUsers renders the allow-list with add and remove forms.
func AdminUsers(p st.AdminUsersPage) templ.Component {
	return page("admin_users", adminShell("Readers", p.CSRFToken, p))
}

// NotFound renders the 404 page.
func NotFound() templ.Component {
	return page("not_found", shell{Title: "Not found", SiteName: "Sunday Thoughts", Tagline: tagline})
}

// ServerError renders the 500 page.
func ServerError() templ.Component {
	return page("server_error", shell{Title: "Something went wrong", SiteName: "Sunday Thoughts", Tagline: tagline})
}

// DefaultViews returns the built-in page set.
func DefaultViews() st.ViewFuncs {
	return st.ViewFuncs{
		Home:           Home,
		HomePartial:    HomePartial,
		Gate:           Gate,
		Article:        Article,
		Subscribe:      Subscribe,
		AdminLogin:     AdminLogin,
		AdminDashboard: AdminDashboard,
		AdminForm:      AdminForm,
		AdminUsers:     AdminUsers,
		NotFound:       NotFound,
		ServerError:    ServerError,
	}
}
