package sundaythoughts

import (
	"github.com/a-h/templ"

	"github.com/Really-Nice-Guy/ST-May01/analytics"
)

// ViewFuncs holds the components the handlers render. The views package
// provides the default set; sites can replace any of them.
type ViewFuncs struct {
	Home           func(p ListingPage) templ.Component
	HomePartial    func(p ListingPage) templ.Component
	Gate           func(p GatePage) templ.Component
	Article        func(p ArticlePage) templ.Component
	Subscribe      func(p SubscribePage) templ.Component
	AdminLogin     func(showError bool, csrfToken string) templ.Component
	AdminDashboard func(p AdminPage) templ.Component
	AdminForm      func(p AdminFormPage) templ.Component
	AdminUsers     func(p AdminUsersPage) templ.Component
	NotFound       func() templ.Component
	ServerError    func() templ.Component
}

// Session is what every page knows about the visitor.
type Session struct {
	Reader    string // allowed email, "" when signed out
	IsAdmin   bool
	CSRFToken string
}

// ArticleCard is an article prepared for display.
type ArticleCard struct {
	Article
	Link     string
	Date     string // "02 Jan 2006"
	Excerpt  string
	ImageURL string
	PDFURL   string
	IsNew    bool
}

// ListingPage is the home page: a featured article and a scroll window of
// further articles.
type ListingPage struct {
	Site       SiteConfig
	Meta       PageMeta
	Session    Session
	Query      ArticleQuery
	Featured   *ArticleCard
	Cards      []ArticleCard // the articles inside Window
	Window     ScrollWindow
	Total      int
	CanUp      bool
	CanDown    bool
	Categories []Category
	SortFields []Category
	JSONLD     string
}

// GatePage asks for an allowed email before showing content.
type GatePage struct {
	Site    SiteConfig
	Meta    PageMeta
	Session Session
	Email   string
	Denied  bool   // email was checked and is not on the list
	Message string // validation or rate-limit message
	Next    string // where to go after signing in
	Mailto  string // request-access mail link, "" when not configured
}

// ArticlePage is a single article with its comments.
type ArticlePage struct {
	Site         SiteConfig
	Meta         PageMeta
	Session      Session
	Card         ArticleCard
	Formatted    string // sanitised HTML; "" means the client streams it
	Comments     []Comment
	Message      string
	CanFormat    bool
	CanExplain   bool
	CanPodcast   bool
	TrackReading bool
	JSONLD       string
}

// SubscribeForm echoes the subscribe fields back on error.
type SubscribeForm struct {
	FirstName string
	LastName  string
	Email     string
}

// SubscribePage is the allow-list sign-up form.
type SubscribePage struct {
	Site    SiteConfig
	Meta    PageMeta
	Session Session
	Form    SubscribeForm
	Message string
	Success bool
}

// AdminRow is one article on the dashboard.
type AdminRow struct {
	Article
	Comments  int
	Views     int
	Formatted bool
}

// AdminPage is the admin dashboard.
type AdminPage struct {
	Site      SiteConfig
	Rows      []AdminRow
	Message   string
	CSRFToken string
	Stats     *analytics.Summary // nil when analytics is off
}

// AdminFormPage edits or creates an article.
type AdminFormPage struct {
	Article    Article
	ImageURL   string
	Categories []Category
	CSRFToken  string
}

// AdminUsersPage lists the email allow-list.
type AdminUsersPage struct {
	Users     []User
	Message   string
	CSRFToken string
}
