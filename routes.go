package sundaythoughts

import (
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Really-Nice-Guy/ST-May01/blob"
)

func (a *App) setupRoutes() {
	e := a.Echo

	// Embedded client script and stylesheet.
	assets, _ := fs.Sub(EmbeddedAssets, "embedded")
	e.GET("/assets/*", echo.WrapHandler(http.StripPrefix("/assets/", http.FileServer(http.FS(assets)))))

	// Objects of local buckets. Hosted buckets are served by the storage service.
	for _, b := range []blob.Bucket{a.buckets.Podcasts, a.buckets.Images, a.buckets.PDFs} {
		if local, ok := b.(*blob.Local); ok {
			e.Static(mediaPrefix+"/"+local.Name(), local.Dir())
		}
	}

	e.Static("/public", a.staticDir)
	e.GET("/favicon.svg", a.handleFavicon)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)

	// Email gate.
	e.POST("/login", a.handleReaderLogin)
	e.POST("/logout", handleReaderLogout)
	e.GET("/subscribe", a.handleSubscribeForm)
	e.POST("/subscribe", a.handleSubscribe)
	e.Any("/api/request-access", a.handleRequestAccess)

	// Reader content.
	gate := a.requireReader
	ai := limit(a.aiLimiter)
	e.GET("/", a.handleHome, gate)
	e.GET("/article/:id", a.handleArticle, gate)
	e.POST("/article/:id/comments", a.handleCommentForm, gate)
	e.GET("/api/articles", a.handleAPIArticles, gate)
	e.GET("/api/articles/:id", a.handleAPIArticle, gate)
	e.GET("/api/articles/:id/comments", a.handleAPIComments, gate)
	e.POST("/api/articles/:id/comments", a.handleAPIAddComment, gate)
	e.GET("/api/articles/:id/podcast", a.handleArticlePodcast, gate)
	e.POST("/api/podcast", a.handlePodcast, gate, ai)
	e.GET("/api/proxy", a.handleProxy, gate)
	e.POST("/api/format-article", a.handleFormatText, gate, ai)
	e.POST("/api/explain", a.handleExplain, gate, ai)
	e.POST("/api/articles/:id/format", a.handleFormatArticle, gate, ai)
	e.GET("/api/articles/:id/formatted", a.handleFormattedFragment, gate)

	if a.Tracker != nil {
		e.POST("/api/analytics/collect", a.Tracker.Collect)
	}

	if a.Config.AdminPassword == "" {
		a.Logger.Warn("ADMIN_PASSWORD is not set; admin routes are disabled")
		return
	}
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	adm := e.Group("/admin", a.requireAdmin)
	adm.GET("/article/new/", a.handleAdminNew)
	adm.GET("/article/:id/", a.handleAdminEdit)
	adm.POST("/save/", a.handleAdminSave)
	adm.DELETE("/article/:id/", a.handleAdminDelete)
	adm.POST("/article/:id/delete/", a.handleAdminDelete)
	adm.POST("/article/:id/clear-format/", a.handleAdminClearFormat)
	adm.POST("/upload/", a.handleImageUpload)
	adm.POST("/upload-pdf/", a.handlePDFUpload)
	adm.GET("/users/", a.handleAdminUsers)
	adm.POST("/users/", a.handleAdminAddUser)
	adm.POST("/users/delete/", a.handleAdminDeleteUser)
	if a.Tracker != nil {
		adm.GET("/api/stats", a.Tracker.Stats)
	}
}
