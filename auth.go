package sundaythoughts

import (
	"errors"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	requestAccessSubject = "Request for Access to Sunday Thoughts"
	requestAccessBody    = "Hello,\n\nI would like to request access to the Sunday Thoughts collection, please take my money!\n\nThank you!"
)

// requestAccessMailto builds the mailto link offered to readers whose
// email is not on the allow-list.
func requestAccessMailto(to string) string {
	if to == "" {
		return ""
	}
	q := url.Values{}
	q.Set("subject", requestAccessSubject)
	q.Set("body", requestAccessBody)
	// Mail clients expect %20 rather than + for spaces.
	return "mailto:" + to + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

func (a *App) renderGate(c echo.Context, p GatePage) error {
	p.Site = a.Config
	p.Meta = PageMeta{Title: "Sign in | " + a.Config.Name, Description: a.Config.Description, URL: BuildURL(a.Config.URL), OGType: "website"}
	p.Session = currentSession(c)
	p.Mailto = requestAccessMailto(a.Config.AccessRequestEmail)
	p.Next = safeNext(p.Next)
	return Render(c, a.Views.Gate(p))
}

// safeNext keeps redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func wantsJSON(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) ||
		strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

type loginRequest struct {
	Email string `json:"email" form:"email"`
	Next  string `json:"next" form:"next"`
}

func (a *App) handleReaderLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	email := NormalizeEmail(req.Email)
	ip := c.RealIP()
	asJSON := wantsJSON(c)

	if !a.readerLimiter.Check(ip) {
		if asJSON {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many attempts. Try again later."})
		}
		return a.renderGate(c, GatePage{Email: email, Next: req.Next, Message: "Too many attempts. Try again later."})
	}
	if _, err := mail.ParseAddress(email); err != nil {
		if asJSON {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Please enter a valid email address."})
		}
		return a.renderGate(c, GatePage{Email: req.Email, Next: req.Next, Message: "Please enter a valid email address."})
	}

	allowed, err := a.Store.EmailAllowed(c.Request().Context(), email)
	if err != nil {
		return err
	}
	if !allowed {
		a.readerLimiter.Record(ip)
		a.Logger.Info("email not on allow-list")
		if asJSON {
			return c.JSON(http.StatusOK, map[string]any{"allowed": false})
		}
		return a.renderGate(c, GatePage{Email: email, Next: req.Next, Denied: true})
	}

	if err := setReaderSession(c, email); err != nil {
		return err
	}
	if asJSON {
		return c.JSON(http.StatusOK, map[string]any{"allowed": true})
	}
	return c.Redirect(http.StatusSeeOther, safeNext(req.Next))
}

func handleReaderLogout(c echo.Context) error {
	if err := clearReaderSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func (a *App) subscribePage(c echo.Context) SubscribePage {
	return SubscribePage{
		Site:    a.Config,
		Meta:    PageMeta{Title: "Subscribe | " + a.Config.Name, Description: a.Config.Description, URL: BuildURL(a.Config.URL, "subscribe"), OGType: "website"},
		Session: currentSession(c),
	}
}

func (a *App) handleSubscribeForm(c echo.Context) error {
	return Render(c, a.Views.Subscribe(a.subscribePage(c)))
}

func (a *App) handleSubscribe(c echo.Context) error {
	page := a.subscribePage(c)
	page.Form = SubscribeForm{
		FirstName: strings.TrimSpace(c.FormValue("first_name")),
		LastName:  strings.TrimSpace(c.FormValue("last_name")),
		Email:     strings.TrimSpace(c.FormValue("email")),
	}
	if page.Form.FirstName == "" || page.Form.LastName == "" || page.Form.Email == "" {
		page.Message = "All fields are required."
		return RenderStatus(c, http.StatusBadRequest, a.Views.Subscribe(page))
	}
	if _, err := mail.ParseAddress(page.Form.Email); err != nil {
		page.Message = "Please enter a valid email address."
		return RenderStatus(c, http.StatusBadRequest, a.Views.Subscribe(page))
	}

	_, err := a.Store.AddUser(c.Request().Context(), User{
		Email:     page.Form.Email,
		FirstName: page.Form.FirstName,
		LastName:  page.Form.LastName,
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicate) {
			a.Logger.Error("subscribe", zap.Error(err))
		}
		page.Message = "Error subscribing. Please try again."
		return RenderStatus(c, http.StatusBadRequest, a.Views.Subscribe(page))
	}
	page.Message = "Subscription successful! You can now log in."
	page.Success = true
	page.Form = SubscribeForm{}
	return Render(c, a.Views.Subscribe(page))
}

type accessRequest struct {
	Email string `json:"email" form:"email"`
}

// handleRequestAccess records an email on the allow-list.
func (a *App) handleRequestAccess(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return c.JSON(http.StatusMethodNotAllowed, map[string]string{"message": "Method not allowed"})
	}
	var req accessRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Email is required"})
	}
	u, err := a.Store.AddUser(c.Request().Context(), User{Email: req.Email})
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Request recorded", "data": []User{u}})
}
