package sundaythoughts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestGateBlocksAnonymousReaders(t *testing.T) {
	app := newTestApp(t)
	seedApp(t, app)
	c := newClient(t, app)

	rec := c.get("/article/1")
	expectStatus(t, rec, http.StatusOK)
	expectBody(t, rec, "gate denied=false", "next=/article/1", "mailto=mailto:owner@example.com?")

	rec = c.get("/api/articles")
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestGateDisabledServesListing(t *testing.T) {
	app := newTestApp(t, func(a *App) { a.Config.GateEnabled = false })
	seedApp(t, app)
	c := newClient(t, app)

	rec := c.get("/")
	expectStatus(t, rec, http.StatusOK)
	expectBody(t, rec, "home featured=alpha rates")
}

func TestReaderLoginAndLogout(t *testing.T) {
	app := newTestApp(t)
	seedApp(t, app)
	c := newClient(t, app)
	app.Store.AddUser(context.Background(), User{Email: "reader@example.com"})

	rec := c.postForm("/login", url.Values{"email": {"  Reader@Example.com "}, "next": {"/article/2"}})
	expectStatus(t, rec, http.StatusSeeOther)
	if loc := rec.Header().Get("Location"); loc != "/article/2" {
		t.Fatalf("redirect = %q", loc)
	}

	rec = c.get("/")
	expectStatus(t, rec, http.StatusOK)
	expectBody(t, rec, "home featured=alpha rates", "cards=Beta Chips|Gamma Models", "total=3", "reader=reader@example.com")

	rec = c.postForm("/logout", nil)
	expectStatus(t, rec, http.StatusSeeOther)
	expectBody(t, c.get("/"), "gate")
}

func TestReaderLoginRedirectStaysOnSite(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t, app)
	app.Store.AddUser(context.Background(), User{Email: "reader@example.com"})

	rec := c.postForm("/login", url.Values{"email": {"reader@example.com"}, "next": {"//evil.example/"}})
	expectStatus(t, rec, http.StatusSeeOther)
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Fatalf("redirect = %q, want /", loc)
	}
}

func TestReaderLoginDenied(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t, app)

	rec := c.postForm("/login", url.Values{"email": {"stranger@example.com"}})
	expectStatus(t, rec, http.StatusOK)
	expectBody(t, rec, "gate denied=true", "subject=Request%20for%20Access%20to%20Sunday%20Thoughts")

	rec = c.postForm("/login", url.Values{"email": {"not-an-email"}})
	expectStatus(t, rec, http.StatusOK)
	expectBody(t, rec, "gate denied=false", "valid email")
}

func TestReaderLoginJSON(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t, app)
	app.Store.AddUser(context.Background(), User{Email: "reader@example.com"})

	for email, want := range map[string]bool{"stranger@example.com": false, "reader@example.com": true} {
		rec := c.postJSON("/login", `{"email":"`+email+`"}`)
		expectStatus(t, rec, http.StatusOK)
		var body struct {
			Allowed bool `json:"allowed"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Allowed != want {
			t.Errorf("%s: allowed = %v, want %v", email, body.Allowed, want)
		}
	}
}

func TestReaderLoginRateLimited(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t, app)

	for i := 0; i < 5; i++ {
		c.postForm("/login", url.Values{"email": {"stranger@example.com"}})
	}
	rec := c.postJSON("/login", `{"email":"stranger@example.com"}`)
	expectStatus(t, rec, http.StatusTooManyRequests)
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t, app)
	c.csrf = "wrong"
	rec := c.postForm("/login", url.Values{"email": {"reader@example.com"}})
	expectStatus(t, rec, http.StatusForbidden)
}

func TestSubscribe(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t, app)

	expectBody(t, c.get("/subscribe"), "subscribe success=false")

	rec := c.postForm("/subscribe", url.Values{"first_name": {"Ann"}, "email": {"ann@example.com"}})
	expectStatus(t, rec, http.StatusBadRequest)
	expectBody(t, rec, "All fields are required.")

	form := url.Values{"first_name": {"Ann"}, "last_name": {"Lee"}, "email": {"ann@example.com"}}
	rec = c.postForm("/subscribe", form)
	expectStatus(t, rec, http.StatusOK)
	expectBody(t, rec, "success=true", "Subscription successful! You can now log in.")

	rec = c.postForm("/subscribe", form)
	expectStatus(t, rec, http.StatusBadRequest)
	expectBody(t, rec, "Error subscribing. Please try again.")

	allowed, _ := app.Store.EmailAllowed(context.Background(), "ann@example.com")
	if !allowed {
		t.Fatal("subscriber not on allow-list")
	}
}

func TestRequestAccess(t *testing.T) {
	app := newTestApp(t)
	c := newClient(t, app)

	rec := c.get("/api/request-access")
	expectStatus(t, rec, http.StatusMethodNotAllowed)
	expectBody(t, rec, `"message":"Method not allowed"`)

	rec = c.postJSON("/api/request-access", `{}`)
	expectStatus(t, rec, http.StatusBadRequest)
	expectBody(t, rec, `"message":"Email is required"`)

	rec = c.postJSON("/api/request-access", `{"email":"new@example.com"}`)
	expectStatus(t, rec, http.StatusOK)
	expectBody(t, rec, `"message":"Request recorded"`, `"email":"new@example.com"`)

	rec = c.postJSON("/api/request-access", `{"email":"NEW@example.com"}`)
	expectStatus(t, rec, http.StatusBadRequest)
	expectBody(t, rec, ErrDuplicate.Error())
}

func TestRequestAccessMailto(t *testing.T) {
	if got := requestAccessMailto(""); got != "" {
		t.Fatalf("empty address gave %q", got)
	}
	got := requestAccessMailto("owner@example.com")
	if !strings.HasPrefix(got, "mailto:owner@example.com?") || strings.Contains(got, "+") {
		t.Fatalf("mailto = %q", got)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if body := u.Query().Get("body"); !strings.Contains(body, "please take my money!") {
		t.Fatalf("body = %q", body)
	}
}

func TestSafeNext(t *testing.T) {
	for in, want := range map[string]string{
		"/article/1":        "/article/1",
		"":                  "/",
		"https://evil.test": "/",
		"//evil.test":       "/",
		`/\evil.test`:       "/",
	} {
		if got := safeNext(in); got != want {
			t.Errorf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}
