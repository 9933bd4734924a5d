package sundaythoughts

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	// maxProxyBody caps how much of a proxied page is read.
	maxProxyBody      = 5 << 20
	maxProxyRedirects = 5
)

var (
	errProxyHostNotAllowed = errors.New("proxy: redirect to host not allowed")
	errProxyRedirects      = errors.New("proxy: too many redirects")
)

// newProxyClient returns the client used by the page proxy. Every redirect
// hop is held to the same rules as the requested URL.
func (a *App) newProxyClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxProxyRedirects {
				return errProxyRedirects
			}
			if !proxyAllowed(req.URL, a.Config.ProxyAllowedHosts) {
				return errProxyHostNotAllowed
			}
			return nil
		},
	}
}

// proxyAllowed reports whether target may be fetched. Only http(s) is
// allowed, and when an allow-list is configured the host (or a parent
// domain) must be on it.
func proxyAllowed(target *url.URL, allowed []string) bool {
	if target.Scheme != "http" && target.Scheme != "https" {
		return false
	}
	host := strings.ToLower(target.Hostname())
	if host == "" {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	return slices.ContainsFunc(allowed, func(h string) bool {
		h = strings.ToLower(strings.TrimSpace(h))
		return h != "" && (host == h || strings.HasSuffix(host, "."+h))
	})
}

// handleProxy fetches an external page so it can be shown in a frame.
func (a *App) handleProxy(c echo.Context) error {
	raw := c.QueryParam("url")
	if raw == "" {
		return c.String(http.StatusBadRequest, "Missing url parameter")
	}
	target, err := url.Parse(raw)
	if err != nil || !proxyAllowed(target, a.Config.ProxyAllowedHosts) {
		return c.String(http.StatusBadRequest, "URL not allowed")
	}

	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		return c.String(http.StatusBadRequest, "URL not allowed")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := a.proxyClient.Do(req)
	if errors.Is(err, errProxyHostNotAllowed) {
		a.Logger.Warn("proxy redirect refused", zap.String("host", target.Host), zap.Error(err))
		return c.String(http.StatusBadRequest, "URL not allowed")
	}
	if err != nil {
		a.Logger.Warn("proxy fetch", zap.String("host", target.Host), zap.Error(err))
		return c.String(http.StatusBadGateway, "Failed to fetch page")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBody))
	if err != nil {
		return c.String(http.StatusBadGateway, "Failed to fetch page")
	}

	h := c.Response().Header()
	h.Set("X-Frame-Options", "ALLOWALL")
	h.Set("Content-Security-Policy", "frame-ancestors 'self' *")
	return c.Blob(http.StatusOK, "text/html", body)
}
