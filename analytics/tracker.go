package analytics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Input limits for the reading beacon.
const (
	maxUserAgentLen = 512
	maxReferrerLen  = 2048
	maxDurationSec  = 4 * 60 * 60
)

// Hit describes a request for an article page.
type Hit struct {
	ArticleID int64
	IP        string
	UserAgent string
	Referrer  string
	DNT       bool
}

// Tracker turns article requests into stored visits.
type Tracker struct {
	store    *Store
	logger   *zap.Logger
	siteHost string
	limiter  *rateLimiter
	now      func() time.Time
	stopOnce func()
}

// NewTracker returns a Tracker writing to store. siteHost is used to
// recognise internal referrers.
func NewTracker(store *Store, siteHost string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:    store,
		logger:   logger,
		siteHost: siteHost,
		limiter:  newRateLimiter(60, time.Minute),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Track records one visit. Requests with Do Not Track set are ignored and
// crawlers are recorded separately from readers.
func (t *Tracker) Track(ctx context.Context, h Hit) error {
	if h.DNT || h.ArticleID <= 0 {
		return nil
	}
	if !t.limiter.allow(h.IP) {
		return nil
	}
	ua := truncate(h.UserAgent, maxUserAgentLen)
	if IsBot(ua) {
		return t.store.SaveBotVisit(ctx, &BotVisit{
			ArticleID: h.ArticleID,
			BotName:   BotName(ua),
			IPHash:    HashIP(h.IP),
			UserAgent: ua,
			Timestamp: t.now(),
		})
	}
	browser, os, device := ParseUserAgent(ua)
	return t.store.SaveVisit(ctx, &Visit{
		ArticleID: h.ArticleID,
		VisitorID: VisitorID(h.IP, ua),
		IPHash:    HashIP(h.IP),
		Browser:   browser,
		OS:        os,
		Device:    device,
		Referrer:  CleanReferrer(truncate(h.Referrer, maxReferrerLen), t.siteHost),
		Timestamp: t.now(),
	})
}

type beaconRequest struct {
	ArticleID   int64 `json:"article_id"`
	DurationSec int   `json:"duration_sec"`
}

// Collect handles the reading-time beacon the article page sends when the
// reader leaves.
func (t *Tracker) Collect(c echo.Context) error {
	if c.Request().Header.Get("DNT") == "1" {
		return c.NoContent(http.StatusNoContent)
	}
	var req beaconRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "Invalid request")
	}
	if req.ArticleID <= 0 || req.DurationSec <= 0 || req.DurationSec > maxDurationSec {
		return c.String(http.StatusBadRequest, "Invalid request")
	}
	ua := truncate(c.Request().UserAgent(), maxUserAgentLen)
	if IsBot(ua) {
		return c.NoContent(http.StatusNoContent)
	}
	visitor := VisitorID(c.RealIP(), ua)
	if _, err := t.store.UpdateDuration(c.Request().Context(), visitor, req.ArticleID, req.DurationSec); err != nil {
		t.logger.Error("update reading time", zap.Error(err), zap.Int64("article_id", req.ArticleID))
	}
	return c.NoContent(http.StatusNoContent)
}

// Summary builds the reading report for the last days days.
func (t *Tracker) Summary(ctx context.Context, days, limit int) (*Summary, error) {
	if days <= 0 {
		days = 30
	}
	from := t.now().AddDate(0, 0, -days)
	sum := &Summary{Days: days}
	var err error
	if sum.Views, sum.Readers, sum.BotVisits, err = t.store.Totals(ctx, from); err != nil {
		return nil, err
	}
	if sum.TopArticles, err = t.store.TopArticles(ctx, from, limit); err != nil {
		return nil, err
	}
	for _, d := range []struct {
		name string
		dst  *[]DimensionStat
	}{
		{"browser", &sum.Browsers},
		{"os", &sum.OS},
		{"device", &sum.Devices},
		{"referrer", &sum.Referrers},
		{"bot", &sum.Bots},
	} {
		if *d.dst, err = t.store.Breakdown(ctx, d.name, from, limit); err != nil {
			return nil, err
		}
	}
	daily, err := t.store.Daily(ctx, from)
	if err != nil {
		return nil, err
	}
	sum.Daily = fillDays(daily, from, days)
	return sum, nil
}

// Views returns human views per article over the last days days.
func (t *Tracker) Views(ctx context.Context, days int) (map[int64]int, error) {
	return t.store.ArticleViews(ctx, t.now().AddDate(0, 0, -days))
}

// Stats serves the reading report as JSON for the last ?days= days.
func (t *Tracker) Stats(c echo.Context) error {
	days, _ := strconv.Atoi(c.QueryParam("days"))
	sum, err := t.Summary(c.Request().Context(), days, 10)
	if err != nil {
		t.logger.Error("reading summary", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, sum)
}

// StartCleanup deletes visits older than retention every interval until
// Close is called.
func (t *Tracker) StartCleanup(retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := t.store.DeleteBefore(context.Background(), t.now().Add(-retention))
				if err != nil {
					t.logger.Error("analytics cleanup", zap.Error(err))
					continue
				}
				if n > 0 {
					t.logger.Info("analytics cleanup", zap.Int64("deleted", n))
				}
			case <-done:
				return
			}
		}
	}()
	t.stopOnce = func() { close(done) }
}

// Close stops background work. The store is left open.
func (t *Tracker) Close() {
	t.limiter.close()
	if t.stopOnce != nil {
		t.stopOnce()
		t.stopOnce = nil
	}
}

// fillDays returns one entry per day from from through today, filling gaps
// with zero.
func fillDays(sparse []DailyView, from time.Time, days int) []DailyView {
	byDay := make(map[string]int, len(sparse))
	for _, v := range sparse {
		byDay[v.Date] = v.Views
	}
	out := make([]DailyView, 0, days+1)
	for i := 0; i <= days; i++ {
		d := from.AddDate(0, 0, i).Format("2006-01-02")
		out = append(out, DailyView{Date: d, Views: byDay[d]})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
