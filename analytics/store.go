package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// tsLayout sorts lexically in time order and is understood by SQLite's
// date functions.
const tsLayout = "2006-01-02 15:04:05"

func ts(t time.Time) string { return t.UTC().Format(tsLayout) }

// Store persists visits in a SQLite database separate from the content
// database.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the analytics database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create analytics dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS article_visits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL,
			visitor_id TEXT NOT NULL,
			ip_hash TEXT NOT NULL,
			browser TEXT NOT NULL,
			os TEXT NOT NULL,
			device TEXT NOT NULL,
			referrer TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL,
			duration_sec INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS bot_visits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL,
			bot_name TEXT NOT NULL,
			ip_hash TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_article_visits_timestamp ON article_visits(timestamp);
		CREATE INDEX IF NOT EXISTS idx_article_visits_article ON article_visits(article_id);
		CREATE INDEX IF NOT EXISTS idx_article_visits_visitor ON article_visits(visitor_id, article_id);
		CREATE INDEX IF NOT EXISTS idx_bot_visits_timestamp ON bot_visits(timestamp);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// currentSchemaVersion is the latest schema version. Increment when adding migrations.
const currentSchemaVersion = 1

func (s *Store) migrate(ctx context.Context) error {
	verStr, err := s.GetSetting(ctx, "schema_version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	version := 0
	if verStr != "" {
		if version, err = strconv.Atoi(verStr); err != nil {
			return fmt.Errorf("parse schema version %q: %w", verStr, err)
		}
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	return s.SetSetting(ctx, "schema_version", strconv.Itoa(currentSchemaVersion))
}

// GetSetting returns the value stored under key, or "" when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var val string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

// SetSetting stores value under key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// SaveVisit stores a human visit.
func (s *Store) SaveVisit(ctx context.Context, v *Visit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO article_visits (article_id, visitor_id, ip_hash, browser, os, device, referrer, timestamp, duration_sec)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ArticleID, v.VisitorID, v.IPHash, v.Browser, v.OS, v.Device, v.Referrer, ts(v.Timestamp), v.DurationSec)
	if err != nil {
		return fmt.Errorf("save visit: %w", err)
	}
	return nil
}

// UpdateDuration records the reading time on the visitor's latest visit to
// the article. It reports whether a visit was found.
func (s *Store) UpdateDuration(ctx context.Context, visitorID string, articleID int64, seconds int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE article_visits SET duration_sec = ?
		 WHERE id = (SELECT id FROM article_visits WHERE visitor_id = ? AND article_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1)`,
		seconds, visitorID, articleID)
	if err != nil {
		return false, fmt.Errorf("update duration: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SaveBotVisit stores a crawler visit.
func (s *Store) SaveBotVisit(ctx context.Context, v *BotVisit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_visits (article_id, bot_name, ip_hash, user_agent, timestamp) VALUES (?, ?, ?, ?, ?)`,
		v.ArticleID, v.BotName, v.IPHash, v.UserAgent, ts(v.Timestamp))
	if err != nil {
		return fmt.Errorf("save bot visit: %w", err)
	}
	return nil
}

// TopArticles returns the most read articles since from.
func (s *Store) TopArticles(ctx context.Context, from time.Time, limit int) ([]ArticleStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT article_id, COUNT(*), COUNT(DISTINCT visitor_id),
		        CAST(COALESCE(AVG(NULLIF(duration_sec, 0)), 0) AS INTEGER)
		 FROM article_visits WHERE timestamp >= ?
		 GROUP BY article_id ORDER BY COUNT(*) DESC, article_id DESC LIMIT ?`,
		ts(from), limit)
	if err != nil {
		return nil, fmt.Errorf("top articles: %w", err)
	}
	defer rows.Close()
	var out []ArticleStat
	for rows.Next() {
		var st ArticleStat
		if err := rows.Scan(&st.ArticleID, &st.Views, &st.Readers, &st.AvgDuration); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ArticleViews returns total human views per article since from.
func (s *Store) ArticleViews(ctx context.Context, from time.Time) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT article_id, COUNT(*) FROM article_visits WHERE timestamp >= ? GROUP BY article_id`, ts(from))
	if err != nil {
		return nil, fmt.Errorf("article views: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// dimensions whitelists the columns Breakdown may group by.
var dimensions = map[string]string{
	"browser":  "SELECT browser, COUNT(*) FROM article_visits WHERE timestamp >= ? GROUP BY browser ORDER BY COUNT(*) DESC, browser LIMIT ?",
	"os":       "SELECT os, COUNT(*) FROM article_visits WHERE timestamp >= ? GROUP BY os ORDER BY COUNT(*) DESC, os LIMIT ?",
	"device":   "SELECT device, COUNT(*) FROM article_visits WHERE timestamp >= ? GROUP BY device ORDER BY COUNT(*) DESC, device LIMIT ?",
	"referrer": "SELECT referrer, COUNT(*) FROM article_visits WHERE timestamp >= ? GROUP BY referrer ORDER BY COUNT(*) DESC, referrer LIMIT ?",
	"bot":      "SELECT bot_name, COUNT(*) FROM bot_visits WHERE timestamp >= ? GROUP BY bot_name ORDER BY COUNT(*) DESC, bot_name LIMIT ?",
}

// Breakdown counts visits since from grouped by dimension
// (browser, os, device, referrer or bot).
func (s *Store) Breakdown(ctx context.Context, dimension string, from time.Time, limit int) ([]DimensionStat, error) {
	query, ok := dimensions[dimension]
	if !ok {
		return nil, fmt.Errorf("unknown dimension %q", dimension)
	}
	rows, err := s.db.QueryContext(ctx, query, ts(from), limit)
	if err != nil {
		return nil, fmt.Errorf("breakdown %s: %w", dimension, err)
	}
	defer rows.Close()
	var out []DimensionStat
	for rows.Next() {
		var d DimensionStat
		if err := rows.Scan(&d.Name, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Totals returns human views, distinct readers and bot visits since from.
func (s *Store) Totals(ctx context.Context, from time.Time) (views, readers, bots int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT visitor_id) FROM article_visits WHERE timestamp >= ?`, ts(from)).
		Scan(&views, &readers)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("totals: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bot_visits WHERE timestamp >= ?`, ts(from)).Scan(&bots)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bot totals: %w", err)
	}
	return views, readers, bots, nil
}

// Daily returns views per day since from, oldest first.
func (s *Store) Daily(ctx context.Context, from time.Time) ([]DailyView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(timestamp, 1, 10) AS day, COUNT(*) FROM article_visits
		 WHERE timestamp >= ? GROUP BY day ORDER BY day`, ts(from))
	if err != nil {
		return nil, fmt.Errorf("daily views: %w", err)
	}
	defer rows.Close()
	var out []DailyView
	for rows.Next() {
		var d DailyView
		if err := rows.Scan(&d.Date, &d.Views); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteBefore removes visits older than cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"article_visits", "bot_visits"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE timestamp < ?`, ts(cutoff))
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
