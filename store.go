package sundaythoughts

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = sql.ErrNoRows
	// ErrDuplicate is returned when an email is already on the allow-list.
	ErrDuplicate = errors.New("email already registered")
	// ErrEmptyComment is returned for blank comment bodies.
	ErrEmptyComment = errors.New("comment text is required")
)

// Store wraps the content database: articles, the email allow-list,
// comments and the formatted-article cache. It runs on SQLite locally and
// on the hosted Postgres database in production.
type Store struct {
	db     *sql.DB
	driver string
}

// OpenStore opens the database for driver and ensures the schema exists.
// For sqlite, dsn is a file path; for postgres, a connection URL.
func OpenStore(driver, dsn string) (*Store, error) {
	switch driver {
	case "", DriverSQLite:
		return openSQLite(dsn)
	case DriverPostgres:
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q (valid: sqlite, postgres)", driver)
	}
}

func openSQLite(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// busy_timeout and foreign_keys are per connection, so they go in the
	// DSN where every pooled connection picks them up.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// WAL lets readers proceed during writes.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db, driver: DriverSQLite}
	if err := s.ensureSchema(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	s := &Store{db: db, driver: DriverPostgres}
	if err := s.ensureSchema(postgresSchema); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver reports which database driver the store runs on.
func (s *Store) Driver() string {
	return s.driver
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sundaythoughts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    image TEXT NOT NULL DEFAULT '',
    created_date TEXT NOT NULL,
    writeup TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    datedornot INTEGER NOT NULL DEFAULT 0,
    articlepdffile TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL UNIQUE,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS comments (
    id TEXT PRIMARY KEY,
    article_id INTEGER NOT NULL,
    body TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS comments_article_idx ON comments (article_id, created_at);
CREATE TABLE IF NOT EXISTS formatted_articles (
    article_id INTEGER PRIMARY KEY,
    content TEXT NOT NULL,
    source_hash TEXT NOT NULL,
    created_at TEXT NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sundaythoughts (
    id BIGSERIAL PRIMARY KEY,
    title TEXT NOT NULL,
    image TEXT NOT NULL DEFAULT '',
    created_date TEXT NOT NULL,
    writeup TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    datedornot BOOLEAN NOT NULL DEFAULT FALSE,
    articlepdffile TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS comments (
    id TEXT PRIMARY KEY,
    article_id BIGINT NOT NULL,
    body TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS comments_article_idx ON comments (article_id, created_at);
CREATE TABLE IF NOT EXISTS formatted_articles (
    article_id BIGINT PRIMARY KEY,
    content TEXT NOT NULL,
    source_hash TEXT NOT NULL,
    created_at TEXT NOT NULL
);
`

func (s *Store) ensureSchema(schema string) error {
	_, err := s.db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const articleColumns = `id, title, image, created_date, writeup, category, datedornot, articlepdffile`

// sortColumns maps accepted sort fields to their ORDER BY expression.
var sortColumns = map[string]string{
	"title":        "lower(title)",
	"category":     "lower(category)",
	"created_date": "created_date",
}

// ListArticles returns articles matching q.
func (s *Store) ListArticles(ctx context.Context, q ArticleQuery) ([]Article, error) {
	q = normalizeQuery(q)
	var (
		where []string
		args  []any
	)
	if q.Category != "" {
		where = append(where, `lower(category) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q.Category)+"%")
	}
	if q.Search != "" {
		where = append(where, `lower(title) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q.Search)+"%")
	}
	query := `SELECT ` + articleColumns + ` FROM sundaythoughts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	dir := "DESC"
	if q.Ascending {
		dir = "ASC"
	}
	query += fmt.Sprintf(` ORDER BY %s %s, id %s`, sortColumns[q.SortField], dir, dir)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// GetArticle returns a single article by id.
func (s *Store) GetArticle(ctx context.Context, id int64) (Article, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+articleColumns+` FROM sundaythoughts WHERE id = ?`), id)
	return scanArticle(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(r rowScanner) (Article, error) {
	var a Article
	var created string
	if err := r.Scan(&a.ID, &a.Title, &a.Image, &created, &a.Writeup, &a.Category, &a.Dated, &a.PDF); err != nil {
		return Article{}, err
	}
	a.CreatedDate = normalizeDate(created)
	return a, nil
}

// SaveArticle inserts a (ID 0) or updates an article. On insert the new ID
// is written back into a.
func (s *Store) SaveArticle(ctx context.Context, a *Article) error {
	if strings.TrimSpace(a.Title) == "" {
		return errors.New("article title is required")
	}
	if a.CreatedDate == "" {
		a.CreatedDate = time.Now().Format(dateLayout)
	}
	if a.ID == 0 {
		return s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO sundaythoughts (title, image, created_date, writeup, category, datedornot, articlepdffile) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			a.Title, a.Image, a.CreatedDate, a.Writeup, a.Category, a.Dated, a.PDF).Scan(&a.ID)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE sundaythoughts SET title = ?, image = ?, created_date = ?, writeup = ?, category = ?, datedornot = ?, articlepdffile = ? WHERE id = ?`),
		a.Title, a.Image, a.CreatedDate, a.Writeup, a.Category, a.Dated, a.PDF, a.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteArticle removes an article with its comments and formatted copy.
func (s *Store) DeleteArticle(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM comments WHERE article_id = ?`,
		`DELETE FROM formatted_articles WHERE article_id = ?`,
		`DELETE FROM sundaythoughts WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.rebind(q), id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListComments returns the comments on an article, oldest first.
func (s *Store) ListComments(ctx context.Context, articleID int64) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, body, created_at FROM comments WHERE article_id = ? ORDER BY created_at ASC, id ASC`), articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		c := Comment{ArticleID: articleID}
		var created string
		if err := rows.Scan(&c.ID, &c.Text, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTimestamp(created)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// CountComments returns the number of comments on an article.
func (s *Store) CountComments(ctx context.Context, articleID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM comments WHERE article_id = ?`), articleID).Scan(&n)
	return n, err
}

// AddComment stores a trimmed comment on an existing article.
func (s *Store) AddComment(ctx context.Context, articleID int64, text string) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, ErrEmptyComment
	}
	if _, err := s.GetArticle(ctx, articleID); err != nil {
		return Comment{}, err
	}
	c := Comment{
		ID:        uuid.NewString(),
		ArticleID: articleID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO comments (id, article_id, body, created_at) VALUES (?, ?, ?, ?)`),
		c.ID, c.ArticleID, c.Text, c.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}

// EmailAllowed reports whether email is on the allow-list.
func (s *Store) EmailAllowed(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return false, nil
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id FROM users WHERE email = ?`), email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure
// from either driver.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE"))
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// AddUser puts an email on the allow-list. A duplicate email, including
// one inserted concurrently, yields ErrDuplicate.
func (s *Store) AddUser(ctx context.Context, u User) (User, error) {
	u.Email = NormalizeEmail(u.Email)
	if u.Email == "" {
		return User{}, errors.New("email is required")
	}
	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)
	u.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO users (email, first_name, last_name, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		u.Email, u.FirstName, u.LastName, u.CreatedAt.Format(time.RFC3339Nano)).Scan(&u.ID)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// ListUsers returns the allow-list ordered by email.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, email, first_name, last_name, created_at FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var created string
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &created); err != nil {
			return nil, err
		}
		u.CreatedAt = parseTimestamp(created)
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes an email from the allow-list.
func (s *Store) DeleteUser(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM users WHERE email = ?`), NormalizeEmail(email))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetFormatted returns the stored LLM-formatted copy of an article if it was
// produced from a writeup with the given hash.
func (s *Store) GetFormatted(ctx context.Context, articleID int64, sourceHash string) (string, error) {
	var content, hash string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT content, source_hash FROM formatted_articles WHERE article_id = ?`), articleID).
		Scan(&content, &hash)
	if err != nil {
		return "", err
	}
	if hash != sourceHash {
		return "", ErrNotFound
	}
	return content, nil
}

// SaveFormatted upserts the formatted copy of an article.
func (s *Store) SaveFormatted(ctx context.Context, articleID int64, content, sourceHash string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO formatted_articles (article_id, content, source_hash, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (article_id) DO UPDATE SET content = excluded.content, source_hash = excluded.source_hash, created_at = excluded.created_at`),
		articleID, content, sourceHash, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// DeleteFormatted drops the formatted copy so the next view regenerates it.
func (s *Store) DeleteFormatted(ctx context.Context, articleID int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM formatted_articles WHERE article_id = ?`), articleID)
	return err
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ContentHash returns a short stable hash of text, used to key derived
// artifacts (formatted copies, podcasts) to the writeup they came from.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

func normalizeQuery(q ArticleQuery) ArticleQuery {
	q.Category = strings.ToLower(strings.TrimSpace(q.Category))
	if q.Category == "all" {
		q.Category = ""
	}
	q.Search = strings.ToLower(strings.TrimSpace(q.Search))
	if _, ok := sortColumns[q.SortField]; !ok {
		q.SortField = "created_date"
	}
	return q
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

const dateLayout = "2006-01-02"

// normalizeDate accepts YYYY-MM-DD or a full timestamp (Postgres date
// columns scan as RFC 3339) and returns YYYY-MM-DD.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= len(dateLayout) {
		if _, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
			return s[:len(dateLayout)]
		}
	}
	return s
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
