package sundaythoughts

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(DriverSQLite, filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedArticles(t *testing.T, s *Store) []Article {
	t.Helper()
	arts := []Article{
		{Title: "Beta Chips", CreatedDate: "2024-02-01", Writeup: "chips", Category: "tech, geopolitics"},
		{Title: "alpha rates", CreatedDate: "2024-03-01", Writeup: "rates", Category: "macro", Dated: true},
		{Title: "Gamma Models", CreatedDate: "2024-01-01", Writeup: "models", Category: "ai", Image: "covers/g.jpg", PDF: "g.pdf"},
	}
	for i := range arts {
		if err := s.SaveArticle(context.Background(), &arts[i]); err != nil {
			t.Fatalf("SaveArticle: %v", err)
		}
		if arts[i].ID == 0 {
			t.Fatal("SaveArticle did not assign an id")
		}
	}
	return arts
}

func titles(arts []Article) []string {
	out := make([]string, len(arts))
	for i, a := range arts {
		out[i] = a.Title
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, err := OpenStore("mysql", "x"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestListArticlesOrderingAndFilters(t *testing.T) {
	s := setupTestStore(t)
	seedArticles(t, s)
	ctx := context.Background()

	tests := []struct {
		name string
		q    ArticleQuery
		want []string
	}{
		{"default newest first", ArticleQuery{}, []string{"alpha rates", "Beta Chips", "Gamma Models"}},
		{"date ascending", ArticleQuery{SortField: "created_date", Ascending: true}, []string{"Gamma Models", "Beta Chips", "alpha rates"}},
		{"title ignores case", ArticleQuery{SortField: "title", Ascending: true}, []string{"alpha rates", "Beta Chips", "Gamma Models"}},
		{"unknown sort falls back to date", ArticleQuery{SortField: "id; DROP TABLE users"}, []string{"alpha rates", "Beta Chips", "Gamma Models"}},
		{"category substring", ArticleQuery{Category: "Geo"}, []string{"Beta Chips"}},
		{"category all", ArticleQuery{Category: "all"}, []string{"alpha rates", "Beta Chips", "Gamma Models"}},
		{"title search", ArticleQuery{Search: "MODEL"}, []string{"Gamma Models"}},
		{"like wildcards are literal", ArticleQuery{Search: "%"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListArticles(ctx, tt.q)
			if err != nil {
				t.Fatalf("ListArticles: %v", err)
			}
			if !equalStrings(titles(got), tt.want) {
				t.Fatalf("got %v, want %v", titles(got), tt.want)
			}
		})
	}
}

func TestGetAndUpdateArticle(t *testing.T) {
	s := setupTestStore(t)
	arts := seedArticles(t, s)
	ctx := context.Background()

	got, err := s.GetArticle(ctx, arts[2].ID)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if got.Image != "covers/g.jpg" || got.PDF != "g.pdf" || got.CreatedDate != "2024-01-01" {
		t.Fatalf("unexpected article: %+v", got)
	}

	got.Title = "Gamma Models, Revised"
	if err := s.SaveArticle(ctx, &got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := s.GetArticle(ctx, got.ID)
	if again.Title != "Gamma Models, Revised" {
		t.Fatalf("title not updated: %q", again.Title)
	}

	missing := Article{ID: 9999, Title: "ghost"}
	if err := s.SaveArticle(ctx, &missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update of missing article: got %v, want ErrNotFound", err)
	}
	if _, err := s.GetArticle(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetArticle missing: got %v", err)
	}
	if err := s.SaveArticle(ctx, &Article{Title: " "}); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestSaveArticleDefaultsDate(t *testing.T) {
	s := setupTestStore(t)
	a := Article{Title: "Undated"}
	if err := s.SaveArticle(context.Background(), &a); err != nil {
		t.Fatal(err)
	}
	if len(a.CreatedDate) != len(dateLayout) {
		t.Fatalf("CreatedDate = %q", a.CreatedDate)
	}
}

func TestCommentsLifecycle(t *testing.T) {
	s := setupTestStore(t)
	arts := seedArticles(t, s)
	ctx := context.Background()
	id := arts[0].ID

	if _, err := s.AddComment(ctx, id, "   "); !errors.Is(err, ErrEmptyComment) {
		t.Fatalf("blank comment: got %v", err)
	}
	if _, err := s.AddComment(ctx, 9999, "hello"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("comment on missing article: got %v", err)
	}
	first, err := s.AddComment(ctx, id, "  first  ")
	if err != nil {
		t.Fatal(err)
	}
	if first.Text != "first" || first.ID == "" {
		t.Fatalf("unexpected comment: %+v", first)
	}
	if _, err := s.AddComment(ctx, id, "second"); err != nil {
		t.Fatal(err)
	}

	comments, err := s.ListComments(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 2 || comments[0].Text != "first" || comments[1].Text != "second" {
		t.Fatalf("unexpected comments: %+v", comments)
	}
	if n, _ := s.CountComments(ctx, id); n != 2 {
		t.Fatalf("CountComments = %d", n)
	}

	if err := s.SaveFormatted(ctx, id, "### x", ContentHash("chips")); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteArticle(ctx, id); err != nil {
		t.Fatalf("DeleteArticle: %v", err)
	}
	if n, _ := s.CountComments(ctx, id); n != 0 {
		t.Fatalf("comments survived delete: %d", n)
	}
	if _, err := s.GetFormatted(ctx, id, ContentHash("chips")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("formatted copy survived delete: %v", err)
	}
}

func TestUsersAllowList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	u, err := s.AddUser(ctx, User{Email: "  Reader@Example.com ", FirstName: " Ann "})
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if u.Email != "reader@example.com" || u.FirstName != "Ann" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if _, err := s.AddUser(ctx, User{Email: "READER@example.com"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate: got %v", err)
	}
	if _, err := s.AddUser(ctx, User{}); err == nil {
		t.Fatal("expected error for empty email")
	}

	for email, want := range map[string]bool{
		"reader@example.com":   true,
		" READER@EXAMPLE.COM ": true,
		"other@example.com":    false,
		"":                     false,
	} {
		got, err := s.EmailAllowed(ctx, email)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("EmailAllowed(%q) = %v, want %v", email, got, want)
		}
	}

	users, err := s.ListUsers(ctx)
	if err != nil || len(users) != 1 || users[0].CreatedAt.IsZero() {
		t.Fatalf("ListUsers = %+v, %v", users, err)
	}
	if err := s.DeleteUser(ctx, "Reader@example.com"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := s.DeleteUser(ctx, "reader@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
}

func TestAddUserConcurrentDuplicates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddUser(ctx, User{Email: "race@example.com"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	added := 0
	for err := range errs {
		switch {
		case err == nil:
			added++
		case !errors.Is(err, ErrDuplicate):
			t.Fatalf("concurrent AddUser returned %v, want ErrDuplicate", err)
		}
	}
	if added != 1 {
		t.Fatalf("added %d times, want 1", added)
	}
}

func TestUniqueViolationFromDriver(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	insert := `INSERT INTO users (email, first_name, last_name, created_at) VALUES ('dup@example.com', '', '', '')`
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		t.Fatal(err)
	}
	_, err := s.db.ExecContext(ctx, insert)
	if !isUniqueViolation(err) {
		t.Fatalf("isUniqueViolation(%v) = false", err)
	}
	if isUniqueViolation(errors.New("other")) || isUniqueViolation(nil) {
		t.Fatal("unrelated errors reported as unique violations")
	}
	if s.Driver() != DriverSQLite {
		t.Fatalf("Driver = %q", s.Driver())
	}
}

func TestFormattedCopyIsKeyedToWriteup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	h1, h2 := ContentHash("v1"), ContentHash("v2")
	if h1 == h2 || len(h1) != 16 {
		t.Fatalf("bad hashes %q %q", h1, h2)
	}

	if _, err := s.GetFormatted(ctx, 1, h1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty cache: got %v", err)
	}
	if err := s.SaveFormatted(ctx, 1, "first", h1); err != nil {
		t.Fatal(err)
	}
	if got, err := s.GetFormatted(ctx, 1, h1); err != nil || got != "first" {
		t.Fatalf("GetFormatted = %q, %v", got, err)
	}
	if _, err := s.GetFormatted(ctx, 1, h2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale copy served: %v", err)
	}
	if err := s.SaveFormatted(ctx, 1, "second", h2); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetFormatted(ctx, 1, h2); got != "second" {
		t.Fatalf("upsert failed: %q", got)
	}
	if err := s.DeleteFormatted(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetFormatted(ctx, 1, h2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete failed: %v", err)
	}
}

func TestRebind(t *testing.T) {
	s := &Store{driver: DriverPostgres}
	if got := s.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("rebind = %q", got)
	}
	s.driver = DriverSQLite
	if got := s.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind = %q", got)
	}
}

func TestNormalizeDate(t *testing.T) {
	for in, want := range map[string]string{
		"2024-01-02":           "2024-01-02",
		"2024-01-02T00:00:00Z": "2024-01-02",
		" 2024-01-02 ":         "2024-01-02",
		"junk":                 "junk",
	} {
		if got := normalizeDate(in); got != want {
			t.Errorf("normalizeDate(%q) = %q, want %q", in, got, want)
		}
	}
}
