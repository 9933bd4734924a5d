package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	st "github.com/Really-Nice-Guy/ST-May01"
	"github.com/Really-Nice-Guy/ST-May01/llm"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	if got := out.String(); !strings.HasPrefix(got, "sundaythoughts ") {
		t.Fatalf("version output = %q", got)
	}
}

func TestImportArticles(t *testing.T) {
	store, err := st.OpenStore(st.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	rows := []st.Article{
		{ID: 99, Title: "First", CreatedDate: "2024-03-01", Writeup: "one", Category: "tech"},
		{ID: 100, Title: "Second", CreatedDate: "2024-03-08", Writeup: "two", Category: "macro", Dated: true},
	}
	n, err := importArticles(cmd, store, rows)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Fatalf("imported %d, want 2", n)
	}
	got, err := store.ListArticles(context.Background(), st.ArticleQuery{SortField: "created_date"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Title != "Second" || !got[0].Dated {
		t.Fatalf("unexpected articles: %+v", got)
	}
	if got[0].ID == 100 {
		t.Error("import kept the id from the file")
	}
}

func TestImportArticlesStopsOnInvalidRow(t *testing.T) {
	store, err := st.OpenStore(st.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	n, err := importArticles(cmd, store, []st.Article{{Title: "ok"}, {Title: "  "}})
	if err == nil {
		t.Fatal("expected error for untitled row")
	}
	if n != 1 {
		t.Fatalf("imported %d before failing, want 1", n)
	}
}

func TestFormatArticles(t *testing.T) {
	store, err := st.OpenStore(st.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	rows := []st.Article{
		{Title: "Rates", CreatedDate: "2024-03-01", Writeup: "rates went up"},
		{Title: "Draft", CreatedDate: "2024-03-02"},
	}
	for i := range rows {
		if err := store.SaveArticle(ctx, &rows[i]); err != nil {
			t.Fatal(err)
		}
	}
	gen := llm.Static{Deltas: []string{"### Rates\n", "rates went up"}}

	n, err := formatArticles(ctx, store, gen, false)
	if err != nil || n != 1 {
		t.Fatalf("formatArticles = %d, %v; want 1", n, err)
	}
	got, err := store.GetFormatted(ctx, rows[0].ID, st.ContentHash(rows[0].Writeup))
	if err != nil || got != "### Rates\nrates went up" {
		t.Fatalf("stored copy = %q, %v", got, err)
	}

	if n, _ := formatArticles(ctx, store, gen, false); n != 0 {
		t.Fatalf("second run formatted %d, want 0", n)
	}
	if n, _ := formatArticles(ctx, store, gen, true); n != 1 {
		t.Fatalf("forced run formatted %d, want 1", n)
	}
}

func TestFormatArticlesStopsOnModelError(t *testing.T) {
	store, err := st.OpenStore(st.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	art := st.Article{Title: "Rates", CreatedDate: "2024-03-01", Writeup: "rates"}
	if err := store.SaveArticle(ctx, &art); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("quota exceeded")
	n, err := formatArticles(ctx, store, llm.Static{Deltas: []string{"part"}, Err: boom}, false)
	if !errors.Is(err, boom) || n != 0 {
		t.Fatalf("formatArticles = %d, %v", n, err)
	}
	if _, err := store.GetFormatted(ctx, art.ID, st.ContentHash(art.Writeup)); !errors.Is(err, st.ErrNotFound) {
		t.Fatalf("partial copy stored: %v", err)
	}
}
