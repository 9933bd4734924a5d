package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	st "github.com/Really-Nice-Guy/ST-May01"
	"github.com/Really-Nice-Guy/ST-May01/llm"
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Manage articles",
}

var articlesImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import articles from a JSON export",
	Long: `Import articles from a JSON array of rows with the fields
title, image, created_date, writeup, category, datedornot and articlepdffile.
Every row becomes a new article; ids in the file are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var rows []st.Article
		if err := json.Unmarshal(data, &rows); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := importArticles(cmd, store, rows)
		logger.Info("articles imported", zap.Int("count", n), zap.Int("rows", len(rows)))
		return err
	},
}

func importArticles(cmd *cobra.Command, store *st.Store, rows []st.Article) (int, error) {
	n := 0
	for i := range rows {
		art := rows[i]
		art.ID = 0
		if err := store.SaveArticle(cmd.Context(), &art); err != nil {
			return n, fmt.Errorf("row %d (%q): %w", i, art.Title, err)
		}
		n++
	}
	return n, nil
}

var forceFormat bool

var articlesFormatCmd = &cobra.Command{
	Use:   "format",
	Short: "Store formatted copies of articles ahead of the first reader",
	Long: `Run every article without a fresh formatted copy through the model
and store the result, so readers get the formatted page without waiting
for the stream. --force reformats articles that already have a copy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		gen, err := llm.New(cmd.Context(), cfg.LLM)
		if err != nil {
			return fmt.Errorf("model provider: %w", err)
		}
		n, err := formatArticles(cmd.Context(), store, gen, forceFormat)
		logger.Info("articles formatted", zap.Int("count", n))
		return err
	},
}

// formatArticles stores a formatted copy for each article that lacks a
// fresh one and returns how many were written.
func formatArticles(ctx context.Context, store *st.Store, gen llm.Generator, force bool) (int, error) {
	articles, err := store.ListArticles(ctx, st.ArticleQuery{SortField: "created_date"})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, art := range articles {
		if strings.TrimSpace(art.Writeup) == "" {
			continue
		}
		hash := st.ContentHash(art.Writeup)
		if !force {
			_, err := store.GetFormatted(ctx, art.ID, hash)
			if err == nil {
				continue
			}
			if !errors.Is(err, st.ErrNotFound) {
				return n, err
			}
		}
		text, err := llm.Collect(ctx, gen, llm.FormatArticle(art.Writeup, time.Now()))
		if err != nil {
			return n, fmt.Errorf("format article %d: %w", art.ID, err)
		}
		if err := store.SaveFormatted(ctx, art.ID, text, hash); err != nil {
			return n, err
		}
		logger.Debug("article formatted", zap.Int64("article_id", art.ID), zap.Int("bytes", len(text)))
		n++
	}
	return n, nil
}

func init() {
	articlesFormatCmd.Flags().BoolVar(&forceFormat, "force", false, "Reformat articles that already have a fresh copy")
	articlesCmd.AddCommand(articlesImportCmd, articlesFormatCmd)
}
