// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command indexer builds the program catalog: it extracts structured
// program records from Markdown sources and indexes them into the
// vector store the matcher searches.
//
// Usage:
//
//	go run ./cmd/indexer build --source data/md
//	go run ./cmd/indexer build --source data/md --skip-extract
//	go run ./cmd/indexer verify
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/daleelhub/daleel/services/catalog"
	"github.com/daleelhub/daleel/services/config"
	"github.com/daleelhub/daleel/services/index"
	"github.com/daleelhub/daleel/services/llm"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:           "indexer",
		Short:         "Build and verify the program catalog index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildCmd(logger), verifyCmd(logger))

	if err := root.Execute(); err != nil {
		slog.Error("indexer failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildCmd extracts programs from Markdown and indexes the results.
func buildCmd(logger *slog.Logger) *cobra.Command {
	var (
		sourceDir   string
		outDir      string
		skipExtract bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Extract program JSON from Markdown sources and index it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(false)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.DataPath
			}

			embedder, err := llm.NewOpenAIEmbedder()
			if err != nil {
				return err
			}
			store, err := index.Open(cfg.IndexPath, cfg.Collection, embedder, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			var builder *index.Builder
			if skipExtract {
				builder = index.NewBuilder(nil, store, logger)
			} else {
				chat, err := llm.NewOpenAIClient()
				if err != nil {
					return err
				}
				extractor := catalog.NewExtractor(chat, cfg.LLMSeed, logger)
				builder = index.NewBuilder(extractor, store, logger)

				written, err := builder.ExtractPrograms(cmd.Context(), sourceDir, outDir)
				if err != nil {
					return err
				}
				logger.Info("extraction complete",
					slog.String("source", sourceDir), slog.Int("programs", written))
			}

			indexed, err := builder.IndexPrograms(cmd.Context(), outDir)
			if err != nil {
				return err
			}
			count, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("index build complete",
				slog.String("collection", store.Collection()),
				slog.Int("indexed", indexed),
				slog.Int("total", count),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceDir, "source", "data/md", "directory of Markdown program sources")
	cmd.Flags().StringVar(&outDir, "out", "", "directory for extracted program JSON (default DATA_PATH)")
	cmd.Flags().BoolVar(&skipExtract, "skip-extract", false, "index existing JSON without re-extracting")
	return cmd
}

// verifyCmd opens the index read-only and reports its document count.
func verifyCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Report the number of documents in the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(false)
			if err != nil {
				return err
			}
			embedder, err := llm.NewOpenAIEmbedder()
			if err != nil {
				return err
			}
			store, err := index.Open(cfg.IndexPath, cfg.Collection, embedder, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			count, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("index verified",
				slog.String("collection", store.Collection()),
				slog.Int("documents", count),
			)
			return nil
		},
	}
}
