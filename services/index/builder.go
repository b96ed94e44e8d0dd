// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/daleelhub/daleel/services/catalog"
)

// ProgramExtractor turns one Markdown document into a Program record.
type ProgramExtractor interface {
	Extract(ctx context.Context, markdown, notes string) catalog.Program
}

// DocumentAdder receives finished documents. Satisfied by *Store.
type DocumentAdder interface {
	Add(ctx context.Context, doc Document) error
}

// Builder runs the two-phase catalog build: Markdown sources to JSON
// program files, then JSON files into the vector index.
type Builder struct {
	extractor ProgramExtractor
	store     DocumentAdder
	logger    *slog.Logger
}

// NewBuilder creates a Builder. A nil logger uses slog.Default.
func NewBuilder(extractor ProgramExtractor, store DocumentAdder, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{extractor: extractor, store: store, logger: logger}
}

var slugNormalizePat = regexp.MustCompile(`[^0-9A-Za-z\x{0600}-\x{06FF}-]+`)

// normalizeSlug tightens an extracted id into a filesystem-safe slug.
func normalizeSlug(raw string) string {
	slug := slugNormalizePat.ReplaceAllString(raw, "-")
	slug = strings.ToLower(strings.Trim(slug, "-"))
	if slug == "" {
		return "program"
	}
	return slug
}

// ExtractPrograms converts every *.md file under mdDir into a JSON
// program file under outDir. Slugs are deduplicated across the run and
// against files already present in outDir. A failing document is logged
// and skipped; the batch continues.
//
// Returns the number of programs written.
func (b *Builder) ExtractPrograms(ctx context.Context, mdDir, outDir string) (int, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("index: creating output dir: %w", err)
	}

	mdFiles, err := filepath.Glob(filepath.Join(mdDir, "*.md"))
	if err != nil {
		return 0, fmt.Errorf("index: listing markdown sources: %w", err)
	}
	if len(mdFiles) == 0 {
		return 0, fmt.Errorf("index: no Markdown files found in %s", mdDir)
	}
	sort.Strings(mdFiles)

	taken := make(map[string]bool)
	written := 0
	for _, mdPath := range mdFiles {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		raw, err := os.ReadFile(mdPath)
		if err != nil {
			b.logger.Warn("skipping unreadable source",
				slog.String("path", mdPath), slog.String("error", err.Error()))
			continue
		}

		program := b.extractor.Extract(ctx, string(raw), "")

		base := normalizeSlug(program.ID)
		slug := base
		for n := 2; ; n++ {
			if _, statErr := os.Stat(filepath.Join(outDir, slug+".json")); os.IsNotExist(statErr) && !taken[slug] {
				break
			}
			slug = fmt.Sprintf("%s-%d", base, n)
		}
		taken[slug] = true

		program.ID = slug
		program.SourcePath = filepath.ToSlash(mdPath)

		data, err := marshalProgram(program)
		if err != nil {
			b.logger.Warn("skipping program that failed to encode",
				slog.String("slug", slug), slog.String("error", err.Error()))
			continue
		}
		outPath := filepath.Join(outDir, slug+".json")
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			b.logger.Warn("skipping program that failed to write",
				slog.String("path", outPath), slog.String("error", err.Error()))
			continue
		}
		written++
	}

	b.logger.Info("program extraction finished",
		slog.Int("sources", len(mdFiles)), slog.Int("written", written))
	return written, nil
}

// IndexPrograms loads every *.json program file under outDir and adds it
// to the vector index. A failing document is logged and skipped.
//
// Returns the number of programs indexed.
func (b *Builder) IndexPrograms(ctx context.Context, outDir string) (int, error) {
	jsonFiles, err := filepath.Glob(filepath.Join(outDir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("index: listing program files: %w", err)
	}
	if len(jsonFiles) == 0 {
		return 0, fmt.Errorf("index: no JSON program files found in %s, run extraction first", outDir)
	}
	sort.Strings(jsonFiles)

	indexed := 0
	for _, fp := range jsonFiles {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		raw, err := os.ReadFile(fp)
		if err != nil {
			b.logger.Warn("skipping unreadable program file",
				slog.String("path", fp), slog.String("error", err.Error()))
			continue
		}

		var program catalog.Program
		if err := json.Unmarshal(raw, &program); err != nil {
			b.logger.Warn("skipping malformed program file",
				slog.String("path", fp), slog.String("error", err.Error()))
			continue
		}
		var metadata map[string]any
		if err := json.Unmarshal(raw, &metadata); err != nil {
			b.logger.Warn("skipping malformed program file",
				slog.String("path", fp), slog.String("error", err.Error()))
			continue
		}

		doc := Document{
			ID:       program.ID,
			Content:  IndexText(program),
			Metadata: metadata,
		}
		if err := b.store.Add(ctx, doc); err != nil {
			b.logger.Warn("skipping program that failed to index",
				slog.String("id", program.ID), slog.String("error", err.Error()))
			continue
		}
		indexed++
	}

	b.logger.Info("program indexing finished",
		slog.Int("files", len(jsonFiles)), slog.Int("indexed", indexed))
	return indexed, nil
}

// IndexText concatenates the searchable fields of a program into the
// text that gets embedded.
func IndexText(p catalog.Program) string {
	objectives := p.Objectives
	if objectives == "" {
		objectives = p.ObjectivesText
	}
	return strings.TrimSpace(strings.Join([]string{
		p.Name,
		p.Description,
		objectives,
		"Goals " + strings.Join(p.Goals, ", "),
		"Features " + strings.Join(p.Features, ", "),
		"Eligibility " + strings.Join(p.EligibilityMust, ", "),
		"Sectors " + strings.Join(p.SectorTags, ", "),
		"Stages " + strings.Join(p.StageTags, ", "),
	}, "\n"))
}

// marshalProgram renders a program as indented JSON without escaping
// non-ASCII text, keeping the Arabic fields readable on disk.
func marshalProgram(p catalog.Program) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
