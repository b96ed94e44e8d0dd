// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog models support programs and extracts them from Arabic
// Markdown sources. Extraction is LLM-first with a regex fallback pass,
// so a program record is produced even when the model reply is unusable.
package catalog

import (
	"regexp"
	"strconv"
	"strings"
)

// Program is one support program or initiative as stored in the catalog
// and in vector index metadata.
type Program struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Objectives      string   `json:"objectives"`
	ObjectivesText  string   `json:"objectives_text,omitempty"`
	Goals           []string `json:"goals"`
	Features        []string `json:"features"`
	EligibilityMust []string `json:"eligibility_must"`
	SectorTags      []string `json:"sector_tags"`
	StageTags       []string `json:"stage_tags"`
	URL             string   `json:"url,omitempty"`
	SourcePath      string   `json:"source_path,omitempty"`
	LastUpdated     string   `json:"last_updated,omitempty"`
	LaunchDate      string   `json:"launch_date,omitempty"`
	FundingType     string   `json:"funding_type,omitempty"` // grant | loan | equity | in-kind
	FundingMin      float64  `json:"funding_min"`
	FundingMax      float64  `json:"funding_max"`
	ProgramType     string   `json:"program_type,omitempty"` // "مبادرة/تمكين" | "برنامج"
}

// StageLadder orders startup stages from earliest to latest. Positions in
// the ladder are compared when deriving stage violations.
var StageLadder = []string{"فكرة", "MVP", "إطلاق", "تشغيل", "نمو مبكر", "نمو", "توسع"}

// StageIndex returns the ladder position of a stage name and whether the
// stage is known.
func StageIndex(stage string) (int, bool) {
	for i, s := range StageLadder {
		if s == stage {
			return i, true
		}
	}
	return 0, false
}

var (
	markdownLinkURLPat = regexp.MustCompile(`\((https?://[^)]+)\)`)
	bareURLPat         = regexp.MustCompile(`https?://\S+`)
)

// CleanURL extracts a plain URL from a possibly decorated value: a
// Markdown link yields the URL inside the parentheses, otherwise the last
// bare URL in the string wins. Returns the trimmed input when no URL is
// found, and "" for empty input.
func CleanURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if m := markdownLinkURLPat.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	if hits := bareURLPat.FindAllString(u, -1); len(hits) > 0 {
		return hits[len(hits)-1]
	}
	return u
}

// IdentifyProgram resolves the identity triple (id, name, url) from index
// metadata. The id falls back through the known identifier keys and
// finally to the document source, then to the name.
func IdentifyProgram(md map[string]any, docSource string) (id, name, url string) {
	for _, key := range []string{"id", "program_id", "slug", "uuid", "code"} {
		if v := metaString(md, key); v != "" {
			id = v
			break
		}
	}
	if id == "" {
		id = docSource
	}

	name = metaString(md, "name")
	if name == "" {
		name = metaString(md, "program_name")
	}
	if name == "" {
		name = metaString(md, "title")
	}
	if name == "" {
		name = "Program"
	}
	if id == "" {
		id = name
	}

	rawURL := metaString(md, "url")
	if rawURL == "" {
		rawURL = metaString(md, "source_url")
	}
	if rawURL == "" {
		rawURL = docSource
	}
	url = CleanURL(rawURL)
	return id, name, url
}

func metaString(md map[string]any, key string) string {
	if v, ok := md[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

var (
	slugStripPat    = regexp.MustCompile(`[^\w\x{0600}-\x{06FF}-]+`)
	slugCollapsePat = regexp.MustCompile(`-+`)
)

// Slugify builds a slug from a program name, keeping Arabic letters.
// Empty input slugs to "program".
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStripPat.ReplaceAllString(s, "-")
	s = slugCollapsePat.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "program"
	}
	return s
}

// UniqueSlug appends -2, -3, ... until the slug is free in taken, then
// records it.
func UniqueSlug(base string, taken map[string]bool) string {
	slug := base
	for n := 2; taken[slug]; n++ {
		slug = base + "-" + strconv.Itoa(n)
	}
	taken[slug] = true
	return slug
}
