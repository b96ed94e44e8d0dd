// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"regexp"
	"strings"
)

// Markdown structure patterns for the non-LLM extraction path.
var (
	headingPat   = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+(.+)$`)
	bulletPat    = regexp.MustCompile(`(?m)^\s*[-*•▪+]\s+(.+)$`)
	fieldLinePat = regexp.MustCompile(`(?mi)^(?:الأهداف|Goals|Objectives|الميزات|Features|Eligibility|الأهلية)\s*[:：-]\s*(.+)$`)
	paraSplitPat = regexp.MustCompile(`\n\s*\n`)

	mvpStagePat         = regexp.MustCompile(`\bMVP\b|نموذج أولي|نموذج تجريبي`)
	launchStagePat      = regexp.MustCompile(`إطلاق|تدشين|launch`)
	operatingStagePat   = regexp.MustCompile(`تشغيل|تشغيلي|production|go[- ]?live`)
	earlyGrowthStagePat = regexp.MustCompile(`نمو مبكر|early growth`)
)

const goalsCap = 8

func firstHeading(md string) string {
	if m := headingPat.FindStringSubmatch(md); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func firstURL(md string) string {
	return bareURLPat.FindString(md)
}

// firstParagraph returns the first non-empty paragraph that is neither a
// heading nor a bullet list, or the first 400 characters as a last resort.
func firstParagraph(md string) string {
	for _, para := range paraSplitPat.Split(strings.TrimSpace(md), -1) {
		p := strings.TrimSpace(para)
		if p == "" {
			continue
		}
		if headingPat.MatchString(p) || bulletPat.MatchString(p) {
			continue
		}
		return p
	}
	trimmed := []rune(strings.TrimSpace(md))
	if len(trimmed) > 400 {
		trimmed = trimmed[:400]
	}
	return string(trimmed)
}

func collectBullets(md string) []string {
	var out []string
	for _, m := range bulletPat.FindAllStringSubmatch(md, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func collectFieldLines(md string) []string {
	var out []string
	for _, m := range fieldLinePat.FindAllStringSubmatch(md, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func dedupKeepOrder(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, x := range items {
		key := strings.TrimSpace(x)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func capList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// FallbackEnrich fills every still-empty field of p from the raw Markdown
// using regex heuristics. It never fails: applied to a blank Program it
// yields a usable skeleton.
func FallbackEnrich(p *Program, md string) {
	if p.Name == "" {
		if h := firstHeading(md); h != "" {
			p.Name = h
		} else {
			p.Name = "برنامج"
		}
	}
	if p.Description == "" {
		p.Description = firstParagraph(md)
	}
	if p.URL == "" {
		p.URL = firstURL(md)
	}

	if len(p.Goals) == 0 {
		bullets := collectBullets(md)
		if len(bullets) == 0 {
			bullets = collectFieldLines(md)
		}
		p.Goals = dedupKeepOrder(capList(bullets, goalsCap))
	}

	if len(p.Features) == 0 {
		p.Features = capList(dedupKeepOrder(collectFieldLines(md)), goalsCap)
	}
	if len(p.EligibilityMust) == 0 {
		var elig []string
		for _, line := range collectFieldLines(md) {
			if containsAny(line, "شروط", "Eligible", "الأهلية") {
				elig = append(elig, line)
			}
		}
		p.EligibilityMust = dedupKeepOrder(capList(elig, goalsCap))
	}

	if len(p.SectorTags) == 0 {
		lower := strings.ToLower(md)
		var sec []string
		if containsAny(lower, "health", "الصحة", "تقنية صحية", "digital health") {
			sec = append(sec, "الصحة", "تقنية صحية")
		}
		if containsAny(lower, "commerce", "تجارة", "التجارة الإلكترونية") {
			sec = append(sec, "التجارة الإلكترونية")
		}
		if containsAny(lower, "ai", "ذكاء اصطناعي") {
			sec = append(sec, "ذكاء اصطناعي")
		}
		p.SectorTags = dedupKeepOrder(sec)
	}
	if len(p.StageTags) == 0 {
		var st []string
		if mvpStagePat.MatchString(md) {
			st = append(st, "MVP")
		}
		if launchStagePat.MatchString(md) {
			st = append(st, "إطلاق")
		}
		if operatingStagePat.MatchString(md) {
			st = append(st, "تشغيل")
		}
		if earlyGrowthStagePat.MatchString(md) {
			st = append(st, "نمو مبكر")
		}
		p.StageTags = dedupKeepOrder(st)
	}

	if p.Objectives == "" && len(p.Goals) > 0 {
		p.Objectives = strings.Join(capList(p.Goals, 3), "؛ ")
	}

	id := strings.ToLower(strings.TrimSpace(p.ID))
	if id == "" || id == "none" || id == "null" {
		p.ID = Slugify(p.Name)
	}

	if p.ProgramType == "" {
		if strings.Contains(p.Name, "مبادرة") {
			p.ProgramType = "مبادرة/تمكين"
		} else {
			p.ProgramType = "برنامج"
		}
	}
}
