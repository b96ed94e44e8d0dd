// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matcher

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/daleelhub/daleel/services/catalog"
)

// Violation explains one concrete reason a program is not a clean fit.
// Violations never remove a result; they annotate it.
type Violation struct {
	Type     string `json:"type"`
	Why      string `json:"why"`
	Evidence string `json:"evidence"`
}

// DeriveViolations inspects a program's metadata against the project and
// returns every mismatch it can prove from the two records alone.
func DeriveViolations(md map[string]any, p Project) []Violation {
	var v []Violation

	// Sector mismatch: both sides declare sectors and they are disjoint.
	progSecs := metaStrList(md, "sector_tags")
	if len(progSecs) > 0 && len(p.Sectors) > 0 && disjoint(progSecs, p.Sectors) {
		sorted := append([]string(nil), progSecs...)
		sort.Strings(sorted)
		v = append(v, Violation{
			Type:     "sector_mismatch",
			Why:      "قطاعات البرنامج لا تتقاطع مع قطاعات المشروع.",
			Evidence: strings.Join(sorted, ", "),
		})
	}

	// Stage too early: program's earliest stage is above the project's.
	minReq, hasStages := -1, false
	for _, s := range metaStrList(md, "stage_tags") {
		if idx, ok := catalog.StageIndex(s); ok {
			if !hasStages || idx < minReq {
				minReq = idx
			}
			hasStages = true
		}
	}
	if hasStages {
		projVal, _ := catalog.StageIndex(p.Stage)
		if gap := minReq - projVal; gap >= 1 {
			v = append(v, Violation{
				Type:     "stage_too_early",
				Why:      fmt.Sprintf("مرحلة المشروع أبكر من الحد الأدنى للبرنامج بفارق %d مرتبة.", gap),
				Evidence: fmt.Sprintf("min_required=%d, project=%d", minReq, projVal),
			})
		}
	}

	// Funding gap and in-kind vs cash.
	need := p.FundingNeed
	fmin := metaFloat(md, "funding_min")
	fmax := metaFloat(md, "funding_max")
	ftype := strings.ToLower(metaStr(md, "funding_type"))
	if need > 0 && fmax > 0 && need > fmax {
		v = append(v, Violation{
			Type: "funding_gap",
			Why: fmt.Sprintf("احتياج المشروع (%s) يتجاوز سقف البرنامج (%s).",
				groupThousands(int64(need)), groupThousands(int64(fmax))),
			Evidence: fmt.Sprintf("range≈[%s..%s]", groupThousands(int64(fmin)), groupThousands(int64(fmax))),
		})
	}
	if ftype == "in-kind" && need > 0 {
		v = append(v, Violation{
			Type:     "in_kind_vs_cash",
			Why:      "البرنامج يقدم دعمًا عينيًا بينما المشروع يطلب تمويلاً نقدياً.",
			Evidence: "funding_type=in-kind",
		})
	}

	// Eligibility: health-sector conditions the project cannot satisfy.
	inHealth := false
	for _, s := range p.Sectors {
		if s == "الصحة" {
			inHealth = true
			break
		}
	}
	for _, cond := range metaStrList(md, "eligibility_must") {
		if (strings.Contains(cond, "الصحة") || strings.Contains(cond, "health")) && !inHealth {
			v = append(v, Violation{
				Type:     "eligibility_missing",
				Why:      "شرط أهلية متعلق بقطاع الصحة غير متحقق.",
				Evidence: cond,
			})
		}
	}
	return v
}

func disjoint(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, y := range b {
		if set[y] {
			return false
		}
	}
	return true
}

// groupThousands renders n with comma separators (1234567 -> 1,234,567).
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		return "-" + out
	}
	return out
}

// Metadata accessors tolerant of the map[string]any shapes JSON decoding
// produces.

func metaStr(md map[string]any, key string) string {
	if v, ok := md[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func metaStrList(md map[string]any, key string) []string {
	v, ok := md[key]
	if !ok || v == nil {
		return nil
	}
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		var out []string
		for _, item := range x {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			} else if !ok {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		return []string{x}
	default:
		return nil
	}
}

func metaFloat(md map[string]any, key string) float64 {
	v, ok := md[key]
	if !ok {
		return 0
	}
	return asFloat(v)
}
