// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matcher

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// evaluation is the normalized form of one scoring reply.
type evaluation struct {
	SectorMatch   float64
	StageMatch    float64
	FundingMatch  float64
	GoalAlignment float64
	Reasons       []string
	Improvements  []string
}

// normalizeDigits maps Arabic-Indic and extended Arabic-Indic digits to
// ASCII, and the Arabic decimal separator to a dot. Models answering in
// Arabic occasionally ignore the ASCII-digits instruction.
func normalizeDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '٠' && r <= '٩':
			b.WriteRune('0' + (r - '٠'))
		case r >= '۰' && r <= '۹':
			b.WriteRune('0' + (r - '۰'))
		case r == '٫':
			b.WriteRune('.')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// extractFirstJSON returns the first balanced JSON object in s. The scan
// is string-aware so braces inside quoted values do not end the object.
func extractFirstJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", fmt.Errorf("reply contains no JSON object")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("reply contains an unterminated JSON object")
}

// camelCase aliases some models emit instead of the snake_case keys the
// prompt asks for.
var evalKeyAliases = map[string]string{
	"sectorMatch":   "sector_match",
	"stageMatch":    "stage_match",
	"fundingMatch":  "funding_match",
	"goalAlignment": "goal_alignment",
}

var listSplitPat = regexp.MustCompile(`(?m)(?:\n+|•|^- |\* )`)

// toStringList coerces a decoded JSON value into a flat list of strings.
// Strings are split on newlines and bullet markers; objects contribute
// their first known text field.
func toStringList(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		parts := listSplitPat.Split(x, -1)
		var out []string
		for _, p := range parts {
			p = strings.Trim(p, " \t•-*")
			if p != "" {
				out = append(out, p)
			}
		}
		if len(out) == 0 && strings.TrimSpace(x) != "" {
			return []string{strings.TrimSpace(x)}
		}
		return out
	case []any:
		var out []string
		for _, item := range x {
			switch it := item.(type) {
			case string:
				if s := strings.TrimSpace(it); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				for _, key := range []string{"text", "reason", "message", "content"} {
					if s, ok := it[key].(string); ok {
						if s = strings.TrimSpace(s); s != "" {
							out = append(out, s)
						}
						break
					}
				}
			default:
				out = append(out, fmt.Sprint(it))
			}
		}
		return out
	default:
		return []string{fmt.Sprint(x)}
	}
}

// asFloat coerces a decoded JSON value to float64, tolerating numbers
// serialized as strings. Anything unparseable is 0.
func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(normalizeDigits(x)), 64)
		if err != nil {
			return 0
		}
		return f
	case json.Number:
		f, _ := x.Float64()
		return f
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// roundTenth clamps into [0,1] and rounds to the nearest 0.1, matching
// the granularity the scoring prompt demands.
func roundTenth(v float64) float64 {
	v = clamp01(v)
	return float64(int(v*10+0.5)) / 10
}

// contentFromDistance turns cosine distance into a [0,1] similarity.
func contentFromDistance(distance float64) float64 {
	return clamp01(1 - distance)
}

// parseEvaluation normalizes one raw scoring reply into an evaluation.
func parseEvaluation(reply string) (evaluation, error) {
	jsonStr, err := extractFirstJSON(normalizeDigits(reply))
	if err != nil {
		return evaluation{}, err
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return evaluation{}, fmt.Errorf("decoding evaluation JSON: %w", err)
	}

	for alias, canonical := range evalKeyAliases {
		if v, ok := raw[alias]; ok {
			if _, exists := raw[canonical]; !exists {
				raw[canonical] = v
			}
		}
	}

	return evaluation{
		SectorMatch:   clamp01(asFloat(raw["sector_match"])),
		StageMatch:    clamp01(asFloat(raw["stage_match"])),
		FundingMatch:  clamp01(asFloat(raw["funding_match"])),
		GoalAlignment: clamp01(asFloat(raw["goal_alignment"])),
		Reasons:       toStringList(raw["reasons"]),
		Improvements:  toStringList(raw["improvements"]),
	}, nil
}
