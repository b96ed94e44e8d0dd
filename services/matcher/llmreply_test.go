// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matcher

import (
	"reflect"
	"testing"
)

func TestParseEvaluation_CleanReply(t *testing.T) {
	ev, err := parseEvaluation(`{
		"sector_match": 0.8,
		"stage_match": 0.6,
		"funding_match": 0.4,
		"goal_alignment": 0.75,
		"reasons": ["تقاطع قطاعي واضح"],
		"improvements": ["أضف خطة تمويل"]
	}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.SectorMatch != 0.8 || ev.StageMatch != 0.6 || ev.FundingMatch != 0.4 || ev.GoalAlignment != 0.75 {
		t.Errorf("scores = %+v", ev)
	}
	if len(ev.Reasons) != 1 || len(ev.Improvements) != 1 {
		t.Errorf("lists = %+v", ev)
	}
}

func TestParseEvaluation_CamelCaseAliases(t *testing.T) {
	ev, err := parseEvaluation(`{"sectorMatch": 0.9, "stageMatch": 0.5, "fundingMatch": 0.2, "goalAlignment": 0.7}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.SectorMatch != 0.9 || ev.GoalAlignment != 0.7 {
		t.Errorf("aliases not mapped: %+v", ev)
	}
}

func TestParseEvaluation_ProseAroundJSON(t *testing.T) {
	ev, err := parseEvaluation("التقييم:\n{\"sector_match\": 0.5, \"reasons\": \"سبب {داخلي}\"}\nانتهى")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.SectorMatch != 0.5 {
		t.Errorf("sector = %v", ev.SectorMatch)
	}
}

func TestParseEvaluation_ArabicDigits(t *testing.T) {
	ev, err := parseEvaluation(`{"sector_match": "٠٫٨", "stage_match": ٠.٥}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.SectorMatch != 0.8 {
		t.Errorf("Arabic-Indic digits not normalized: %v", ev.SectorMatch)
	}
	if ev.StageMatch != 0.5 {
		t.Errorf("bare Arabic digits not normalized: %v", ev.StageMatch)
	}
}

func TestParseEvaluation_ClampsOutOfRange(t *testing.T) {
	ev, err := parseEvaluation(`{"sector_match": 1.7, "stage_match": -0.3}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.SectorMatch != 1 || ev.StageMatch != 0 {
		t.Errorf("values not clamped: %+v", ev)
	}
}

func TestParseEvaluation_NoJSON(t *testing.T) {
	if _, err := parseEvaluation("لا توجد نتيجة"); err == nil {
		t.Fatal("expected error for reply without JSON")
	}
	if _, err := parseEvaluation(`{"sector_match": 0.5`); err == nil {
		t.Fatal("expected error for unterminated JSON")
	}
}

func TestToStringList_Coercions(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"nil", nil, nil},
		{"string with bullets", "- سبب أول\n- سبب ثان", []string{"سبب أول", "سبب ثان"}},
		{"plain string", "سبب واحد", []string{"سبب واحد"}},
		{"list of strings", []any{"أ", " ب ", ""}, []string{"أ", "ب"}},
		{"list of dicts", []any{map[string]any{"text": "من text"}, map[string]any{"reason": "من reason"}}, []string{"من text", "من reason"}},
		{"number", 3.0, []string{"3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toStringList(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("toStringList(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundTenth(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0.44, 0.4},
		{0.45, 0.5},
		{0.96, 1.0},
		{-0.2, 0.0},
		{1.4, 1.0},
	}
	for _, tt := range tests {
		if got := roundTenth(tt.in); got != tt.want {
			t.Errorf("roundTenth(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestContentFromDistance(t *testing.T) {
	if got := contentFromDistance(0.3); got < 0.699 || got > 0.701 {
		t.Errorf("contentFromDistance(0.3) = %v", got)
	}
	if got := contentFromDistance(1.8); got != 0 {
		t.Errorf("distance beyond 1 should clamp to 0, got %v", got)
	}
	if got := contentFromDistance(-0.1); got != 1 {
		t.Errorf("negative distance should clamp to 1, got %v", got)
	}
}
