// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matcher

import "testing"

func violationTypes(vs []Violation) map[string]Violation {
	out := make(map[string]Violation, len(vs))
	for _, v := range vs {
		out[v.Type] = v
	}
	return out
}

func TestDeriveViolations_SectorMismatch(t *testing.T) {
	md := map[string]any{"sector_tags": []any{"الصحة", "تقنية صحية"}}
	p := Project{Sectors: []string{"التجارة الإلكترونية"}}

	vs := violationTypes(DeriveViolations(md, p))
	v, ok := vs["sector_mismatch"]
	if !ok {
		t.Fatal("expected sector_mismatch")
	}
	if v.Evidence != "الصحة, تقنية صحية" {
		t.Errorf("evidence = %q", v.Evidence)
	}
}

func TestDeriveViolations_NoSectorMismatchOnOverlap(t *testing.T) {
	md := map[string]any{"sector_tags": []any{"الصحة"}}
	p := Project{Sectors: []string{"الصحة", "ذكاء اصطناعي"}}
	if vs := violationTypes(DeriveViolations(md, p)); len(vs) != 0 {
		t.Errorf("unexpected violations: %v", vs)
	}
}

func TestDeriveViolations_StageTooEarly(t *testing.T) {
	md := map[string]any{"stage_tags": []any{"نمو", "توسع"}}
	p := Project{Stage: "MVP"}

	vs := violationTypes(DeriveViolations(md, p))
	v, ok := vs["stage_too_early"]
	if !ok {
		t.Fatal("expected stage_too_early")
	}
	if v.Evidence != "min_required=5, project=1" {
		t.Errorf("evidence = %q", v.Evidence)
	}
}

func TestDeriveViolations_StageOKWhenLaterOrEqual(t *testing.T) {
	md := map[string]any{"stage_tags": []any{"MVP", "إطلاق"}}
	p := Project{Stage: "تشغيل"}
	if vs := violationTypes(DeriveViolations(md, p)); len(vs) != 0 {
		t.Errorf("unexpected violations: %v", vs)
	}
}

func TestDeriveViolations_FundingGap(t *testing.T) {
	md := map[string]any{"funding_min": 50000.0, "funding_max": 200000.0}
	p := Project{FundingNeed: 1500000}

	vs := violationTypes(DeriveViolations(md, p))
	v, ok := vs["funding_gap"]
	if !ok {
		t.Fatal("expected funding_gap")
	}
	if v.Why != "احتياج المشروع (1,500,000) يتجاوز سقف البرنامج (200,000)." {
		t.Errorf("why = %q", v.Why)
	}
	if v.Evidence != "range≈[50,000..200,000]" {
		t.Errorf("evidence = %q", v.Evidence)
	}
}

func TestDeriveViolations_InKindVsCash(t *testing.T) {
	md := map[string]any{"funding_type": "in-kind"}
	p := Project{FundingNeed: 100000}

	vs := violationTypes(DeriveViolations(md, p))
	if _, ok := vs["in_kind_vs_cash"]; !ok {
		t.Fatal("expected in_kind_vs_cash")
	}

	// no cash need, no violation
	p.FundingNeed = 0
	if vs := violationTypes(DeriveViolations(md, p)); len(vs) != 0 {
		t.Errorf("unexpected violations: %v", vs)
	}
}

func TestDeriveViolations_EligibilityMissing(t *testing.T) {
	md := map[string]any{"eligibility_must": []any{"ترخيص من وزارة الصحة", "سجل تجاري"}}
	p := Project{Sectors: []string{"التجارة الإلكترونية"}}

	vs := violationTypes(DeriveViolations(md, p))
	v, ok := vs["eligibility_missing"]
	if !ok {
		t.Fatal("expected eligibility_missing")
	}
	if v.Evidence != "ترخيص من وزارة الصحة" {
		t.Errorf("evidence = %q", v.Evidence)
	}

	// satisfied when the project is in the health sector
	p.Sectors = []string{"الصحة"}
	if vs := violationTypes(DeriveViolations(md, p)); len(vs) != 0 {
		t.Errorf("unexpected violations: %v", vs)
	}
}

func TestGroupThousands(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1500000, "1,500,000"},
		{-25000, "-25,000"},
	}
	for _, tt := range tests {
		if got := groupThousands(tt.in); got != tt.want {
			t.Errorf("groupThousands(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
